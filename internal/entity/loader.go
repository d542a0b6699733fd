package entity

import (
	"encoding/json"
	"os"
	"time"

	apperrors "github.com/allisson/autoapi/internal/errors"
)

// definitionFile is the JSON shape of one entity-type in the definitions file.
// Durations are expressed in seconds.
type definitionFile struct {
	Name                 string   `json:"name"`
	CacheTTLSeconds      int      `json:"cache_ttl_seconds"`
	MaxConcurrent        int      `json:"max_concurrent"`
	RequireAuth          bool     `json:"require_auth"`
	Login                bool     `json:"login"`
	LoginFields          []string `json:"login_fields"`
	PasswordField        string   `json:"password_field"`
	LoginTokenTTLSeconds int      `json:"login_token_ttl_seconds"`
}

// LoadRegistry reads entity-type definitions from a JSON file and returns a
// populated registry. The file holds an array of definitions:
//
//	[
//	  {"name": "user", "login": true, "login_fields": ["email", "password"],
//	   "password_field": "password"},
//	  {"name": "article", "require_auth": true, "cache_ttl_seconds": 60}
//	]
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "read entity definitions: %s", err)
	}

	var entries []definitionFile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "parse entity definitions: %s", err)
	}
	if len(entries) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "entity definitions file is empty")
	}

	registry := NewRegistry()
	for _, entry := range entries {
		err := registry.Register(Definition{
			Name:          entry.Name,
			CacheTTL:      time.Duration(entry.CacheTTLSeconds) * time.Second,
			MaxConcurrent: entry.MaxConcurrent,
			RequireAuth:   entry.RequireAuth,
			Login:         entry.Login,
			LoginFields:   entry.LoginFields,
			PasswordField: entry.PasswordField,
			LoginTokenTTL: time.Duration(entry.LoginTokenTTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}

	return registry, nil
}
