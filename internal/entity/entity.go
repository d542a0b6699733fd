// Package entity defines entity-type registration and the configuration
// registry consumed by the operation pipeline. Each registered entity-type
// owns one cache namespace and one concurrency slot configuration.
package entity

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/allisson/autoapi/internal/errors"
)

// Definition describes one entity-type and the behavior of its generated
// operations. A Definition is immutable after registration.
type Definition struct {
	// Name is the entity-type tag (e.g., "item"). It names the storage
	// collection, the cache namespace, and the concurrency slot.
	Name string

	// CacheTTL is the time-to-live for cached results of this entity-type.
	// Zero means "use the configured process-wide default", which may itself
	// be zero: entries then never time-expire but are still removed on mutation.
	CacheTTL time.Duration

	// MaxConcurrent bounds simultaneous in-flight operations for this
	// entity-type. Zero means "use the configured process-wide default".
	MaxConcurrent int

	// RequireAuth marks all generated operations as requiring a valid
	// session token.
	RequireAuth bool

	// Login marks this entity-type as a credential holder: it gets
	// login/logout operations instead of CRUD routes.
	Login bool

	// LoginFields lists the fields matched against storage during login
	// (e.g., ["email"]). Required when Login is true.
	LoginFields []string

	// PasswordField names the field verified against an Argon2id hash
	// instead of matched in storage. Empty means all LoginFields are
	// matched by equality.
	PasswordField string

	// LoginTokenTTL is the session token lifetime issued by a successful
	// login. Zero means "use the configured process-wide default".
	LoginTokenTTL time.Duration
}

// Registry maps entity-type names to their definitions. It is built once at
// setup and read-only afterwards, so lookups need no synchronization.
type Registry struct {
	definitions map[string]*Definition
	order       []string
}

// NewRegistry creates an empty entity-type registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
	}
}

// Register validates and adds a definition to the registry.
// Returns ErrInvalidInput for an empty name, a duplicate name, a login
// entity without login fields, or a PasswordField outside LoginFields.
func (r *Registry) Register(def Definition) error {
	def.Name = strings.TrimSpace(strings.ToLower(def.Name))
	if def.Name == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "entity name is required")
	}
	if _, exists := r.definitions[def.Name]; exists {
		return apperrors.Wrapf(apperrors.ErrConflict, "entity %q already registered", def.Name)
	}
	if def.Login && len(def.LoginFields) == 0 {
		return apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"entity %q: login fields are required for login entities",
			def.Name,
		)
	}
	if def.PasswordField != "" && !contains(def.LoginFields, def.PasswordField) {
		return apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"entity %q: password field %q must be one of the login fields",
			def.Name, def.PasswordField,
		)
	}
	if def.MaxConcurrent < 0 {
		return apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"entity %q: max concurrent must not be negative",
			def.Name,
		)
	}

	r.definitions[def.Name] = &def
	r.order = append(r.order, def.Name)
	return nil
}

// Get returns the definition for the given entity-type name.
// Returns ErrNotFound if the entity-type is not registered.
func (r *Registry) Get(name string) (*Definition, error) {
	def, ok := r.definitions[strings.ToLower(name)]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("entity %q is not registered", name))
	}
	return def, nil
}

// All returns the registered definitions in registration order.
func (r *Registry) All() []*Definition {
	defs := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.definitions[name])
	}
	return defs
}

func contains(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
