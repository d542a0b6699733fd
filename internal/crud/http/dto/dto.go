// Package dto defines request and response payloads for the generated CRUD
// routes. Entity records are schemaless documents, so record payloads stay
// generic maps; only the structured requests carry validation rules.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/autoapi/internal/validation"
)

// LoginRequest carries the credential fields of a login attempt. The field
// set is defined per entity, so the request is a flat string map.
type LoginRequest map[string]string

// Validate checks that every configured login field is present and not blank.
func (r LoginRequest) Validate(requiredFields []string) error {
	errs := validation.Errors{}
	for _, field := range requiredFields {
		if err := validation.Validate(r[field], validation.Required, customValidation.NotBlank); err != nil {
			errs[field] = err
		}
	}
	return errs.Filter()
}

// BulkDeleteRequest carries the identifiers for a bulk delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// Validate checks the identifier list is present and free of blank entries.
func (r BulkDeleteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs,
			validation.Required,
			validation.Each(customValidation.NotBlank),
		),
	)
}

// CountResponse is the body of a count operation.
type CountResponse struct {
	Count int64 `json:"count"`
}

// LoginResponse returns the session token issued by a successful login.
type LoginResponse struct {
	Token string `json:"token"`
}

// SessionResponse describes the caller's active session.
type SessionResponse struct {
	Subject string `json:"subject"`
}
