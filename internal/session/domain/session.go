// Package domain defines the session domain model for token-based
// authentication. A session proves a successful prior login and is checked
// by every operation marked as requiring authentication.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/autoapi/internal/errors"
)

// Session represents an authenticated principal's active login. The plain
// token is never stored; sessions are looked up by SHA-256 token hash.
type Session struct {
	ID        uuid.UUID
	TokenHash string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Valid reports whether the session is usable at the given instant: not
// revoked and not past its absolute expiry.
func (s *Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Domain-specific errors for session operations.
var (
	// ErrSessionNotFound indicates no session exists for the token hash.
	ErrSessionNotFound = errors.Wrap(errors.ErrNotFound, "session not found")

	// ErrInvalidToken indicates the token is missing, unknown, expired, or
	// revoked. Deliberately a single error: callers must not be able to
	// distinguish which condition failed.
	ErrInvalidToken = errors.Wrap(errors.ErrUnauthorized, "invalid or expired token")

	// ErrInvalidCredentials indicates a login attempt with credentials that
	// matched no record. Kept generic to prevent user enumeration.
	ErrInvalidCredentials = errors.Wrap(errors.ErrUnauthorized, "invalid credentials")
)
