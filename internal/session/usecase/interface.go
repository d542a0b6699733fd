// Package usecase implements business logic orchestration for session
// lifecycle operations.
package usecase

import (
	"context"
	"time"
)

// SessionUseCase manages the session lifecycle: issue on login, validate on
// each authenticated request, revoke on logout.
type SessionUseCase interface {
	// Issue creates a new session for the subject and returns the plain
	// token. The token is only shown once; the store keeps its hash.
	Issue(ctx context.Context, subject string, ttl time.Duration) (string, error)

	// Validate checks a plain token and returns the subject it belongs to.
	// Unknown, expired, and revoked tokens all fail with the same
	// ErrInvalidToken error.
	Validate(ctx context.Context, plainToken string) (string, error)

	// Revoke invalidates the session for the plain token. Revoking an
	// unknown token returns ErrSessionNotFound.
	Revoke(ctx context.Context, plainToken string) error

	// CleanupExpired removes sessions past their expiry and returns how
	// many were removed.
	CleanupExpired(ctx context.Context) (int, error)
}
