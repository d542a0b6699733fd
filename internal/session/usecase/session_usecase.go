package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	sessionDomain "github.com/allisson/autoapi/internal/session/domain"
	sessionService "github.com/allisson/autoapi/internal/session/service"
	sessionStore "github.com/allisson/autoapi/internal/session/store"
)

// sessionUseCase implements SessionUseCase on top of a token hash store.
type sessionUseCase struct {
	store        sessionStore.SessionStore
	tokenService sessionService.TokenService
	defaultTTL   time.Duration
}

// Issue creates a session for the subject and returns the plain token.
//
// The token carries 256 bits of entropy and is never stored: only its
// SHA-256 hash goes into the store. A non-positive ttl falls back to the
// configured default.
func (s *sessionUseCase) Issue(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	plainToken, tokenHash, err := s.tokenService.GenerateToken()
	if err != nil {
		return "", err
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := time.Now().UTC()
	session := &sessionDomain.Session{
		ID:        uuid.Must(uuid.NewV7()),
		TokenHash: tokenHash,
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		RevokedAt: nil,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return "", err
	}

	return plainToken, nil
}

// Validate checks a plain token and returns the subject it was issued to.
//
// Unknown, expired, and revoked tokens all return ErrInvalidToken so a
// caller cannot distinguish which condition failed.
func (s *sessionUseCase) Validate(ctx context.Context, plainToken string) (string, error) {
	if plainToken == "" {
		return "", sessionDomain.ErrInvalidToken
	}

	tokenHash := s.tokenService.HashToken(plainToken)

	session, err := s.store.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sessionDomain.ErrSessionNotFound) {
			return "", sessionDomain.ErrInvalidToken
		}
		return "", err
	}

	if !session.Valid(time.Now().UTC()) {
		return "", sessionDomain.ErrInvalidToken
	}

	return session.Subject, nil
}

// Revoke removes the session for the plain token. The token stops
// validating immediately; revoking an unknown token returns
// ErrSessionNotFound.
func (s *sessionUseCase) Revoke(ctx context.Context, plainToken string) error {
	tokenHash := s.tokenService.HashToken(plainToken)
	return s.store.Delete(ctx, tokenHash)
}

// CleanupExpired prunes sessions past their absolute expiry.
func (s *sessionUseCase) CleanupExpired(ctx context.Context) (int, error) {
	return s.store.DeleteExpired(ctx, time.Now().UTC())
}

// NewSessionUseCase creates a new SessionUseCase with the provided
// dependencies. defaultTTL applies when Issue is called without a positive
// ttl.
func NewSessionUseCase(
	store sessionStore.SessionStore,
	tokenService sessionService.TokenService,
	defaultTTL time.Duration,
) SessionUseCase {
	return &sessionUseCase{
		store:        store,
		tokenService: tokenService,
		defaultTTL:   defaultTTL,
	}
}
