// Package store provides session persistence. Sessions live in process
// memory; they do not survive a restart and must be re-established by a
// new login.
package store

import (
	"context"
	"sync"
	"time"

	sessionDomain "github.com/allisson/autoapi/internal/session/domain"
)

// SessionStore persists sessions keyed by token hash. It exclusively owns
// the token-to-session mapping; all mutation goes through these methods.
type SessionStore interface {
	// Create persists a new session.
	Create(ctx context.Context, session *sessionDomain.Session) error

	// GetByTokenHash returns the session for the token hash, expired or not.
	// Returns ErrSessionNotFound if no session exists.
	GetByTokenHash(ctx context.Context, tokenHash string) (*sessionDomain.Session, error)

	// Delete removes the session for the token hash.
	// Returns ErrSessionNotFound if no session exists.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteExpired removes sessions whose expiry is before now and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Close stops background work.
	Close() error
}

// MemoryStore is an in-memory SessionStore. Expired sessions are rejected
// lazily at validation time; an optional sweep loop prunes them for memory
// bounds.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionDomain.Session

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMemoryStore creates an in-memory session store. A positive
// sweepInterval starts a background loop that prunes expired sessions;
// zero disables the sweep.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*sessionDomain.Session),
	}
	if sweepInterval > 0 {
		s.ticker = time.NewTicker(sweepInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					_, _ = s.DeleteExpired(context.Background(), time.Now().UTC())
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// Create persists a new session keyed by its token hash.
func (s *MemoryStore) Create(_ context.Context, session *sessionDomain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenHash] = session
	return nil
}

// GetByTokenHash returns the stored session for the token hash.
func (s *MemoryStore) GetByTokenHash(_ context.Context, tokenHash string) (*sessionDomain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, sessionDomain.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session for the token hash.
func (s *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenHash]; !ok {
		return sessionDomain.ErrSessionNotFound
	}
	delete(s.sessions, tokenHash)
	return nil
}

// DeleteExpired prunes sessions whose absolute expiry has passed.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for hash, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, hash)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the sweep loop if one is running.
func (s *MemoryStore) Close() error {
	if s.stopCh != nil {
		close(s.stopCh)
		s.ticker.Stop()
		s.wg.Wait()
		s.stopCh = nil
	}
	return nil
}
