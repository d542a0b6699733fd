// Package pipeline composes the session store, result cache, and concurrency
// limiter into the lifecycle of a single generated operation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/autoapi/internal/cache"
	"github.com/allisson/autoapi/internal/entity"
	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/limiter"
	sessionDomain "github.com/allisson/autoapi/internal/session/domain"
	sessionService "github.com/allisson/autoapi/internal/session/service"
	sessionUseCase "github.com/allisson/autoapi/internal/session/usecase"
)

// operationPipeline implements OperationPipeline.
type operationPipeline struct {
	registry        *entity.Registry
	cache           *cache.Cache
	limiter         *limiter.Limiter
	sessions        sessionUseCase.SessionUseCase
	storage         Storage
	passwords       sessionService.PasswordService
	defaultCacheTTL time.Duration
	logger          *slog.Logger
}

// begin runs the admission stages shared by every operation: resolve the
// entity definition, acquire a concurrency slot, and validate the token when
// the entity requires authentication.
//
// On success the returned release function must be called on every exit
// path. On authentication failure the slot has already been released.
func (p *operationPipeline) begin(
	ctx context.Context,
	entityType, token string,
) (*entity.Definition, func(), error) {
	def, err := p.registry.Get(entityType)
	if err != nil {
		return nil, nil, err
	}

	release, err := p.limiter.Acquire(ctx, def.Name)
	if err != nil {
		return nil, nil, err
	}

	if def.RequireAuth {
		if _, err := p.sessions.Validate(ctx, token); err != nil {
			release()
			return nil, nil, err
		}
	}

	return def, release, nil
}

// ttlFor returns the cache TTL for the entity: its own when set, the
// process-wide default otherwise.
func (p *operationPipeline) ttlFor(def *entity.Definition) time.Duration {
	if def.CacheTTL > 0 {
		return def.CacheTTL
	}
	return p.defaultCacheTTL
}

// List returns a window of records, serving repeated queries from the cache.
func (p *operationPipeline) List(
	ctx context.Context,
	entityType, token string,
	offset, limit int,
) ([]Record, error) {
	if offset < 0 || limit < 1 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "offset must be >= 0 and limit >= 1")
	}

	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return nil, err
	}
	defer release()

	key := fmt.Sprintf("all_%d_%d", offset, limit)
	if v, ok := p.cache.Get(def.Name, key); ok {
		if records, ok := v.([]Record); ok {
			return records, nil
		}
	}

	gen := p.cache.Generation(def.Name)
	records, err := p.storage.List(ctx, def.Name, offset, limit)
	if err != nil {
		return nil, err
	}

	p.cache.Put(def.Name, key, records, gen, p.ttlFor(def))
	return records, nil
}

// Count returns the total number of records for the entity-type.
func (p *operationPipeline) Count(ctx context.Context, entityType, token string) (int64, error) {
	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return 0, err
	}
	defer release()

	if v, ok := p.cache.Get(def.Name, "count"); ok {
		if count, ok := v.(int64); ok {
			return count, nil
		}
	}

	gen := p.cache.Generation(def.Name)
	count, err := p.storage.Count(ctx, def.Name)
	if err != nil {
		return 0, err
	}

	p.cache.Put(def.Name, "count", count, gen, p.ttlFor(def))
	return count, nil
}

// Get returns a single record by identifier.
func (p *operationPipeline) Get(ctx context.Context, entityType, token, id string) (Record, error) {
	if id == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "id is required")
	}

	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return nil, err
	}
	defer release()

	key := fmt.Sprintf("id_%s", id)
	if v, ok := p.cache.Get(def.Name, key); ok {
		if record, ok := v.(Record); ok {
			return record, nil
		}
	}

	gen := p.cache.Generation(def.Name)
	record, err := p.storage.Fetch(ctx, def.Name, id)
	if err != nil {
		return nil, err
	}

	p.cache.Put(def.Name, key, record, gen, p.ttlFor(def))
	return record, nil
}

// Create persists a new record. The entity cache is invalidated only after
// the storage write succeeds.
func (p *operationPipeline) Create(
	ctx context.Context,
	entityType, token string,
	payload Record,
) (Record, error) {
	if len(payload) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "payload is required")
	}

	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := p.storage.Create(ctx, def.Name, payload)
	if err != nil {
		return nil, err
	}

	p.cache.Invalidate(def.Name)
	return record, nil
}

// CreateBulk persists all payloads atomically.
func (p *operationPipeline) CreateBulk(
	ctx context.Context,
	entityType, token string,
	payloads []Record,
) ([]Record, error) {
	if len(payloads) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "at least one payload is required")
	}

	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := p.storage.CreateBulk(ctx, def.Name, payloads)
	if err != nil {
		return nil, err
	}

	p.cache.Invalidate(def.Name)
	return records, nil
}

// Update applies the payload's fields to an existing record.
func (p *operationPipeline) Update(
	ctx context.Context,
	entityType, token, id string,
	payload Record,
) (Record, error) {
	if id == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "id is required")
	}
	if len(payload) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "payload is required")
	}

	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := p.storage.Update(ctx, def.Name, id, payload)
	if err != nil {
		return nil, err
	}

	p.cache.Invalidate(def.Name)
	return record, nil
}

// UpdateBulk applies each payload to the record named by its "id" field.
func (p *operationPipeline) UpdateBulk(
	ctx context.Context,
	entityType, token string,
	payloads []Record,
) ([]Record, error) {
	if len(payloads) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "at least one payload is required")
	}

	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := p.storage.UpdateBulk(ctx, def.Name, payloads)
	if err != nil {
		return nil, err
	}

	p.cache.Invalidate(def.Name)
	return records, nil
}

// Delete removes a record by identifier.
func (p *operationPipeline) Delete(ctx context.Context, entityType, token, id string) error {
	if id == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "id is required")
	}

	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return err
	}
	defer release()

	if err := p.storage.Delete(ctx, def.Name, id); err != nil {
		return err
	}

	p.cache.Invalidate(def.Name)
	return nil
}

// DeleteBulk removes all records with the given identifiers atomically.
func (p *operationPipeline) DeleteBulk(
	ctx context.Context,
	entityType, token string,
	ids []string,
) error {
	if len(ids) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "at least one id is required")
	}

	def, release, err := p.begin(ctx, entityType, token)
	if err != nil {
		return err
	}
	defer release()

	if err := p.storage.DeleteBulk(ctx, def.Name, ids); err != nil {
		return err
	}

	p.cache.Invalidate(def.Name)
	return nil
}

// Login verifies credentials against the entity's records and issues a
// session token.
//
// When the entity has a password field its value is verified against the
// stored Argon2id hash; the remaining login fields are matched in storage.
// Without a password field all login fields are matched by equality.
// Lookup misses and password mismatches both return ErrInvalidCredentials
// so a caller cannot probe which field was wrong.
func (p *operationPipeline) Login(
	ctx context.Context,
	entityType string,
	credentials map[string]string,
) (string, error) {
	def, err := p.registry.Get(entityType)
	if err != nil {
		return "", err
	}
	if !def.Login {
		return "", apperrors.Wrapf(apperrors.ErrNotFound, "entity %q has no login", def.Name)
	}

	for _, field := range def.LoginFields {
		if credentials[field] == "" {
			return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "field %q is required", field)
		}
	}

	release, err := p.limiter.Acquire(ctx, def.Name)
	if err != nil {
		return "", err
	}
	defer release()

	// Match everything except the password field in storage.
	lookup := make(map[string]any, len(def.LoginFields))
	for _, field := range def.LoginFields {
		if field == def.PasswordField {
			continue
		}
		lookup[field] = credentials[field]
	}

	record, err := p.storage.FindByFields(ctx, def.Name, lookup)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", sessionDomain.ErrInvalidCredentials
		}
		return "", err
	}

	if def.PasswordField != "" {
		storedHash, _ := record[def.PasswordField].(string)
		if !p.passwords.ComparePassword(credentials[def.PasswordField], storedHash) {
			return "", sessionDomain.ErrInvalidCredentials
		}
	}

	subject := fmt.Sprintf("%s/%v", def.Name, record["id"])
	plainToken, err := p.sessions.Issue(ctx, subject, def.LoginTokenTTL)
	if err != nil {
		return "", err
	}

	p.logger.Info("login succeeded",
		slog.String("entity", def.Name),
		slog.String("subject", subject))

	return plainToken, nil
}

// Logout revokes the caller's session token. Unknown and already-revoked
// tokens fail with the same error as an invalid one.
func (p *operationPipeline) Logout(ctx context.Context, entityType, token string) error {
	def, err := p.registry.Get(entityType)
	if err != nil {
		return err
	}

	release, err := p.limiter.Acquire(ctx, def.Name)
	if err != nil {
		return err
	}
	defer release()

	if token == "" {
		return sessionDomain.ErrInvalidToken
	}

	if err := p.sessions.Revoke(ctx, token); err != nil {
		if errors.Is(err, sessionDomain.ErrSessionNotFound) {
			return sessionDomain.ErrInvalidToken
		}
		return err
	}

	return nil
}

// New creates an OperationPipeline over the given collaborators and
// registers each entity's concurrency cap with the limiter.
func New(
	registry *entity.Registry,
	resultCache *cache.Cache,
	concurrencyLimiter *limiter.Limiter,
	sessions sessionUseCase.SessionUseCase,
	storage Storage,
	passwords sessionService.PasswordService,
	defaultCacheTTL time.Duration,
	logger *slog.Logger,
) OperationPipeline {
	for _, def := range registry.All() {
		concurrencyLimiter.Register(def.Name, def.MaxConcurrent)
	}

	return &operationPipeline{
		registry:        registry,
		cache:           resultCache,
		limiter:         concurrencyLimiter,
		sessions:        sessions,
		storage:         storage,
		passwords:       passwords,
		defaultCacheTTL: defaultCacheTTL,
		logger:          logger,
	}
}
