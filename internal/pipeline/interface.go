package pipeline

import (
	"context"
)

// OperationPipeline runs every generated operation through the shared
// substrate in a fixed order: acquire a concurrency slot, validate the
// session token when the entity-type requires authentication, consult or
// update the result cache, invoke storage, invalidate the cache on a
// successful write, and release the slot on every exit path.
//
// entityType selects the registered entity definition; token is the raw
// bearer token from the request (empty when the caller sent none).
type OperationPipeline interface {
	// List returns a window of records, cached under "all_{offset}_{limit}".
	List(ctx context.Context, entityType, token string, offset, limit int) ([]Record, error)

	// Count returns the total record count, cached under "count".
	Count(ctx context.Context, entityType, token string) (int64, error)

	// Get returns one record by id, cached under "id_{id}".
	Get(ctx context.Context, entityType, token, id string) (Record, error)

	// Create persists a new record and invalidates the entity's cache.
	Create(ctx context.Context, entityType, token string, payload Record) (Record, error)

	// CreateBulk persists all payloads atomically and invalidates the cache.
	CreateBulk(ctx context.Context, entityType, token string, payloads []Record) ([]Record, error)

	// Update applies a partial payload to the record with the given id.
	Update(ctx context.Context, entityType, token, id string, payload Record) (Record, error)

	// UpdateBulk applies each payload to the record named by its "id" field.
	UpdateBulk(ctx context.Context, entityType, token string, payloads []Record) ([]Record, error)

	// Delete removes the record with the given id.
	Delete(ctx context.Context, entityType, token, id string) error

	// DeleteBulk removes all records with the given ids atomically.
	DeleteBulk(ctx context.Context, entityType, token string, ids []string) error

	// Login verifies credentials against the entity's records and returns a
	// fresh session token on success.
	Login(ctx context.Context, entityType string, credentials map[string]string) (string, error)

	// Logout revokes the caller's session token.
	Logout(ctx context.Context, entityType, token string) error
}
