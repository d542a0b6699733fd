package pipeline

import (
	"context"
)

// Record is one stored entity document. Keys are field names; the storage
// implementation assigns the "id" field on create.
type Record = map[string]any

// Storage is the authoritative source of truth for entity records. The
// pipeline treats it as a narrow collaborator; cache entries are purely
// derived from its results.
//
// Implementations report absence with ErrNotFound, malformed parameters with
// ErrInvalidInput, and infrastructure failures wrapped in ErrStorage. Bulk
// operations are atomic: either every payload is applied or none is.
type Storage interface {
	// Fetch returns the record with the given identifier.
	Fetch(ctx context.Context, entityType, id string) (Record, error)

	// List returns records ordered by identifier, windowed by offset/limit.
	List(ctx context.Context, entityType string, offset, limit int) ([]Record, error)

	// Count returns the total number of records for the entity-type.
	Count(ctx context.Context, entityType string) (int64, error)

	// FindByFields returns the first record whose fields equal the given
	// values. Used for credential lookup during login.
	FindByFields(ctx context.Context, entityType string, fields map[string]any) (Record, error)

	// Create persists a new record and returns it with its assigned id.
	Create(ctx context.Context, entityType string, payload Record) (Record, error)

	// CreateBulk persists all payloads atomically and returns them with ids.
	CreateBulk(ctx context.Context, entityType string, payloads []Record) ([]Record, error)

	// Update applies the payload's fields to the record with the given id
	// and returns the updated record.
	Update(ctx context.Context, entityType, id string, payload Record) (Record, error)

	// UpdateBulk applies each payload to the record named by its "id" field,
	// atomically, and returns the updated records.
	UpdateBulk(ctx context.Context, entityType string, payloads []Record) ([]Record, error)

	// Delete removes the record with the given id.
	Delete(ctx context.Context, entityType, id string) error

	// DeleteBulk removes all records with the given ids atomically.
	DeleteBulk(ctx context.Context, entityType string, ids []string) error
}
