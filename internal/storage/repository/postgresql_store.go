package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/autoapi/internal/database"
	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/pipeline"
)

// PostgreSQLStore implements pipeline.Storage for PostgreSQL. Partial
// updates use the jsonb || merge operator and login lookups use jsonb
// containment, so both happen inside the database.
type PostgreSQLStore struct {
	db        *sql.DB
	txManager database.TxManager
}

// Fetch retrieves the record with the given identifier.
func (p *PostgreSQLStore) Fetch(ctx context.Context, entityType, id string) (pipeline.Record, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, p.db)
	query := `SELECT id, data FROM records WHERE entity_type = $1 AND id = $2`

	var recordID int64
	var data []byte
	err = querier.QueryRowContext(ctx, query, entityType, key).Scan(&recordID, &data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s %s not found", entityType, id)
		}
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to fetch %s: %s", entityType, err)
	}

	return decodeRecord(recordID, data)
}

// List retrieves records ordered by identifier, windowed by offset and limit.
func (p *PostgreSQLStore) List(
	ctx context.Context,
	entityType string,
	offset, limit int,
) ([]pipeline.Record, error) {
	querier := database.GetTx(ctx, p.db)
	query := `SELECT id, data FROM records WHERE entity_type = $1 ORDER BY id ASC OFFSET $2 LIMIT $3`

	rows, err := querier.QueryContext(ctx, query, entityType, offset, limit)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to list %s: %s", entityType, err)
	}
	defer rows.Close()

	records := []pipeline.Record{}
	for rows.Next() {
		var recordID int64
		var data []byte
		if err := rows.Scan(&recordID, &data); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to scan %s: %s", entityType, err)
		}
		record, err := decodeRecord(recordID, data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to list %s: %s", entityType, err)
	}

	return records, nil
}

// Count returns the total number of records for the entity-type.
func (p *PostgreSQLStore) Count(ctx context.Context, entityType string) (int64, error) {
	querier := database.GetTx(ctx, p.db)
	query := `SELECT COUNT(*) FROM records WHERE entity_type = $1`

	var count int64
	if err := querier.QueryRowContext(ctx, query, entityType).Scan(&count); err != nil {
		return 0, apperrors.Wrapf(apperrors.ErrStorage, "failed to count %s: %s", entityType, err)
	}
	return count, nil
}

// FindByFields returns the first record whose document contains the given
// field values, using jsonb containment.
func (p *PostgreSQLStore) FindByFields(
	ctx context.Context,
	entityType string,
	fields map[string]any,
) (pipeline.Record, error) {
	filter, err := encodeData(fields)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, p.db)
	query := `SELECT id, data FROM records WHERE entity_type = $1 AND data @> $2::jsonb ORDER BY id ASC LIMIT 1`

	var recordID int64
	var data []byte
	err = querier.QueryRowContext(ctx, query, entityType, filter).Scan(&recordID, &data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s not found", entityType)
		}
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to find %s: %s", entityType, err)
	}

	return decodeRecord(recordID, data)
}

// Create inserts a new record and returns it with its assigned identifier.
func (p *PostgreSQLStore) Create(
	ctx context.Context,
	entityType string,
	payload pipeline.Record,
) (pipeline.Record, error) {
	data, err := encodeData(payload)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, p.db)
	query := `INSERT INTO records (entity_type, data, created_at, updated_at) VALUES ($1, $2, $3, $3) RETURNING id`

	var recordID int64
	now := time.Now().UTC()
	if err := querier.QueryRowContext(ctx, query, entityType, data, now).Scan(&recordID); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to create %s: %s", entityType, err)
	}

	return decodeRecord(recordID, data)
}

// CreateBulk inserts all payloads within one transaction.
func (p *PostgreSQLStore) CreateBulk(
	ctx context.Context,
	entityType string,
	payloads []pipeline.Record,
) ([]pipeline.Record, error) {
	records := make([]pipeline.Record, 0, len(payloads))
	err := p.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, payload := range payloads {
			record, err := p.Create(ctx, entityType, payload)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Update merges the payload's fields into the record's JSON document.
func (p *PostgreSQLStore) Update(
	ctx context.Context,
	entityType, id string,
	payload pipeline.Record,
) (pipeline.Record, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	patch, err := encodeData(payload)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, p.db)
	query := `UPDATE records SET data = data || $3::jsonb, updated_at = $4 WHERE entity_type = $1 AND id = $2 RETURNING id, data`

	var recordID int64
	var data []byte
	err = querier.QueryRowContext(ctx, query, entityType, key, patch, time.Now().UTC()).
		Scan(&recordID, &data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s %s not found", entityType, id)
		}
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to update %s: %s", entityType, err)
	}

	return decodeRecord(recordID, data)
}

// UpdateBulk applies each payload to the record named by its "id" field,
// within one transaction.
func (p *PostgreSQLStore) UpdateBulk(
	ctx context.Context,
	entityType string,
	payloads []pipeline.Record,
) ([]pipeline.Record, error) {
	records := make([]pipeline.Record, 0, len(payloads))
	err := p.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, payload := range payloads {
			key, err := bulkID(payload)
			if err != nil {
				return err
			}
			record, err := p.Update(ctx, entityType, formatID(key), payload)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes the record with the given identifier.
func (p *PostgreSQLStore) Delete(ctx context.Context, entityType, id string) error {
	key, err := parseID(id)
	if err != nil {
		return err
	}

	querier := database.GetTx(ctx, p.db)
	query := `DELETE FROM records WHERE entity_type = $1 AND id = $2`

	result, err := querier.ExecContext(ctx, query, entityType, key)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrStorage, "failed to delete %s: %s", entityType, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrStorage, "failed to delete %s: %s", entityType, err)
	}
	if affected == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "%s %s not found", entityType, id)
	}
	return nil
}

// DeleteBulk removes all records with the given identifiers within one
// transaction; a missing id rolls back the whole batch.
func (p *PostgreSQLStore) DeleteBulk(ctx context.Context, entityType string, ids []string) error {
	return p.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if err := p.Delete(ctx, entityType, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// NewPostgreSQLStore creates a PostgreSQL-backed pipeline.Storage.
func NewPostgreSQLStore(db *sql.DB) *PostgreSQLStore {
	return &PostgreSQLStore{
		db:        db,
		txManager: database.NewTxManager(db),
	}
}
