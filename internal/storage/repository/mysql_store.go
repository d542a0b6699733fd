package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/autoapi/internal/database"
	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/pipeline"
)

// MySQLStore implements pipeline.Storage for MySQL. Partial updates use
// JSON_MERGE_PATCH and login lookups use JSON_CONTAINS; MySQL has no
// RETURNING, so writes re-read the row.
type MySQLStore struct {
	db        *sql.DB
	txManager database.TxManager
}

// Fetch retrieves the record with the given identifier.
func (m *MySQLStore) Fetch(ctx context.Context, entityType, id string) (pipeline.Record, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, m.db)
	query := `SELECT id, data FROM records WHERE entity_type = ? AND id = ?`

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
func (m *MySQLStore) List(
	ctx context.Context,
	entityType string,
	offset, limit int,
) ([]pipeline.Record, error) {
	querier := database.GetTx(ctx, m.db)
	query := `SELECT id, data FROM records WHERE entity_type = ? ORDER BY id ASC LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, entityType, limit, offset)
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
func (m *MySQLStore) Count(ctx context.Context, entityType string) (int64, error) {
	querier := database.GetTx(ctx, m.db)
	query := `SELECT COUNT(*) FROM records WHERE entity_type = ?`

	var count int64
	if err := querier.QueryRowContext(ctx, query, entityType).Scan(&count); err != nil {
		return 0, apperrors.Wrapf(apperrors.ErrStorage, "failed to count %s: %s", entityType, err)
	}
	return count, nil
}

// FindByFields returns the first record whose document contains the given
// field values.
func (m *MySQLStore) FindByFields(
	ctx context.Context,
	entityType string,
	fields map[string]any,
) (pipeline.Record, error) {
	filter, err := encodeData(fields)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, m.db)
	query := `SELECT id, data FROM records WHERE entity_type = ? AND JSON_CONTAINS(data, CAST(? AS JSON)) ORDER BY id ASC LIMIT 1`

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
func (m *MySQLStore) Create(
	ctx context.Context,
	entityType string,
	payload pipeline.Record,
) (pipeline.Record, error) {
	data, err := encodeData(payload)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, m.db)
	query := `INSERT INTO records (entity_type, data, created_at, updated_at) VALUES (?, ?, ?, ?)`

	now := time.Now().UTC()
	result, err := querier.ExecContext(ctx, query, entityType, data, now, now)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to create %s: %s", entityType, err)
	}

	recordID, err := result.LastInsertId()
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to create %s: %s", entityType, err)
	}

	return decodeRecord(recordID, data)
}

// CreateBulk inserts all payloads within one transaction.
func (m *MySQLStore) CreateBulk(
	ctx context.Context,
	entityType string,
	payloads []pipeline.Record,
) ([]pipeline.Record, error) {
	records := make([]pipeline.Record, 0, len(payloads))
	err := m.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, payload := range payloads {
			record, err := m.Create(ctx, entityType, payload)
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

// Update merges the payload's fields into the record's JSON document and
// re-reads the row.
func (m *MySQLStore) Update(
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

	querier := database.GetTx(ctx, m.db)
	query := `UPDATE records SET data = JSON_MERGE_PATCH(data, CAST(? AS JSON)), updated_at = ? WHERE entity_type = ? AND id = ?`

	result, err := querier.ExecContext(ctx, query, patch, time.Now().UTC(), entityType, key)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to update %s: %s", entityType, err)
	}

	// RowsAffected is zero both for a missing row and for a no-op patch, so
	// absence is decided by the follow-up read.
	if _, err := result.RowsAffected(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorage, "failed to update %s: %s", entityType, err)
	}

	return m.Fetch(ctx, entityType, id)
}

// UpdateBulk applies each payload to the record named by its "id" field,
// within one transaction.
func (m *MySQLStore) UpdateBulk(
	ctx context.Context,
	entityType string,
	payloads []pipeline.Record,
) ([]pipeline.Record, error) {
	records := make([]pipeline.Record, 0, len(payloads))
	err := m.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, payload := range payloads {
			key, err := bulkID(payload)
			if err != nil {
				return err
			}
			record, err := m.Update(ctx, entityType, formatID(key), payload)
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
func (m *MySQLStore) Delete(ctx context.Context, entityType, id string) error {
	key, err := parseID(id)
	if err != nil {
		return err
	}

	querier := database.GetTx(ctx, m.db)
	query := `DELETE FROM records WHERE entity_type = ? AND id = ?`

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
func (m *MySQLStore) DeleteBulk(ctx context.Context, entityType string, ids []string) error {
	return m.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if err := m.Delete(ctx, entityType, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// NewMySQLStore creates a MySQL-backed pipeline.Storage.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:        db,
		txManager: database.NewTxManager(db),
	}
}
