// Package repository implements pipeline.Storage over PostgreSQL and MySQL.
// All entity-types share one generic records table (entity_type, id, data);
// record fields live in a JSON document column, so no per-entity schema is
// needed.
package repository

import (
	"encoding/json"
	"strconv"

	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/pipeline"
)

// parseID converts the external string identifier to the table's int64 key.
func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid id %q", id)
	}
	return n, nil
}

// encodeData serializes a payload to the JSON document column. The id field
// is held in its own column and stripped from the document.
func encodeData(payload pipeline.Record) ([]byte, error) {
	doc := make(pipeline.Record, len(payload))
	for k, v := range payload {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "payload is not serializable: %s", err)
	}
	return data, nil
}

// decodeRecord rebuilds a record from the id column and the JSON document.
func decodeRecord(id int64, data []byte) (pipeline.Record, error) {
	record := pipeline.Record{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrStorage, "corrupt record %d: %s", id, err)
		}
	}
	record["id"] = id
	return record, nil
}

// formatID renders an int64 key back to the external string form.
func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// bulkID extracts the identifier from a bulk update payload. JSON numbers
// arrive as float64.
func bulkID(payload pipeline.Record) (int64, error) {
	switch v := payload["id"].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return parseID(v)
	default:
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "payload id is required")
	}
}
