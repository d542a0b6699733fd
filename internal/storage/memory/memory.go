// Package memory provides an in-memory Storage implementation. It backs
// tests and small single-process deployments that do not need a database.
package memory

import (
	"context"
	"reflect"
	"sort"
	"strconv"
	"sync"

	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/pipeline"
)

// Store is an in-memory document store keyed per entity-type. Records get
// sequential int64 identifiers. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection

	// OnOperation, when set before the store is shared, is called at the
	// start of every storage call with the operation name and entity-type.
	// Tests use it to inject latency and observe overlap.
	OnOperation func(operation, entityType string)
}

// collection holds the records of one entity-type.
type collection struct {
	records map[int64]pipeline.Record
	nextID  int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
	}
}

func (s *Store) hook(operation, entityType string) {
	if s.OnOperation != nil {
		s.OnOperation(operation, entityType)
	}
}

// coll returns the collection for the entity-type, creating it on first use.
// Caller must hold the write lock.
func (s *Store) coll(entityType string) *collection {
	c, ok := s.collections[entityType]
	if !ok {
		c = &collection{records: make(map[int64]pipeline.Record)}
		s.collections[entityType] = c
	}
	return c
}

// parseID converts the external string identifier to the store's int64 key.
func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid id %q", id)
	}
	return n, nil
}

// cloneRecord returns a shallow copy so callers cannot mutate stored state.
func cloneRecord(record pipeline.Record) pipeline.Record {
	clone := make(pipeline.Record, len(record))
	for k, v := range record {
		clone[k] = v
	}
	return clone
}

// sortedIDs returns the collection's record ids in ascending order.
func (c *collection) sortedIDs() []int64 {
	ids := make([]int64, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fetch returns the record with the given identifier.
func (s *Store) Fetch(ctx context.Context, entityType, id string) (pipeline.Record, error) {
	s.hook("fetch", entityType)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := parseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[entityType]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s %s not found", entityType, id)
	}
	record, ok := c.records[key]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s %s not found", entityType, id)
	}
	return cloneRecord(record), nil
}

// List returns records ordered by identifier, windowed by offset and limit.
func (s *Store) List(
	ctx context.Context,
	entityType string,
	offset, limit int,
) ([]pipeline.Record, error) {
	s.hook("list", entityType)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	records := []pipeline.Record{}
	c, ok := s.collections[entityType]
	if !ok {
		return records, nil
	}

	ids := c.sortedIDs()
	for i := offset; i < len(ids) && len(records) < limit; i++ {
		records = append(records, cloneRecord(c.records[ids[i]]))
	}
	return records, nil
}

// Count returns the number of records for the entity-type.
func (s *Store) Count(ctx context.Context, entityType string) (int64, error) {
	s.hook("count", entityType)
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[entityType]
	if !ok {
		return 0, nil
	}
	return int64(len(c.records)), nil
}

// FindByFields returns the first record (by id order) whose fields equal the
// given values.
func (s *Store) FindByFields(
	ctx context.Context,
	entityType string,
	fields map[string]any,
) (pipeline.Record, error) {
	s.hook("find_by_fields", entityType)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[entityType]
	if ok {
		for _, id := range c.sortedIDs() {
			record := c.records[id]
			if matchesFields(record, fields) {
				return cloneRecord(record), nil
			}
		}
	}
	return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s not found", entityType)
}

func matchesFields(record pipeline.Record, fields map[string]any) bool {
	for k, v := range fields {
		if !reflect.DeepEqual(record[k], v) {
			return false
		}
	}
	return true
}

// Create persists a new record and returns it with its assigned id.
func (s *Store) Create(
	ctx context.Context,
	entityType string,
	payload pipeline.Record,
) (pipeline.Record, error) {
	s.hook("create", entityType)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(entityType, payload), nil
}

// createLocked inserts one record. Caller must hold the write lock.
func (s *Store) createLocked(entityType string, payload pipeline.Record) pipeline.Record {
	c := s.coll(entityType)
	c.nextID++
	record := cloneRecord(payload)
	record["id"] = c.nextID
	c.records[c.nextID] = record
	return cloneRecord(record)
}

// CreateBulk persists all payloads. The write lock makes the batch atomic
// with respect to readers.
func (s *Store) CreateBulk(
	ctx context.Context,
	entityType string,
	payloads []pipeline.Record,
) ([]pipeline.Record, error) {
	s.hook("create_bulk", entityType)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]pipeline.Record, 0, len(payloads))
	for _, payload := range payloads {
		records = append(records, s.createLocked(entityType, payload))
	}
	return records, nil
}

// Update applies the payload's fields to the record with the given id.
func (s *Store) Update(
	ctx context.Context,
	entityType, id string,
	payload pipeline.Record,
) (pipeline.Record, error) {
	s.hook("update", entityType)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := parseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(entityType, key, payload)
}

// updateLocked merges payload fields into one record. Caller must hold the
// write lock.
func (s *Store) updateLocked(
	entityType string,
	key int64,
	payload pipeline.Record,
) (pipeline.Record, error) {
	c, ok := s.collections[entityType]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s %d not found", entityType, key)
	}
	record, ok := c.records[key]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s %d not found", entityType, key)
	}

	for k, v := range payload {
		if k == "id" {
			continue
		}
		record[k] = v
	}
	c.records[key] = record
	return cloneRecord(record), nil
}

// UpdateBulk applies each payload to the record named by its "id" field.
// The batch is atomic: ids are verified before any record changes.
func (s *Store) UpdateBulk(
	ctx context.Context,
	entityType string,
	payloads []pipeline.Record,
) ([]pipeline.Record, error) {
	s.hook("update_bulk", entityType)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]int64, 0, len(payloads))
	for _, payload := range payloads {
		key, err := payloadID(payload)
		if err != nil {
			return nil, err
		}
		c, ok := s.collections[entityType]
		if !ok {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s %d not found", entityType, key)
		}
		if _, ok := c.records[key]; !ok {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "%s %d not found", entityType, key)
		}
		keys = append(keys, key)
	}

	records := make([]pipeline.Record, 0, len(payloads))
	for i, payload := range payloads {
		record, err := s.updateLocked(entityType, keys[i], payload)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// payloadID extracts the int64 identifier from a bulk update payload.
func payloadID(payload pipeline.Record) (int64, error) {
	switch v := payload["id"].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		// JSON numbers decode as float64.
		return int64(v), nil
	case string:
		return parseID(v)
	default:
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "payload id is required")
	}
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, entityType, id string) error {
	s.hook("delete", entityType)
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := parseID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[entityType]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "%s %s not found", entityType, id)
	}
	if _, ok := c.records[key]; !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "%s %s not found", entityType, id)
	}
	delete(c.records, key)
	return nil
}

// DeleteBulk removes all records with the given ids. The batch is atomic:
// ids are verified before any record is removed.
func (s *Store) DeleteBulk(ctx context.Context, entityType string, ids []string) error {
	s.hook("delete_bulk", entityType)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[entityType]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "%s not found", entityType)
	}

	keys := make([]int64, 0, len(ids))
	for _, id := range ids {
		key, err := parseID(id)
		if err != nil {
			return err
		}
		if _, ok := c.records[key]; !ok {
			return apperrors.Wrapf(apperrors.ErrNotFound, "%s %s not found", entityType, id)
		}
		keys = append(keys, key)
	}

	for _, key := range keys {
		delete(c.records, key)
	}
	return nil
}
