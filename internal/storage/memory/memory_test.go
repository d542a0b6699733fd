package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/pipeline"
)

func TestStore_CreateAndFetch(t *testing.T) {
	ctx := context.Background()
	store := New()

	record, err := store.Create(ctx, "item", pipeline.Record{"name": "widget"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), record["id"])
	assert.Equal(t, "widget", record["name"])

	got, err := store.Fetch(ctx, "item", "1")
	require.NoError(t, err)
	assert.Equal(t, "widget", got["name"])

	// Mutating the returned record must not touch stored state.
	got["name"] = "changed"
	again, err := store.Fetch(ctx, "item", "1")
	require.NoError(t, err)
	assert.Equal(t, "widget", again["name"])
}

func TestStore_FetchErrors(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Fetch(ctx, "item", "1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = store.Fetch(ctx, "item", "not-a-number")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStore_ListAndCount(t *testing.T) {
	ctx := context.Background()
	store := New()

	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx, "item", pipeline.Record{"n": i})
		require.NoError(t, err)
	}

	records, err := store.List(ctx, "item", 0, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, int64(3), records[2]["id"])

	records, err = store.List(ctx, "item", 3, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(4), records[0]["id"])

	count, err := store.Count(ctx, "item")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	// Unknown entity-types list empty and count zero.
	records, err = store.List(ctx, "other", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	count, err = store.Count(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_FindByFields(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Create(ctx, "user", pipeline.Record{"email": "a@example.com", "role": "admin"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "user", pipeline.Record{"email": "b@example.com", "role": "member"})
	require.NoError(t, err)

	record, err := store.FindByFields(ctx, "user", map[string]any{"email": "b@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), record["id"])

	_, err = store.FindByFields(ctx, "user", map[string]any{"email": "missing@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Create(ctx, "item", pipeline.Record{"name": "widget", "qty": 1})
	require.NoError(t, err)

	record, err := store.Update(ctx, "item", "1", pipeline.Record{"qty": 2})
	require.NoError(t, err)
	assert.Equal(t, 2, record["qty"])
	assert.Equal(t, "widget", record["name"])

	// The id field cannot be reassigned by a payload.
	record, err = store.Update(ctx, "item", "1", pipeline.Record{"id": int64(99), "qty": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), record["id"])

	_, err = store.Update(ctx, "item", "42", pipeline.Record{"qty": 2})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_BulkOperations(t *testing.T) {
	ctx := context.Background()
	store := New()

	records, err := store.CreateBulk(ctx, "item", []pipeline.Record{
		{"name": "a"},
		{"name": "b"},
		{"name": "c"},
	})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), records[2]["id"])

	updated, err := store.UpdateBulk(ctx, "item", []pipeline.Record{
		{"id": int64(1), "name": "a2"},
		{"id": float64(2), "name": "b2"},
	})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assert.Equal(t, "a2", updated[0]["name"])
	assert.Equal(t, "b2", updated[1]["name"])

	require.NoError(t, store.DeleteBulk(ctx, "item", []string{"1", "3"}))

	count, err := store.Count(ctx, "item")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_BulkOperationsAreAtomic(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.CreateBulk(ctx, "item", []pipeline.Record{{"name": "a"}, {"name": "b"}})
	require.NoError(t, err)

	// One missing id fails the whole batch without touching the others.
	_, err = store.UpdateBulk(ctx, "item", []pipeline.Record{
		{"id": int64(1), "name": "a2"},
		{"id": int64(42), "name": "missing"},
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	record, err := store.Fetch(ctx, "item", "1")
	require.NoError(t, err)
	assert.Equal(t, "a", record["name"])

	err = store.DeleteBulk(ctx, "item", []string{"1", "42"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	count, err := store.Count(ctx, "item")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Create(ctx, "item", pipeline.Record{"name": "widget"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "item", "1"))
	assert.ErrorIs(t, store.Delete(ctx, "item", "1"), apperrors.ErrNotFound)
}

func TestStore_ContextCancelled(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.List(ctx, "item", 0, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_OnOperationHook(t *testing.T) {
	ctx := context.Background()
	store := New()

	var ops []string
	store.OnOperation = func(operation, entityType string) {
		ops = append(ops, operation+":"+entityType)
	}

	_, err := store.Create(ctx, "item", pipeline.Record{"name": "widget"})
	require.NoError(t, err)
	_, err = store.Fetch(ctx, "item", "1")
	require.NoError(t, err)

	assert.Equal(t, []string{"create:item", "fetch:item"}, ops)
}
