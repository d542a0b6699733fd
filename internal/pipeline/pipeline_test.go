package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/autoapi/internal/cache"
	"github.com/allisson/autoapi/internal/entity"
	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/limiter"
	"github.com/allisson/autoapi/internal/pipeline"
	sessionService "github.com/allisson/autoapi/internal/session/service"
	sessionStore "github.com/allisson/autoapi/internal/session/store"
	sessionUseCase "github.com/allisson/autoapi/internal/session/usecase"
	"github.com/allisson/autoapi/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixture wires a pipeline over the in-memory store with real collaborators.
type fixture struct {
	registry  *entity.Registry
	cache     *cache.Cache
	limiter   *limiter.Limiter
	store     *memory.Store
	sessions  sessionUseCase.SessionUseCase
	passwords sessionService.PasswordService
	pipeline  pipeline.OperationPipeline

	storageCalls atomic.Int64
}

type fixtureOptions struct {
	defaultMax      int
	acquireTimeout  time.Duration
	defaultCacheTTL time.Duration
	storageDelay    time.Duration
}

func newFixture(t *testing.T, opts fixtureOptions, defs ...entity.Definition) *fixture {
	t.Helper()

	f := &fixture{
		registry:  entity.NewRegistry(),
		cache:     cache.New(),
		limiter:   limiter.New(opts.defaultMax, opts.acquireTimeout),
		store:     memory.New(),
		passwords: sessionService.NewPasswordService(),
	}

	for _, def := range defs {
		require.NoError(t, f.registry.Register(def))
	}

	f.store.OnOperation = func(operation, entityType string) {
		f.storageCalls.Add(1)
		if opts.storageDelay > 0 {
			time.Sleep(opts.storageDelay)
		}
	}

	store := sessionStore.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	f.sessions = sessionUseCase.NewSessionUseCase(store, sessionService.NewTokenService(), time.Hour)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.pipeline = pipeline.New(
		f.registry, f.cache, f.limiter, f.sessions,
		f.store, f.passwords, opts.defaultCacheTTL, logger,
	)
	return f
}

func TestPipeline_ReadThroughCaching(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{}, entity.Definition{Name: "item"})

	_, err := f.pipeline.Create(ctx, "item", "", pipeline.Record{"name": "widget"})
	require.NoError(t, err)
	f.storageCalls.Store(0)

	// First read goes to storage, second is served from the cache.
	records, err := f.pipeline.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), f.storageCalls.Load())

	records, err = f.pipeline.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), f.storageCalls.Load())

	// A different window is a different cache key.
	_, err = f.pipeline.List(ctx, "item", "", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.storageCalls.Load())

	// Count and Get have their own keys.
	count, err := f.pipeline.Count(ctx, "item", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = f.pipeline.Count(ctx, "item", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.storageCalls.Load())

	record, err := f.pipeline.Get(ctx, "item", "", "1")
	require.NoError(t, err)
	assert.Equal(t, "widget", record["name"])

	_, err = f.pipeline.Get(ctx, "item", "", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), f.storageCalls.Load())
}

func TestPipeline_NoStaleReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{}, entity.Definition{Name: "item"})

	_, err := f.pipeline.Create(ctx, "item", "", pipeline.Record{"name": "before"})
	require.NoError(t, err)

	// Populate the cache.
	got, err := f.pipeline.Get(ctx, "item", "", "1")
	require.NoError(t, err)
	assert.Equal(t, "before", got["name"])

	_, err = f.pipeline.Update(ctx, "item", "", "1", pipeline.Record{"name": "after"})
	require.NoError(t, err)

	// A read admitted after the write must observe the new value.
	got, err = f.pipeline.Get(ctx, "item", "", "1")
	require.NoError(t, err)
	assert.Equal(t, "after", got["name"])
}

func TestPipeline_FailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{}, entity.Definition{Name: "item"})

	_, err := f.pipeline.Create(ctx, "item", "", pipeline.Record{"name": "widget"})
	require.NoError(t, err)

	// Populate the cache.
	_, err = f.pipeline.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)
	f.storageCalls.Store(0)

	// A write that fails in storage must not invalidate anything.
	_, err = f.pipeline.Update(ctx, "item", "", "42", pipeline.Record{"name": "nope"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.pipeline.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.storageCalls.Load(), "list should still be served from cache")
}

func TestPipeline_TTLRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{},
		entity.Definition{Name: "item", CacheTTL: 30 * time.Millisecond})

	_, err := f.pipeline.Create(ctx, "item", "", pipeline.Record{"name": "widget"})
	require.NoError(t, err)
	f.storageCalls.Store(0)

	_, err = f.pipeline.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.storageCalls.Load())

	// Within the TTL the cached value is served.
	_, err = f.pipeline.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.storageCalls.Load())

	time.Sleep(40 * time.Millisecond)

	// Past the TTL the entry is gone and the read refreshes from storage.
	_, err = f.pipeline.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.storageCalls.Load())
}

func TestPipeline_ConcurrencyBoundHolds(t *testing.T) {
	f := newFixture(t, fixtureOptions{},
		entity.Definition{Name: "item", MaxConcurrent: 2})

	var inFlight, peak atomic.Int64
	f.store.OnOperation = func(operation, entityType string) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
	}

	// Five concurrent readers with distinct cache keys all reach storage.
	var g errgroup.Group
	for i := 0; i < 5; i++ {
		offset := i
		g.Go(func() error {
			_, err := f.pipeline.List(context.Background(), "item", "", offset, 10)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, peak.Load(), int64(2), "no more than two operations in flight")
	assert.Zero(t, inFlight.Load())
}

func TestPipeline_SlotConservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{},
		entity.Definition{Name: "item", MaxConcurrent: 1},
		entity.Definition{Name: "vault", MaxConcurrent: 1, RequireAuth: true})

	// Success, storage failure, validation failure, and auth failure paths.
	_, err := f.pipeline.Create(ctx, "item", "", pipeline.Record{"name": "widget"})
	require.NoError(t, err)

	_, err = f.pipeline.Get(ctx, "item", "", "42")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.pipeline.Get(ctx, "item", "", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.pipeline.Get(ctx, "vault", "bad-token", "1")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Every path released its slot: a fresh acquire succeeds immediately.
	for _, name := range []string{"item", "vault"} {
		release, ok := f.limiter.TryAcquire(name)
		require.True(t, ok, "slot leaked for %s", name)
		release()
	}
}

func TestPipeline_CapacityExceeded(t *testing.T) {
	f := newFixture(t,
		fixtureOptions{acquireTimeout: 20 * time.Millisecond, storageDelay: 150 * time.Millisecond},
		entity.Definition{Name: "item", MaxConcurrent: 1})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := f.pipeline.List(context.Background(), "item", "", 0, 10)
		done <- err
	}()

	<-started
	time.Sleep(30 * time.Millisecond)

	// The slot is held by the slow reader; the acquire timeout rejects us.
	_, err := f.pipeline.List(context.Background(), "item", "", 1, 10)
	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)

	require.NoError(t, <-done)
}

func TestPipeline_AuthRequired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{},
		entity.Definition{Name: "vault", RequireAuth: true})

	_, err := f.pipeline.Create(ctx, "vault", "", pipeline.Record{"name": "secret"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	token, err := f.sessions.Issue(ctx, "user-1", time.Hour)
	require.NoError(t, err)

	record, err := f.pipeline.Create(ctx, "vault", token, pipeline.Record{"name": "secret"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), record["id"])

	require.NoError(t, f.sessions.Revoke(ctx, token))

	_, err = f.pipeline.Get(ctx, "vault", token, "1")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestPipeline_LoginLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{},
		entity.Definition{
			Name:          "account",
			Login:         true,
			LoginFields:   []string{"email", "password"},
			PasswordField: "password",
			LoginTokenTTL: time.Hour,
		})

	hashed, err := f.passwords.HashPassword("s3cret")
	require.NoError(t, err)
	_, err = f.store.Create(ctx, "account", pipeline.Record{
		"email":    "a@example.com",
		"password": hashed,
	})
	require.NoError(t, err)

	t.Run("Failure_UnknownEmail", func(t *testing.T) {
		_, err := f.pipeline.Login(ctx, "account", map[string]string{
			"email":    "nobody@example.com",
			"password": "s3cret",
		})
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Failure_WrongPassword", func(t *testing.T) {
		_, err := f.pipeline.Login(ctx, "account", map[string]string{
			"email":    "a@example.com",
			"password": "wrong",
		})
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Failure_MissingField", func(t *testing.T) {
		_, err := f.pipeline.Login(ctx, "account", map[string]string{
			"email": "a@example.com",
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Success_LoginThenLogout", func(t *testing.T) {
		token, err := f.pipeline.Login(ctx, "account", map[string]string{
			"email":    "a@example.com",
			"password": "s3cret",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		subject, err := f.sessions.Validate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "account/1", subject)

		require.NoError(t, f.pipeline.Logout(ctx, "account", token))

		_, err = f.sessions.Validate(ctx, token)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

		// A second logout with the same token is unauthorized.
		err = f.pipeline.Logout(ctx, "account", token)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Failure_LoginNotEnabled", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{}, entity.Definition{Name: "item"})
		_, err := f.pipeline.Login(ctx, "item", map[string]string{"email": "a@example.com"})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestPipeline_UnknownEntity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{}, entity.Definition{Name: "item"})

	_, err := f.pipeline.List(ctx, "ghost", "", 0, 10)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPipeline_StalePopulateDiscardedUnderRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{}, entity.Definition{Name: "item", MaxConcurrent: 4})

	_, err := f.pipeline.Create(ctx, "item", "", pipeline.Record{"name": "before"})
	require.NoError(t, err)

	// The reader fetches from storage, then a write invalidates before the
	// reader's populate runs. The populate must be discarded so the next
	// read sees the new value.
	var once sync.Once
	readerFetched := make(chan struct{})
	writeDone := make(chan struct{})
	f.store.OnOperation = func(operation, entityType string) {
		if operation == "list" {
			once.Do(func() {
				close(readerFetched)
				<-writeDone
			})
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := f.pipeline.List(ctx, "item", "", 0, 10)
		return err
	})

	<-readerFetched
	// The hook runs before the storage read, but the reader snapshotted its
	// generation already; this write's invalidation advances it.
	_, err = f.pipeline.Update(ctx, "item", "", "1", pipeline.Record{"name": "after"})
	require.NoError(t, err)
	close(writeDone)
	require.NoError(t, g.Wait())

	f.storageCalls.Store(0)
	f.store.OnOperation = func(operation, entityType string) { f.storageCalls.Add(1) }

	records, err := f.pipeline.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "after", records[0]["name"])
	assert.Equal(t, int64(1), f.storageCalls.Load(), "stale populate must not serve this read")
}
