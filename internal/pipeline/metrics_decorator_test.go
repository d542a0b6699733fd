package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/autoapi/internal/entity"
	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/pipeline"
)

// recordingMetrics captures the operation samples emitted by the decorator.
type recordingMetrics struct {
	mu         sync.Mutex
	operations []string
	statuses   []string
}

func (r *recordingMetrics) RecordOperation(_ context.Context, domain, operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, domain+":"+operation)
	r.statuses = append(r.statuses, status)
}

func (r *recordingMetrics) RecordDuration(
	_ context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
}

func TestPipelineWithMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{}, entity.Definition{Name: "item"})

	m := &recordingMetrics{}
	instrumented := pipeline.NewWithMetrics(f.pipeline, m)

	_, err := instrumented.Create(ctx, "item", "", pipeline.Record{"name": "widget"})
	require.NoError(t, err)

	_, err = instrumented.List(ctx, "item", "", 0, 10)
	require.NoError(t, err)

	_, err = instrumented.Get(ctx, "item", "", "42")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.Equal(t, []string{"item:create", "item:list", "item:get"}, m.operations)
	assert.Equal(t, []string{"success", "success", "error"}, m.statuses)
}
