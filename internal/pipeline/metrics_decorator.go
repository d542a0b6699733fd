package pipeline

import (
	"context"
	"time"

	"github.com/allisson/autoapi/internal/metrics"
)

// pipelineWithMetrics decorates OperationPipeline with metrics instrumentation.
type pipelineWithMetrics struct {
	next    OperationPipeline
	metrics metrics.BusinessMetrics
}

// NewWithMetrics wraps an OperationPipeline with metrics recording. Each
// operation is counted and timed under the entity-type as the metric domain.
func NewWithMetrics(pipeline OperationPipeline, m metrics.BusinessMetrics) OperationPipeline {
	return &pipelineWithMetrics{
		next:    pipeline,
		metrics: m,
	}
}

// record emits the counter and duration samples for one finished operation.
func (p *pipelineWithMetrics) record(
	ctx context.Context,
	entityType, operation string,
	start time.Time,
	err error,
) {
	status := "success"
	if err != nil {
		status = "error"
	}

	p.metrics.RecordOperation(ctx, entityType, operation, status)
	p.metrics.RecordDuration(ctx, entityType, operation, time.Since(start), status)
}

// List records metrics for list operations.
func (p *pipelineWithMetrics) List(
	ctx context.Context,
	entityType, token string,
	offset, limit int,
) ([]Record, error) {
	start := time.Now()
	records, err := p.next.List(ctx, entityType, token, offset, limit)
	p.record(ctx, entityType, "list", start, err)
	return records, err
}

// Count records metrics for count operations.
func (p *pipelineWithMetrics) Count(ctx context.Context, entityType, token string) (int64, error) {
	start := time.Now()
	count, err := p.next.Count(ctx, entityType, token)
	p.record(ctx, entityType, "count", start, err)
	return count, err
}

// Get records metrics for single-record reads.
func (p *pipelineWithMetrics) Get(ctx context.Context, entityType, token, id string) (Record, error) {
	start := time.Now()
	record, err := p.next.Get(ctx, entityType, token, id)
	p.record(ctx, entityType, "get", start, err)
	return record, err
}

// Create records metrics for create operations.
func (p *pipelineWithMetrics) Create(
	ctx context.Context,
	entityType, token string,
	payload Record,
) (Record, error) {
	start := time.Now()
	record, err := p.next.Create(ctx, entityType, token, payload)
	p.record(ctx, entityType, "create", start, err)
	return record, err
}

// CreateBulk records metrics for bulk create operations.
func (p *pipelineWithMetrics) CreateBulk(
	ctx context.Context,
	entityType, token string,
	payloads []Record,
) ([]Record, error) {
	start := time.Now()
	records, err := p.next.CreateBulk(ctx, entityType, token, payloads)
	p.record(ctx, entityType, "create_bulk", start, err)
	return records, err
}

// Update records metrics for update operations.
func (p *pipelineWithMetrics) Update(
	ctx context.Context,
	entityType, token, id string,
	payload Record,
) (Record, error) {
	start := time.Now()
	record, err := p.next.Update(ctx, entityType, token, id, payload)
	p.record(ctx, entityType, "update", start, err)
	return record, err
}

// UpdateBulk records metrics for bulk update operations.
func (p *pipelineWithMetrics) UpdateBulk(
	ctx context.Context,
	entityType, token string,
	payloads []Record,
) ([]Record, error) {
	start := time.Now()
	records, err := p.next.UpdateBulk(ctx, entityType, token, payloads)
	p.record(ctx, entityType, "update_bulk", start, err)
	return records, err
}

// Delete records metrics for delete operations.
func (p *pipelineWithMetrics) Delete(ctx context.Context, entityType, token, id string) error {
	start := time.Now()
	err := p.next.Delete(ctx, entityType, token, id)
	p.record(ctx, entityType, "delete", start, err)
	return err
}

// DeleteBulk records metrics for bulk delete operations.
func (p *pipelineWithMetrics) DeleteBulk(
	ctx context.Context,
	entityType, token string,
	ids []string,
) error {
	start := time.Now()
	err := p.next.DeleteBulk(ctx, entityType, token, ids)
	p.record(ctx, entityType, "delete_bulk", start, err)
	return err
}

// Login records metrics for login operations.
func (p *pipelineWithMetrics) Login(
	ctx context.Context,
	entityType string,
	credentials map[string]string,
) (string, error) {
	start := time.Now()
	plainToken, err := p.next.Login(ctx, entityType, credentials)
	p.record(ctx, entityType, "login", start, err)
	return plainToken, err
}

// Logout records metrics for logout operations.
func (p *pipelineWithMetrics) Logout(ctx context.Context, entityType, token string) error {
	start := time.Now()
	err := p.next.Logout(ctx, entityType, token)
	p.record(ctx, entityType, "logout", start, err)
	return err
}
