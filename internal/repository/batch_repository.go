package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

const batchColumns = `id, semester_id, kind, status, retried_from_batch_id, created_by, item_count, placed_count, failed_count, skipped_count, error_message, created_at, started_at, completed_at`

// BatchRepository persists scheduling batches.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new batch row.
func (r *BatchRepository) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch) error {
	if batch == nil {
		return fmt.Errorf("batch payload is nil")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO scheduling_batches (id, semester_id, kind, status, retried_from_batch_id, created_by, item_count, placed_count, failed_count, skipped_count, error_message, created_at, started_at, completed_at)
VALUES (:id, :semester_id, :kind, :status, :retried_from_batch_id, :created_by, :item_count, :placed_count, :failed_count, :skipped_count, :error_message, :created_at, :started_at, :completed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, batch); err != nil {
		return fmt.Errorf("insert scheduling batch: %w", err)
	}
	return nil
}

// FindByID loads one batch.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.SchedulingBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM scheduling_batches WHERE id = $1`
	var batch models.SchedulingBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListBySemester returns a semester's batches, newest first.
func (r *BatchRepository) ListBySemester(ctx context.Context, semesterID string, limit, offset int) ([]models.SchedulingBatch, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM scheduling_batches WHERE semester_id = $1`, semesterID); err != nil {
		return nil, 0, fmt.Errorf("count scheduling batches: %w", err)
	}
	query := `SELECT ` + batchColumns + ` FROM scheduling_batches WHERE semester_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var batches []models.SchedulingBatch
	if err := r.db.SelectContext(ctx, &batches, query, semesterID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list scheduling batches: %w", err)
	}
	return batches, total, nil
}

// MarkRunning moves a queued batch to running. It returns sql.ErrNoRows when the batch is not queued.
func (r *BatchRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	const query = `UPDATE scheduling_batches SET status = 'running', started_at = $1 WHERE id = $2 AND status = 'queued'`
	return r.expectOne(r.db.ExecContext(ctx, query, startedAt, id))
}

// Finish records the final status and counters of a batch that is still running or queued.
func (r *BatchRepository) Finish(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch) error {
	const query = `
UPDATE scheduling_batches
SET status = :status, item_count = :item_count, placed_count = :placed_count, failed_count = :failed_count,
    skipped_count = :skipped_count, error_message = :error_message, completed_at = :completed_at
WHERE id = :id AND status IN ('queued', 'running')`
	return r.expectOne(sqlx.NamedExecContext(ctx, r.exec(exec), query, batch))
}

// MarkIncomplete flags a batch whose run was interrupted by an infrastructure failure.
// Only running batches and batches that completed without their failures persisted qualify.
func (r *BatchRepository) MarkIncomplete(ctx context.Context, id, message string, at time.Time) error {
	const query = `UPDATE scheduling_batches SET status = 'incomplete', error_message = $1, completed_at = $2 WHERE id = $3 AND status IN ('queued', 'running', 'completed', 'cancelled')`
	return r.expectOne(r.db.ExecContext(ctx, query, message, at, id))
}

func (r *BatchRepository) expectOne(result sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("update scheduling batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("scheduling batch rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
