package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

const failureColumns = `id, batch_id, semester_id, kind, program_id, school_id, item_key, unit_id, unit_code, unit_name, shared, class_ids, class_names,
COALESCE(lecturer_code, '') AS lecturer_code, student_count, credit_hours, duration_minutes, attempted_date, attempted_start_time, attempted_end_time,
assigned_slot_number, attempted_venue_id, reason_code, failure_reason, conflict_details, status, retry_of_failure_id, resolved_at, resolved_by,
resolution_notes, created_at, updated_at`

// UpdateFailureStatusParams describes a guarded status transition.
type UpdateFailureStatusParams struct {
	ID         string
	From       []models.FailureStatus
	To         models.FailureStatus
	ResolvedBy *string
	ResolvedAt *time.Time
	Notes      *string
	UpdatedAt  time.Time
}

// FailureRepository persists scheduling failures and their legacy projection.
type FailureRepository struct {
	db *sqlx.DB
}

// NewFailureRepository constructs the repository.
func NewFailureRepository(db *sqlx.DB) *FailureRepository {
	return &FailureRepository{db: db}
}

func (r *FailureRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert writes one failure record, assigning id, status and timestamps when unset.
func (r *FailureRepository) Insert(ctx context.Context, exec sqlx.ExtContext, failure *models.SchedulingFailure) error {
	if failure == nil {
		return fmt.Errorf("failure payload is nil")
	}
	if failure.ID == "" {
		failure.ID = uuid.NewString()
	}
	if failure.Status == "" {
		failure.Status = models.FailurePending
	}
	now := time.Now().UTC()
	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = now
	}
	failure.UpdatedAt = failure.CreatedAt

	const query = `
INSERT INTO scheduling_failures (id, batch_id, semester_id, kind, program_id, school_id, item_key, unit_id, unit_code, unit_name, shared, class_ids, class_names,
lecturer_code, student_count, credit_hours, duration_minutes, attempted_date, attempted_start_time, attempted_end_time, assigned_slot_number, attempted_venue_id,
reason_code, failure_reason, conflict_details, status, retry_of_failure_id, created_at, updated_at)
VALUES (:id, :batch_id, :semester_id, :kind, :program_id, :school_id, :item_key, :unit_id, :unit_code, :unit_name, :shared, :class_ids, :class_names,
NULLIF(:lecturer_code, ''), :student_count, :credit_hours, :duration_minutes, :attempted_date, :attempted_start_time, :attempted_end_time, :assigned_slot_number, :attempted_venue_id,
:reason_code, :failure_reason, :conflict_details, :status, :retry_of_failure_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, failure); err != nil {
		return fmt.Errorf("insert scheduling failure %s: %w", failure.ItemKey, err)
	}
	return nil
}

// InsertLegacy writes the program/school scoped projection rows.
func (r *FailureRepository) InsertLegacy(ctx context.Context, exec sqlx.ExtContext, rows []models.FailedExamSchedule) error {
	const query = `
INSERT INTO failed_exam_schedules (id, failure_id, semester_id, program_id, school_id, unit_code, unit_name, class_name, student_count, failure_reason, status, created_at)
VALUES (:id, :failure_id, :semester_id, :program_id, :school_id, :unit_code, :unit_name, :class_name, :student_count, :failure_reason, :status, :created_at)`
	target := r.exec(exec)
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, rows[i]); err != nil {
			return fmt.Errorf("insert failed exam schedule %s: %w", rows[i].ClassName, err)
		}
	}
	return nil
}

// FindByID loads one failure.
func (r *FailureRepository) FindByID(ctx context.Context, id string) (*models.SchedulingFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM scheduling_failures WHERE id = $1`
	var failure models.SchedulingFailure
	if err := r.db.GetContext(ctx, &failure, query, id); err != nil {
		return nil, err
	}
	return &failure, nil
}

// FindByIDs loads several failures in id order.
func (r *FailureRepository) FindByIDs(ctx context.Context, ids []string) ([]models.SchedulingFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM scheduling_failures WHERE id = ANY($1) ORDER BY id`
	var failures []models.SchedulingFailure
	if err := r.db.SelectContext(ctx, &failures, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find scheduling failures: %w", err)
	}
	return failures, nil
}

// ListByBatch returns every failure of a batch.
func (r *FailureRepository) ListByBatch(ctx context.Context, batchID string) ([]models.SchedulingFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM scheduling_failures WHERE batch_id = $1 ORDER BY student_count DESC, unit_code, item_key`
	var failures []models.SchedulingFailure
	if err := r.db.SelectContext(ctx, &failures, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch failures: %w", err)
	}
	return failures, nil
}

// List returns a filtered page of failures plus the total match count.
func (r *FailureRepository) List(ctx context.Context, filter models.FailureFilter) ([]models.SchedulingFailure, int, error) {
	args := make([]interface{}, 0, 5)
	conditions := make([]string, 0, 5)
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", len(args)))
	}
	if filter.SemesterID != "" {
		args = append(args, filter.SemesterID)
		conditions = append(conditions, fmt.Sprintf("semester_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ReasonCode != "" {
		args = append(args, filter.ReasonCode)
		conditions = append(conditions, fmt.Sprintf("reason_code = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM scheduling_failures`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count scheduling failures: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM scheduling_failures%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, failureColumns, where, size, (page-1)*size)
	var failures []models.SchedulingFailure
	if err := r.db.SelectContext(ctx, &failures, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list scheduling failures: %w", err)
	}
	return failures, total, nil
}

// UpdateStatus applies a transition only when the current status is one of params.From,
// keeping the legacy projection in step. It returns sql.ErrNoRows when the guard fails.
func (r *FailureRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params UpdateFailureStatusParams) error {
	from := make([]string, len(params.From))
	for i, s := range params.From {
		from[i] = string(s)
	}
	target := r.exec(exec)
	const query = `UPDATE scheduling_failures SET status = $1, resolved_at = $2, resolved_by = $3, resolution_notes = $4, updated_at = $5 WHERE id = $6 AND status = ANY($7)`
	result, err := target.ExecContext(ctx, query, params.To, params.ResolvedAt, params.ResolvedBy, params.Notes, params.UpdatedAt, params.ID, pq.Array(from))
	if err != nil {
		return fmt.Errorf("update failure status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failure status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if _, err := target.ExecContext(ctx, `UPDATE failed_exam_schedules SET status = $1 WHERE failure_id = $2`, params.To, params.ID); err != nil {
		return fmt.Errorf("update failed exam schedule status: %w", err)
	}
	return nil
}

// MarkRetried flips pending failures to retried and reports how many moved.
func (r *FailureRepository) MarkRetried(ctx context.Context, exec sqlx.ExtContext, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, `UPDATE scheduling_failures SET status = 'retried', updated_at = $1 WHERE id = ANY($2) AND status = 'pending'`, at, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark failures retried: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retried rows affected: %w", err)
	}
	if _, err := target.ExecContext(ctx, `UPDATE failed_exam_schedules SET status = 'retried' WHERE failure_id = ANY($1)`, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("mark failed exam schedules retried: %w", err)
	}
	return affected, nil
}

// MarkRetriedByItemKeys flips pending failures of the semester and kind whose item is
// now in the timetable, so a full re-run retires failures left by earlier batches.
func (r *FailureRepository) MarkRetriedByItemKeys(ctx context.Context, exec sqlx.ExtContext, semesterID string, kind models.TimetableKind, itemKeys []string, at time.Time) (int64, error) {
	if len(itemKeys) == 0 {
		return 0, nil
	}
	target := r.exec(exec)
	const legacy = `UPDATE failed_exam_schedules SET status = 'retried' WHERE failure_id IN (SELECT id FROM scheduling_failures WHERE semester_id = $1 AND kind = $2 AND item_key = ANY($3) AND status = 'pending')`
	if _, err := target.ExecContext(ctx, legacy, semesterID, kind, pq.Array(itemKeys)); err != nil {
		return 0, fmt.Errorf("mark stale failed exam schedules retried: %w", err)
	}
	const query = `UPDATE scheduling_failures SET status = 'retried', updated_at = $1 WHERE semester_id = $2 AND kind = $3 AND item_key = ANY($4) AND status = 'pending'`
	result, err := target.ExecContext(ctx, query, at, semesterID, kind, pq.Array(itemKeys))
	if err != nil {
		return 0, fmt.Errorf("mark stale failures retried: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale retried rows affected: %w", err)
	}
	return affected, nil
}

// CountByStatus groups a batch's failures by status.
func (r *FailureRepository) CountByStatus(ctx context.Context, batchID string) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM scheduling_failures WHERE batch_id = $1 GROUP BY status ORDER BY status`
	var rows []models.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query, batchID); err != nil {
		return nil, fmt.Errorf("count failures by status: %w", err)
	}
	return rows, nil
}

// CountByReason groups a batch's failures by conflict kind.
func (r *FailureRepository) CountByReason(ctx context.Context, batchID string) ([]models.ReasonCount, error) {
	const query = `SELECT reason_code, COUNT(*) AS count FROM scheduling_failures WHERE batch_id = $1 GROUP BY reason_code ORDER BY reason_code`
	var rows []models.ReasonCount
	if err := r.db.SelectContext(ctx, &rows, query, batchID); err != nil {
		return nil, fmt.Errorf("count failures by reason: %w", err)
	}
	return rows, nil
}
