package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

const placementColumns = `id, batch_id, semester_id, kind, item_key, unit_id, unit_code, unit_name, class_ids, class_names,
COALESCE(lecturer_code, '') AS lecturer_code, student_count, credit_hours, venue_id, venue_code, venue_capacity,
time_slot_id, slot_number, scheduled_date, start_time, end_time, created_at`

// PlacementRepository persists committed placements.
type PlacementRepository struct {
	db *sqlx.DB
}

// NewPlacementRepository constructs the repository.
func NewPlacementRepository(db *sqlx.DB) *PlacementRepository {
	return &PlacementRepository{db: db}
}

func (r *PlacementRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch writes placements, normally inside the orchestrator's transaction.
func (r *PlacementRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, placements []models.Placement) error {
	if len(placements) == 0 {
		return nil
	}
	const query = `
INSERT INTO placements (id, batch_id, semester_id, kind, item_key, unit_id, unit_code, unit_name, class_ids, class_names, lecturer_code,
student_count, credit_hours, venue_id, venue_code, venue_capacity, time_slot_id, slot_number, scheduled_date, start_time, end_time, created_at)
VALUES (:id, :batch_id, :semester_id, :kind, :item_key, :unit_id, :unit_code, :unit_name, :class_ids, :class_names, NULLIF(:lecturer_code, ''),
:student_count, :credit_hours, :venue_id, :venue_code, :venue_capacity, :time_slot_id, :slot_number, :scheduled_date, :start_time, :end_time, :created_at)`
	target := r.exec(exec)
	now := time.Now().UTC()
	for i := range placements {
		if placements[i].CreatedAt.IsZero() {
			placements[i].CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, placements[i]); err != nil {
			return fmt.Errorf("insert placement %s: %w", placements[i].ItemKey, err)
		}
	}
	return nil
}

// ListBySemester returns every committed placement of a semester and kind, the seed of the next batch.
func (r *PlacementRepository) ListBySemester(ctx context.Context, semesterID string, kind models.TimetableKind) ([]models.Placement, error) {
	query := `SELECT ` + placementColumns + ` FROM placements WHERE semester_id = $1 AND kind = $2 ORDER BY scheduled_date, start_time, venue_code`
	var placements []models.Placement
	if err := r.db.SelectContext(ctx, &placements, query, semesterID, kind); err != nil {
		return nil, fmt.Errorf("list semester placements: %w", err)
	}
	return placements, nil
}

// ListByBatch returns the placements a batch committed.
func (r *PlacementRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Placement, error) {
	query := `SELECT ` + placementColumns + ` FROM placements WHERE batch_id = $1 ORDER BY scheduled_date, start_time, venue_code`
	var placements []models.Placement
	if err := r.db.SelectContext(ctx, &placements, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch placements: %w", err)
	}
	return placements, nil
}

// CountByBatch returns how many placements a batch committed.
func (r *PlacementRepository) CountByBatch(ctx context.Context, batchID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM placements WHERE batch_id = $1`, batchID); err != nil {
		return 0, fmt.Errorf("count batch placements: %w", err)
	}
	return count, nil
}
