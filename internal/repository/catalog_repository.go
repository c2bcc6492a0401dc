package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// CatalogRepository is the read-only view over the resources the scheduler consumes.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindSemester loads a semester by id.
func (r *CatalogRepository) FindSemester(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, intake_type, academic_year, school_code, is_active, start_date, end_date, exam_start_date, exam_end_date, created_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// ListVenues returns active venues of the given types, smallest first.
func (r *CatalogRepository) ListVenues(ctx context.Context, types []models.VenueType) ([]models.Venue, error) {
	const query = `SELECT id, code, COALESCE(building_id, '') AS building_id, capacity, type, is_active FROM venues WHERE is_active AND type = ANY($1) ORDER BY capacity, code`
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	var venues []models.Venue
	if err := r.db.SelectContext(ctx, &venues, query, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	return venues, nil
}

// ListTimeSlots returns active slots for a timetable kind.
func (r *CatalogRepository) ListTimeSlots(ctx context.Context, kind models.TimetableKind) ([]models.TimeSlot, error) {
	const query = `SELECT id, kind, COALESCE(day, '') AS day, start_time, end_time, status, slot_number, is_active FROM time_slots WHERE is_active AND kind = $1 ORDER BY start_time, slot_number`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, kind); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// ListUnitAssignments returns the semester's active assignments. Common units have a NULL class.
func (r *CatalogRepository) ListUnitAssignments(ctx context.Context, semesterID string) ([]models.UnitAssignment, error) {
	const query = `SELECT ua.id, ua.unit_id, u.code AS unit_code, u.name AS unit_name, u.credit_hours, u.duration_minutes,
ua.semester_id, ua.class_id, c.name AS class_name, ua.program_id, p.school_id, ua.lecturer_code, ua.is_active, ua.assigned_at
FROM unit_assignments ua
JOIN units u ON u.id = ua.unit_id
JOIN programs p ON p.id = ua.program_id
LEFT JOIN classes c ON c.id = ua.class_id
WHERE ua.semester_id = $1 AND ua.is_active
ORDER BY u.code, ua.class_id NULLS FIRST`
	var assignments []models.UnitAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, semesterID); err != nil {
		return nil, fmt.Errorf("list unit assignments: %w", err)
	}
	return assignments, nil
}

// ListClassEnrollments counts distinct active students per unit and class.
func (r *CatalogRepository) ListClassEnrollments(ctx context.Context, semesterID string) ([]models.ClassEnrollment, error) {
	const query = `SELECT e.unit_id, e.class_id, c.name AS class_name, COUNT(DISTINCT e.student_id) AS student_count
FROM enrollments e
JOIN classes c ON c.id = e.class_id
WHERE e.semester_id = $1 AND e.is_active
GROUP BY e.unit_id, e.class_id, c.name
ORDER BY e.unit_id, e.class_id`
	var rows []models.ClassEnrollment
	if err := r.db.SelectContext(ctx, &rows, query, semesterID); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return rows, nil
}

// ListClassMembers returns each class's active students for the student overlap check.
func (r *CatalogRepository) ListClassMembers(ctx context.Context, semesterID string) ([]models.ClassMember, error) {
	const query = `SELECT DISTINCT class_id, student_id FROM enrollments WHERE semester_id = $1 AND is_active ORDER BY class_id, student_id`
	var members []models.ClassMember
	if err := r.db.SelectContext(ctx, &members, query, semesterID); err != nil {
		return nil, fmt.Errorf("list class members: %w", err)
	}
	return members, nil
}

// ListWorkloadLimits returns the semester's active lecturer limits.
func (r *CatalogRepository) ListWorkloadLimits(ctx context.Context, semesterID string) ([]models.LecturerWorkloadLimit, error) {
	const query = `SELECT id, lecturer_code, semester_id, max_units, max_credit_hours, is_active FROM lecturer_workload_limits WHERE semester_id = $1 AND is_active`
	var limits []models.LecturerWorkloadLimit
	if err := r.db.SelectContext(ctx, &limits, query, semesterID); err != nil {
		return nil, fmt.Errorf("list workload limits: %w", err)
	}
	return limits, nil
}
