package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ConflictKind names why a candidate placement was rejected or an item could not be placed.
type ConflictKind string

const (
	ConflictCapacityExceeded ConflictKind = "CAPACITY_EXCEEDED"
	ConflictVenue            ConflictKind = "VENUE_CONFLICT"
	ConflictLecturer         ConflictKind = "LECTURER_CONFLICT"
	ConflictStudentOverlap   ConflictKind = "STUDENT_OVERLAP_CONFLICT"
	ConflictWorkloadExceeded ConflictKind = "WORKLOAD_LIMIT_EXCEEDED"
	ConflictNoVenueCapacity  ConflictKind = "NO_VENUE_CAPACITY"
	ConflictNoEligibleSlot   ConflictKind = "NO_ELIGIBLE_SLOT"
	ConflictBatchCancelled   ConflictKind = "BATCH_CANCELLED"
)

// Conflict is one violated constraint, referencing the resource and placement it collided with.
type Conflict struct {
	Kind         ConflictKind `json:"kind"`
	Message      string       `json:"message"`
	PlacementID  string       `json:"placement_id,omitempty"`
	UnitCode     string       `json:"unit_code,omitempty"`
	ResourceType string       `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
}

// ConflictDetails is the structured cause stored with a failure as JSONB.
type ConflictDetails struct {
	Kind            ConflictKind         `json:"kind"`
	Conflicts       []Conflict           `json:"conflicts,omitempty"`
	KindCounts      map[ConflictKind]int `json:"kind_counts,omitempty"`
	CandidatesTried int                  `json:"candidates_tried"`
	VenueCode       string               `json:"venue_code,omitempty"`
}

// Value encodes the details as JSON.
func (d ConflictDetails) Value() (driver.Value, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal conflict details: %w", err)
	}
	return raw, nil
}

// Scan decodes a JSON or JSONB column.
func (d *ConflictDetails) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = ConflictDetails{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("conflict details: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*d = ConflictDetails{}
		return nil
	}
	return json.Unmarshal(raw, d)
}

// FailureStatus is the resolution state of a failure.
type FailureStatus string

const (
	FailurePending  FailureStatus = "pending"
	FailureResolved FailureStatus = "resolved"
	FailureRetried  FailureStatus = "retried"
	FailureIgnored  FailureStatus = "ignored"
)

// Valid reports whether s is a known status.
func (s FailureStatus) Valid() bool {
	switch s {
	case FailurePending, FailureResolved, FailureRetried, FailureIgnored:
		return true
	}
	return false
}

// SchedulingFailure records one item a batch could not place. Both timetable kinds share the record.
type SchedulingFailure struct {
	ID                  string          `db:"id" json:"id"`
	BatchID             string          `db:"batch_id" json:"batch_id"`
	SemesterID          string          `db:"semester_id" json:"semester_id"`
	Kind                TimetableKind   `db:"kind" json:"kind"`
	ProgramID           string          `db:"program_id" json:"program_id"`
	SchoolID            string          `db:"school_id" json:"school_id"`
	ItemKey             string          `db:"item_key" json:"item_key"`
	UnitID              string          `db:"unit_id" json:"unit_id"`
	UnitCode            string          `db:"unit_code" json:"unit_code"`
	UnitName            string          `db:"unit_name" json:"unit_name"`
	Shared              bool            `db:"shared" json:"shared"`
	ClassIDs            pq.StringArray  `db:"class_ids" json:"class_ids"`
	ClassNames          pq.StringArray  `db:"class_names" json:"class_names"`
	LecturerCode        string          `db:"lecturer_code" json:"lecturer_code,omitempty"`
	StudentCount        int             `db:"student_count" json:"student_count"`
	CreditHours         int             `db:"credit_hours" json:"credit_hours"`
	DurationMinutes     int             `db:"duration_minutes" json:"duration_minutes"`
	AttemptedDate       *time.Time      `db:"attempted_date" json:"attempted_date,omitempty"`
	AttemptedStartTime  *TimeOfDay      `db:"attempted_start_time" json:"attempted_start_time,omitempty"`
	AttemptedEndTime    *TimeOfDay      `db:"attempted_end_time" json:"attempted_end_time,omitempty"`
	AttemptedSlotNumber *int            `db:"assigned_slot_number" json:"assigned_slot_number,omitempty"`
	AttemptedVenueID    *string         `db:"attempted_venue_id" json:"attempted_venue_id,omitempty"`
	ReasonCode          ConflictKind    `db:"reason_code" json:"reason_code"`
	FailureReason       string          `db:"failure_reason" json:"failure_reason"`
	ConflictDetails     ConflictDetails `db:"conflict_details" json:"conflict_details"`
	Status              FailureStatus   `db:"status" json:"status"`
	RetryOfFailureID    *string         `db:"retry_of_failure_id" json:"retry_of_failure_id,omitempty"`
	ResolvedAt          *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy          *string         `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolutionNotes     *string         `db:"resolution_notes" json:"resolution_notes,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// FailedExamSchedule is the program/school scoped projection of a failure, one row per class name.
type FailedExamSchedule struct {
	ID            string        `db:"id" json:"id"`
	FailureID     string        `db:"failure_id" json:"failure_id"`
	SemesterID    string        `db:"semester_id" json:"semester_id"`
	ProgramID     string        `db:"program_id" json:"program_id"`
	SchoolID      string        `db:"school_id" json:"school_id"`
	UnitCode      string        `db:"unit_code" json:"unit_code"`
	UnitName      string        `db:"unit_name" json:"unit_name"`
	ClassName     string        `db:"class_name" json:"class_name"`
	StudentCount  int           `db:"student_count" json:"student_count"`
	FailureReason string        `db:"failure_reason" json:"failure_reason"`
	Status        FailureStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// FailureFilter narrows failure listings.
type FailureFilter struct {
	BatchID    string
	SemesterID string
	Status     FailureStatus
	ReasonCode ConflictKind
	Kind       TimetableKind
	Page       int
	PageSize   int
}
