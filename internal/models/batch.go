package models

import "time"

// BatchStatus tracks the lifecycle of a scheduling run.
type BatchStatus string

const (
	BatchQueued     BatchStatus = "queued"
	BatchRunning    BatchStatus = "running"
	BatchCompleted  BatchStatus = "completed"
	BatchCancelled  BatchStatus = "cancelled"
	BatchIncomplete BatchStatus = "incomplete"
)

// Terminal reports whether no further work will happen for the batch.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchCancelled || s == BatchIncomplete
}

// SchedulingBatch groups the placements and failures of one run.
type SchedulingBatch struct {
	ID                 string        `db:"id" json:"id"`
	SemesterID         string        `db:"semester_id" json:"semester_id"`
	Kind               TimetableKind `db:"kind" json:"kind"`
	Status             BatchStatus   `db:"status" json:"status"`
	RetriedFromBatchID *string       `db:"retried_from_batch_id" json:"retried_from_batch_id,omitempty"`
	CreatedBy          string        `db:"created_by" json:"created_by"`
	ItemCount          int           `db:"item_count" json:"item_count"`
	PlacedCount        int           `db:"placed_count" json:"placed_count"`
	FailedCount        int           `db:"failed_count" json:"failed_count"`
	SkippedCount       int           `db:"skipped_count" json:"skipped_count"`
	ErrorMessage       *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	StartedAt          *time.Time    `db:"started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// BatchSummary is derived from failure rows on read.
type BatchSummary struct {
	BatchID    string                `json:"batch_id"`
	Status     BatchStatus           `json:"status"`
	Placements int                   `json:"placements"`
	Failures   int                   `json:"failures"`
	ByStatus   map[FailureStatus]int `json:"by_status"`
	ByReason   map[ConflictKind]int  `json:"by_reason"`
}

// StatusCount and ReasonCount are summary query rows.
type StatusCount struct {
	Status FailureStatus `db:"status"`
	Count  int           `db:"count"`
}

type ReasonCount struct {
	Reason ConflictKind `db:"reason_code"`
	Count  int          `db:"count"`
}
