package dto

import "github.com/noah-isme/uni-timetable-api/internal/models"

// RunBatchRequest starts a scheduling batch for a semester.
type RunBatchRequest struct {
	SemesterID string               `json:"-" validate:"required"`
	Kind       models.TimetableKind `json:"kind" validate:"required,oneof=CLASS_TIMETABLE EXAM_TIMETABLE"`
	// Dates overrides the semester's default window. Format YYYY-MM-DD.
	Dates       []string `json:"dates" validate:"omitempty,max=62,dive,datetime=2006-01-02"`
	Async       bool     `json:"async"`
	RequestedBy string   `json:"-" validate:"required"`
}

// RetryFailuresRequest re-runs the given failures as a new batch.
type RetryFailuresRequest struct {
	FailureIDs  []string `json:"failureIds" validate:"required,min=1,max=500,dive,uuid"`
	Dates       []string `json:"dates" validate:"omitempty,max=62,dive,datetime=2006-01-02"`
	Async       bool     `json:"async"`
	RequestedBy string   `json:"-" validate:"required"`
}

// ResolveFailureRequest closes a pending failure as resolved or ignored.
type ResolveFailureRequest struct {
	Status     models.FailureStatus `json:"status" validate:"required"`
	Notes      string               `json:"notes" validate:"max=2000"`
	ResolvedBy string               `json:"-"`
}

// ReopenFailureRequest moves a closed failure back to pending.
type ReopenFailureRequest struct {
	Notes string `json:"notes" validate:"required,max=2000"`
	Actor string `json:"-" validate:"required"`
}

// FailureQuery filters the failure queue.
type FailureQuery struct {
	BatchID    string `form:"batchId"`
	SemesterID string `form:"semesterId"`
	Status     string `form:"status" validate:"omitempty,oneof=pending resolved retried ignored"`
	Reason     string `form:"reason"`
	Kind       string `form:"kind" validate:"omitempty,oneof=CLASS_TIMETABLE EXAM_TIMETABLE"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
}

// BatchListQuery pages through a semester's batches.
type BatchListQuery struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// BatchResult is a batch with everything it produced.
type BatchResult struct {
	Batch      *models.SchedulingBatch    `json:"batch"`
	Placements []models.Placement         `json:"placements"`
	Failures   []models.SchedulingFailure `json:"failures"`
	// Skipped lists item keys that were already placed before the batch ran.
	Skipped []string `json:"skipped,omitempty"`
	// Unenrolled lists assignment keys left out because no student is enrolled.
	Unenrolled []string `json:"unenrolled,omitempty"`
}
