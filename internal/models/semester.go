package models

import "time"

// Semester is an academic period. Scheduling always names its semester explicitly.
type Semester struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	IntakeType    string     `db:"intake_type" json:"intake_type"`
	AcademicYear  string     `db:"academic_year" json:"academic_year"`
	SchoolCode    string     `db:"school_code" json:"school_code"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	StartDate     time.Time  `db:"start_date" json:"start_date"`
	EndDate       time.Time  `db:"end_date" json:"end_date"`
	ExamStartDate *time.Time `db:"exam_start_date" json:"exam_start_date,omitempty"`
	ExamEndDate   *time.Time `db:"exam_end_date" json:"exam_end_date,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
