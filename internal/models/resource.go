package models

import "time"

// TimetableKind discriminates class timetables from exam timetables.
type TimetableKind string

const (
	TimetableClass TimetableKind = "CLASS_TIMETABLE"
	TimetableExam  TimetableKind = "EXAM_TIMETABLE"
)

// Valid reports whether k is a known timetable kind.
func (k TimetableKind) Valid() bool {
	return k == TimetableClass || k == TimetableExam
}

// VenueType distinguishes teaching rooms from exam halls.
type VenueType string

const (
	VenueClassroom VenueType = "CLASSROOM"
	VenueExamRoom  VenueType = "EXAM_ROOM"
	VenueLab       VenueType = "LAB"
)

// Venue is a bookable room.
type Venue struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	BuildingID string    `db:"building_id" json:"building_id"`
	Capacity   int       `db:"capacity" json:"capacity"`
	Type       VenueType `db:"type" json:"type"`
	IsActive   bool      `db:"is_active" json:"is_active"`
}

// LearningMode is the delivery mode of a time slot.
type LearningMode string

const (
	ModePhysical LearningMode = "physical"
	ModeOnline   LearningMode = "online"
)

// TimeSlot is a recurring window. Day is a lowercase weekday name, empty for any day.
// Exam slots are further identified by SlotNumber within a date.
type TimeSlot struct {
	ID         string        `db:"id" json:"id"`
	Kind       TimetableKind `db:"kind" json:"kind"`
	Day        string        `db:"day" json:"day,omitempty"`
	StartTime  TimeOfDay     `db:"start_time" json:"start_time"`
	EndTime    TimeOfDay     `db:"end_time" json:"end_time"`
	Status     LearningMode  `db:"status" json:"status"`
	SlotNumber int           `db:"slot_number" json:"slot_number"`
	IsActive   bool          `db:"is_active" json:"is_active"`
}

// Length returns the slot length in minutes.
func (s TimeSlot) Length() int {
	return int(s.EndTime - s.StartTime)
}

// UnitAssignment binds a unit to a semester and optionally to one class.
// A nil ClassID marks a common unit shared by several classes.
type UnitAssignment struct {
	ID              string    `db:"id" json:"id"`
	UnitID          string    `db:"unit_id" json:"unit_id"`
	UnitCode        string    `db:"unit_code" json:"unit_code"`
	UnitName        string    `db:"unit_name" json:"unit_name"`
	CreditHours     int       `db:"credit_hours" json:"credit_hours"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	SemesterID      string    `db:"semester_id" json:"semester_id"`
	ClassID         *string   `db:"class_id" json:"class_id,omitempty"`
	ClassName       *string   `db:"class_name" json:"class_name,omitempty"`
	ProgramID       string    `db:"program_id" json:"program_id"`
	SchoolID        string    `db:"school_id" json:"school_id"`
	LecturerCode    *string   `db:"lecturer_code" json:"lecturer_code,omitempty"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	AssignedAt      time.Time `db:"assigned_at" json:"assigned_at"`
}

// ClassEnrollment is the count of active students of one class taking one unit.
type ClassEnrollment struct {
	UnitID       string `db:"unit_id" json:"unit_id"`
	ClassID      string `db:"class_id" json:"class_id"`
	ClassName    string `db:"class_name" json:"class_name"`
	StudentCount int    `db:"student_count" json:"student_count"`
}

// ClassMember links a student to a class for the semester.
type ClassMember struct {
	ClassID   string `db:"class_id" json:"class_id"`
	StudentID string `db:"student_id" json:"student_id"`
}

// LecturerWorkloadLimit caps what a lecturer may be assigned in one semester.
type LecturerWorkloadLimit struct {
	ID             string `db:"id" json:"id"`
	LecturerCode   string `db:"lecturer_code" json:"lecturer_code"`
	SemesterID     string `db:"semester_id" json:"semester_id"`
	MaxUnits       int    `db:"max_units" json:"max_units"`
	MaxCreditHours int    `db:"max_credit_hours" json:"max_credit_hours"`
	IsActive       bool   `db:"is_active" json:"is_active"`
}
