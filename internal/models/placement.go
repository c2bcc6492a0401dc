package models

import (
	"time"

	"github.com/lib/pq"
)

// Placement is a committed assignment of a schedulable item to a date, slot, venue and lecturer.
// Unit, class and venue details are copied in so timetables render without joins.
type Placement struct {
	ID            string         `db:"id" json:"id"`
	BatchID       string         `db:"batch_id" json:"batch_id"`
	SemesterID    string         `db:"semester_id" json:"semester_id"`
	Kind          TimetableKind  `db:"kind" json:"kind"`
	ItemKey       string         `db:"item_key" json:"item_key"`
	UnitID        string         `db:"unit_id" json:"unit_id"`
	UnitCode      string         `db:"unit_code" json:"unit_code"`
	UnitName      string         `db:"unit_name" json:"unit_name"`
	ClassIDs      pq.StringArray `db:"class_ids" json:"class_ids"`
	ClassNames    pq.StringArray `db:"class_names" json:"class_names"`
	LecturerCode  string         `db:"lecturer_code" json:"lecturer_code,omitempty"`
	StudentCount  int            `db:"student_count" json:"student_count"`
	CreditHours   int            `db:"credit_hours" json:"credit_hours"`
	VenueID       string         `db:"venue_id" json:"venue_id"`
	VenueCode     string         `db:"venue_code" json:"venue_code"`
	VenueCapacity int            `db:"venue_capacity" json:"venue_capacity"`
	TimeSlotID    string         `db:"time_slot_id" json:"time_slot_id"`
	SlotNumber    int            `db:"slot_number" json:"slot_number"`
	Date          time.Time      `db:"scheduled_date" json:"date"`
	StartTime     TimeOfDay      `db:"start_time" json:"start_time"`
	EndTime       TimeOfDay      `db:"end_time" json:"end_time"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// DateKey formats the placement date for grouping.
func (p Placement) DateKey() string {
	return DateKey(p.Date)
}

// DateKey normalises a date to YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
