package scheduler

import (
	"time"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func venue(id string, capacity int) models.Venue {
	return models.Venue{ID: id, Code: "V-" + id, Capacity: capacity, Type: models.VenueClassroom, IsActive: true}
}

func slot(id string, number int, start, end models.TimeOfDay) models.TimeSlot {
	return models.TimeSlot{ID: id, Kind: models.TimetableClass, StartTime: start, EndTime: end, SlotNumber: number, Status: models.ModePhysical, IsActive: true}
}

func item(unit string, students int, classID, lecturer string) SchedulableItem {
	scope := PerClass{ClassID: classID}
	return SchedulableItem{
		Key:          ItemKey(unit, scope),
		Kind:         models.TimetableClass,
		SemesterID:   "sem-1",
		UnitID:       unit,
		UnitCode:     unit,
		UnitName:     "Unit " + unit,
		Scope:        scope,
		ClassNames:   []string{classID},
		LecturerCode: lecturer,
		StudentCount: students,
		CreditHours:  3,
	}
}

func baseInput(items ...SchedulableItem) Input {
	return Input{
		BatchID:    "batch-1",
		SemesterID: "sem-1",
		Kind:       models.TimetableClass,
		Items:      items,
		Dates:      []time.Time{monday},
		Slots:      []models.TimeSlot{slot("s1", 1, models.Clock(8, 0), models.Clock(10, 0))},
		Venues:     []models.Venue{venue("v1", 45)},
	}
}
