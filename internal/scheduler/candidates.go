package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// Candidate is one (date, slot, venue) tuple the allocator may try.
type Candidate struct {
	Date  time.Time
	Slot  models.TimeSlot
	Venue models.Venue
	Start models.TimeOfDay
	End   models.TimeOfDay
}

// BuildCandidates expands the item's eligible tuples in allocation order:
// date, slot start, venue capacity, then slot number, slot id, venue code and venue id.
// When nothing is eligible it returns the conflict that explains why.
func BuildCandidates(item SchedulableItem, dates []time.Time, slots []models.TimeSlot, venues []models.Venue) ([]Candidate, *models.Conflict) {
	eligible := eligibleVenues(item, venues)
	if len(eligible) == 0 {
		largest := 0
		for _, v := range venues {
			if v.IsActive && v.Capacity > largest {
				largest = v.Capacity
			}
		}
		return nil, &models.Conflict{
			Kind:         models.ConflictNoVenueCapacity,
			Message:      fmt.Sprintf("no active venue holds %d students, largest capacity is %d", item.StudentCount, largest),
			ResourceType: "venue",
		}
	}

	var out []Candidate
	for _, date := range normaliseDates(dates) {
		weekday := strings.ToLower(date.Weekday().String())
		for _, slot := range slots {
			start, end, ok := slotWindow(item, slot, weekday)
			if !ok {
				continue
			}
			for _, venue := range eligible {
				out = append(out, Candidate{Date: date, Slot: slot, Venue: venue, Start: start, End: end})
			}
		}
	}
	if len(out) == 0 {
		return nil, &models.Conflict{
			Kind:         models.ConflictNoEligibleSlot,
			Message:      fmt.Sprintf("no %s slot on the requested dates fits %d minutes", kindLabel(item.Kind), item.DurationMinutes),
			ResourceType: "time_slot",
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		ca, cb := out[a], out[b]
		switch {
		case !ca.Date.Equal(cb.Date):
			return ca.Date.Before(cb.Date)
		case ca.Start != cb.Start:
			return ca.Start < cb.Start
		case ca.Venue.Capacity != cb.Venue.Capacity:
			return ca.Venue.Capacity < cb.Venue.Capacity
		case ca.Slot.SlotNumber != cb.Slot.SlotNumber:
			return ca.Slot.SlotNumber < cb.Slot.SlotNumber
		case ca.Slot.ID != cb.Slot.ID:
			return ca.Slot.ID < cb.Slot.ID
		case ca.Venue.Code != cb.Venue.Code:
			return ca.Venue.Code < cb.Venue.Code
		default:
			return ca.Venue.ID < cb.Venue.ID
		}
	})
	return out, nil
}

func eligibleVenues(item SchedulableItem, venues []models.Venue) []models.Venue {
	var out []models.Venue
	for _, v := range venues {
		if v.IsActive && v.Capacity >= item.StudentCount {
			out = append(out, v)
		}
	}
	return out
}

// slotWindow returns the range the item would occupy in slot. A positive duration
// starts at the slot start and must fit inside the slot.
func slotWindow(item SchedulableItem, slot models.TimeSlot, weekday string) (models.TimeOfDay, models.TimeOfDay, bool) {
	if !slot.IsActive || slot.EndTime <= slot.StartTime {
		return 0, 0, false
	}
	if slot.Kind != "" && item.Kind != "" && slot.Kind != item.Kind {
		return 0, 0, false
	}
	if slot.Day != "" && !strings.EqualFold(slot.Day, weekday) {
		return 0, 0, false
	}
	if item.DurationMinutes <= 0 {
		return slot.StartTime, slot.EndTime, true
	}
	if slot.Length() < item.DurationMinutes {
		return 0, 0, false
	}
	return slot.StartTime, slot.StartTime.Add(item.DurationMinutes), true
}

func normaliseDates(dates []time.Time) []time.Time {
	seen := make(map[string]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		key := models.DateKey(day)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Before(out[b]) })
	return out
}

func kindLabel(kind models.TimetableKind) string {
	if kind == models.TimetableExam {
		return "exam"
	}
	return "class"
}
