// Package scheduler places schedulable items into (date, time slot, venue) tuples.
// It is pure and synchronous: callers load inputs, run a pass and persist the outcome.
package scheduler

import (
	"sort"
	"strings"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// Scope says which classes an item is taught to.
type Scope interface {
	ClassIDs() []string
	scope()
}

// PerClass is a unit taught to a single class.
type PerClass struct {
	ClassID string
}

func (p PerClass) ClassIDs() []string { return []string{p.ClassID} }
func (PerClass) scope()               {}

// Shared is a common unit taught jointly to several classes.
type Shared struct {
	Classes []string
}

func (s Shared) ClassIDs() []string { return append([]string(nil), s.Classes...) }
func (Shared) scope()               {}

// SchedulableItem is one unit of work for the allocator.
type SchedulableItem struct {
	Key             string               `json:"key"`
	Kind            models.TimetableKind `json:"kind"`
	SemesterID      string               `json:"semester_id"`
	ProgramID       string               `json:"program_id"`
	SchoolID        string               `json:"school_id"`
	UnitID          string               `json:"unit_id"`
	UnitCode        string               `json:"unit_code"`
	UnitName        string               `json:"unit_name"`
	Scope           Scope                `json:"-"`
	ClassNames      []string             `json:"class_names"`
	LecturerCode    string               `json:"lecturer_code,omitempty"`
	StudentCount    int                  `json:"student_count"`
	CreditHours     int                  `json:"credit_hours"`
	DurationMinutes int                  `json:"duration_minutes"`
	// RetryOfFailureID links an item rebuilt from a failure back to it.
	RetryOfFailureID string `json:"retry_of_failure_id,omitempty"`
}

// IsShared reports whether the item is a common unit.
func (i SchedulableItem) IsShared() bool {
	_, ok := i.Scope.(Shared)
	return ok
}

// ClassIDs returns the item's classes, or nil when no scope is set.
func (i SchedulableItem) ClassIDs() []string {
	if i.Scope == nil {
		return nil
	}
	return i.Scope.ClassIDs()
}

// ItemKey identifies an item within a semester and timetable kind. Shared items
// key on the unit alone since a unit has at most one common assignment per semester.
func ItemKey(unitID string, scope Scope) string {
	switch s := scope.(type) {
	case PerClass:
		return unitID + "/" + s.ClassID
	case Shared:
		return unitID + "/*"
	default:
		return unitID
	}
}

// NewShared returns a Shared scope with sorted, de-duplicated class ids.
func NewShared(classIDs []string) Shared {
	seen := make(map[string]struct{}, len(classIDs))
	out := make([]string, 0, len(classIDs))
	for _, id := range classIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return Shared{Classes: out}
}

// sortItems orders items largest student count first, then by unit code and key.
func sortItems(items []SchedulableItem) {
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].StudentCount != items[b].StudentCount {
			return items[a].StudentCount > items[b].StudentCount
		}
		if items[a].UnitCode != items[b].UnitCode {
			return items[a].UnitCode < items[b].UnitCode
		}
		return items[a].Key < items[b].Key
	})
}
