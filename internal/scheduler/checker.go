package scheduler

import (
	"fmt"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// WorkloadState is the lecturer's limit and counters before the candidate is added.
type WorkloadState struct {
	Limit *models.LecturerWorkloadLimit
	Load  LecturerLoad
}

// Result is the outcome of checking one candidate.
type Result struct {
	Conflicts []models.Conflict
	// Passed counts the checks the candidate cleared before the first failure.
	Passed int
}

// OK reports whether the candidate violates nothing.
func (r Result) OK() bool { return len(r.Conflicts) == 0 }

// Kind returns the first conflict's kind, empty when OK.
func (r Result) Kind() models.ConflictKind {
	if len(r.Conflicts) == 0 {
		return ""
	}
	return r.Conflicts[0].Kind
}

type check func(c *Checker, cand models.Placement, booked []models.Placement, venue models.Venue, wl WorkloadState, all bool) []models.Conflict

// Checker evaluates candidates against hard constraints. It has no side effects.
type Checker struct {
	membership Membership
	checks     []check
}

// NewChecker builds a checker using membership for the student overlap test.
func NewChecker(membership Membership) *Checker {
	if membership == nil {
		membership = Membership{}
	}
	return &Checker{
		membership: membership,
		checks:     []check{checkCapacity, checkVenue, checkLecturer, checkStudents, checkWorkload},
	}
}

// Check runs capacity, venue, lecturer, student and workload checks in order, stopping at the first failure.
func (c *Checker) Check(cand models.Placement, booked []models.Placement, venue models.Venue, wl WorkloadState) Result {
	for i, fn := range c.checks {
		if conflicts := fn(c, cand, booked, venue, wl, false); len(conflicts) > 0 {
			return Result{Conflicts: conflicts, Passed: i}
		}
	}
	return Result{Passed: len(c.checks)}
}

// CheckAll runs every check and reports every conflicting placement. Passed is as for Check.
func (c *Checker) CheckAll(cand models.Placement, booked []models.Placement, venue models.Venue, wl WorkloadState) Result {
	res := Result{Passed: -1}
	for i, fn := range c.checks {
		conflicts := fn(c, cand, booked, venue, wl, true)
		if len(conflicts) > 0 && res.Passed < 0 {
			res.Passed = i
		}
		res.Conflicts = append(res.Conflicts, conflicts...)
	}
	if res.Passed < 0 {
		res.Passed = len(c.checks)
	}
	return res
}

func checkCapacity(_ *Checker, cand models.Placement, _ []models.Placement, venue models.Venue, _ WorkloadState, _ bool) []models.Conflict {
	if cand.StudentCount <= venue.Capacity {
		return nil
	}
	return []models.Conflict{{
		Kind:         models.ConflictCapacityExceeded,
		Message:      fmt.Sprintf("venue %s holds %d, %d students needed", venue.Code, venue.Capacity, cand.StudentCount),
		ResourceType: "venue",
		ResourceID:   venue.ID,
	}}
}

func checkVenue(_ *Checker, cand models.Placement, booked []models.Placement, _ models.Venue, _ WorkloadState, all bool) []models.Conflict {
	var out []models.Conflict
	for _, b := range sameDateOverlapping(cand, booked) {
		if b.VenueID != cand.VenueID {
			continue
		}
		out = append(out, models.Conflict{
			Kind:         models.ConflictVenue,
			Message:      fmt.Sprintf("venue %s is booked for %s %s-%s", b.VenueCode, b.UnitCode, b.StartTime, b.EndTime),
			PlacementID:  b.ID,
			UnitCode:     b.UnitCode,
			ResourceType: "venue",
			ResourceID:   b.VenueID,
		})
		if !all {
			break
		}
	}
	return out
}

func checkLecturer(_ *Checker, cand models.Placement, booked []models.Placement, _ models.Venue, _ WorkloadState, all bool) []models.Conflict {
	if cand.LecturerCode == "" {
		return nil
	}
	var out []models.Conflict
	for _, b := range sameDateOverlapping(cand, booked) {
		if b.LecturerCode != cand.LecturerCode {
			continue
		}
		out = append(out, models.Conflict{
			Kind:         models.ConflictLecturer,
			Message:      fmt.Sprintf("lecturer %s teaches %s %s-%s", b.LecturerCode, b.UnitCode, b.StartTime, b.EndTime),
			PlacementID:  b.ID,
			UnitCode:     b.UnitCode,
			ResourceType: "lecturer",
			ResourceID:   b.LecturerCode,
		})
		if !all {
			break
		}
	}
	return out
}

func checkStudents(c *Checker, cand models.Placement, booked []models.Placement, _ models.Venue, _ WorkloadState, all bool) []models.Conflict {
	var out []models.Conflict
	for _, b := range sameDateOverlapping(cand, booked) {
		if b.UnitID == cand.UnitID {
			continue
		}
		classID, studentID, ok := c.membership.Overlap(cand.ClassIDs, b.ClassIDs)
		if !ok {
			continue
		}
		conflict := models.Conflict{
			Kind:         models.ConflictStudentOverlap,
			PlacementID:  b.ID,
			UnitCode:     b.UnitCode,
			ResourceType: "class",
			ResourceID:   classID,
			Message:      fmt.Sprintf("class %s already attends %s %s-%s", classID, b.UnitCode, b.StartTime, b.EndTime),
		}
		if studentID != "" {
			conflict.ResourceType = "student"
			conflict.ResourceID = studentID
			conflict.Message = fmt.Sprintf("student %s of class %s already attends %s %s-%s", studentID, classID, b.UnitCode, b.StartTime, b.EndTime)
		}
		out = append(out, conflict)
		if !all {
			break
		}
	}
	return out
}

func checkWorkload(_ *Checker, cand models.Placement, _ []models.Placement, _ models.Venue, wl WorkloadState, _ bool) []models.Conflict {
	limit := wl.Limit
	if cand.LecturerCode == "" || limit == nil || !limit.IsActive {
		return nil
	}
	units := wl.Load.Units + 1
	hours := wl.Load.CreditHours + cand.CreditHours
	var msg string
	switch {
	case limit.MaxUnits > 0 && units > limit.MaxUnits:
		msg = fmt.Sprintf("lecturer %s would carry %d units, limit %d", cand.LecturerCode, units, limit.MaxUnits)
	case limit.MaxCreditHours > 0 && hours > limit.MaxCreditHours:
		msg = fmt.Sprintf("lecturer %s would carry %d credit hours, limit %d", cand.LecturerCode, hours, limit.MaxCreditHours)
	default:
		return nil
	}
	return []models.Conflict{{
		Kind:         models.ConflictWorkloadExceeded,
		Message:      msg,
		ResourceType: "lecturer",
		ResourceID:   cand.LecturerCode,
	}}
}

func sameDateOverlapping(cand models.Placement, booked []models.Placement) []models.Placement {
	key := cand.DateKey()
	var out []models.Placement
	for _, b := range booked {
		if b.DateKey() != key {
			continue
		}
		if models.Overlaps(cand.StartTime, cand.EndTime, b.StartTime, b.EndTime) {
			out = append(out, b)
		}
	}
	return out
}
