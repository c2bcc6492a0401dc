package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

func bookedPlacement(id, unit, venueID, lecturer string, classes []string, start, end models.TimeOfDay) models.Placement {
	return models.Placement{
		ID: id, ItemKey: unit + "/x", UnitID: unit, UnitCode: unit, VenueID: venueID, VenueCode: "V-" + venueID,
		LecturerCode: lecturer, ClassIDs: classes, Date: monday, StartTime: start, EndTime: end, CreditHours: 3,
	}
}

func candidate(unit, venueID, lecturer string, students int, classes []string, start, end models.TimeOfDay) models.Placement {
	return models.Placement{
		ItemKey: unit + "/c", UnitID: unit, UnitCode: unit, VenueID: venueID, LecturerCode: lecturer,
		StudentCount: students, ClassIDs: classes, Date: monday, StartTime: start, EndTime: end, CreditHours: 3,
	}
}

func TestCheckerCapacityComesFirst(t *testing.T) {
	c := NewChecker(nil)
	booked := []models.Placement{bookedPlacement("p1", "U1", "v1", "L1", []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))}
	cand := candidate("U2", "v1", "L1", 60, []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))

	res := c.Check(cand, booked, venue("v1", 45), WorkloadState{})
	require.False(t, res.OK())
	assert.Equal(t, models.ConflictCapacityExceeded, res.Kind())
	assert.Equal(t, 0, res.Passed)
	assert.Len(t, res.Conflicts, 1)

	all := c.CheckAll(cand, booked, venue("v1", 45), WorkloadState{})
	kinds := make([]models.ConflictKind, 0, len(all.Conflicts))
	for _, conflict := range all.Conflicts {
		kinds = append(kinds, conflict.Kind)
	}
	assert.Equal(t, []models.ConflictKind{
		models.ConflictCapacityExceeded, models.ConflictVenue, models.ConflictLecturer, models.ConflictStudentOverlap,
	}, kinds)
	assert.Equal(t, 0, all.Passed)
}

func TestCheckerVenueConflictReferencesPlacement(t *testing.T) {
	c := NewChecker(nil)
	booked := []models.Placement{bookedPlacement("p1", "U1", "v1", "L1", []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))}
	cand := candidate("U2", "v1", "L2", 30, []string{"C2"}, models.Clock(9, 0), models.Clock(11, 0))

	res := c.Check(cand, booked, venue("v1", 45), WorkloadState{})
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, models.ConflictVenue, res.Kind())
	assert.Equal(t, "p1", res.Conflicts[0].PlacementID)
	assert.Equal(t, "venue", res.Conflicts[0].ResourceType)
	assert.Equal(t, "v1", res.Conflicts[0].ResourceID)
	assert.Equal(t, 1, res.Passed)
}

func TestCheckerAdjacentRangesDoNotConflict(t *testing.T) {
	c := NewChecker(nil)
	booked := []models.Placement{bookedPlacement("p1", "U1", "v1", "L1", []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))}
	cand := candidate("U2", "v1", "L1", 30, []string{"C1"}, models.Clock(10, 0), models.Clock(12, 0))

	assert.True(t, c.Check(cand, booked, venue("v1", 45), WorkloadState{}).OK())
}

func TestCheckerOtherDateDoesNotConflict(t *testing.T) {
	c := NewChecker(nil)
	other := bookedPlacement("p1", "U1", "v1", "L1", []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))
	other.Date = monday.AddDate(0, 0, 1)
	cand := candidate("U2", "v1", "L1", 30, []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))

	assert.True(t, c.Check(cand, []models.Placement{other}, venue("v1", 45), WorkloadState{}).OK())
}

func TestCheckerLecturerConflict(t *testing.T) {
	c := NewChecker(nil)
	booked := []models.Placement{bookedPlacement("p1", "U1", "v1", "L1", []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))}
	cand := candidate("U2", "v2", "L1", 30, []string{"C2"}, models.Clock(8, 0), models.Clock(10, 0))

	res := c.Check(cand, booked, venue("v2", 45), WorkloadState{})
	assert.Equal(t, models.ConflictLecturer, res.Kind())
	assert.Equal(t, "L1", res.Conflicts[0].ResourceID)
	assert.Equal(t, 2, res.Passed)
}

func TestCheckerStudentOverlapThroughSharedStudent(t *testing.T) {
	membership := NewMembership([]models.ClassMember{
		{ClassID: "C1", StudentID: "s1"}, {ClassID: "C1", StudentID: "s2"},
		{ClassID: "C2", StudentID: "s2"}, {ClassID: "C3", StudentID: "s3"},
	})
	c := NewChecker(membership)
	booked := []models.Placement{bookedPlacement("p1", "U1", "v1", "L1", []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))}

	res := c.Check(candidate("U2", "v2", "L2", 30, []string{"C2"}, models.Clock(8, 0), models.Clock(10, 0)), booked, venue("v2", 45), WorkloadState{})
	require.Equal(t, models.ConflictStudentOverlap, res.Kind())
	assert.Equal(t, "student", res.Conflicts[0].ResourceType)
	assert.Equal(t, "s2", res.Conflicts[0].ResourceID)
	assert.Equal(t, 3, res.Passed)

	res = c.Check(candidate("U2", "v2", "L2", 30, []string{"C3"}, models.Clock(8, 0), models.Clock(10, 0)), booked, venue("v2", 45), WorkloadState{})
	assert.True(t, res.OK())
}

func TestCheckerStudentOverlapIgnoresSameUnit(t *testing.T) {
	c := NewChecker(nil)
	booked := []models.Placement{bookedPlacement("p1", "U1", "v1", "L1", []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))}
	cand := candidate("U1", "v2", "L2", 30, []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))

	assert.True(t, c.Check(cand, booked, venue("v2", 45), WorkloadState{}).OK())
}

func TestCheckerWorkload(t *testing.T) {
	c := NewChecker(nil)
	cand := candidate("U2", "v1", "L1", 30, []string{"C1"}, models.Clock(8, 0), models.Clock(10, 0))
	limit := &models.LecturerWorkloadLimit{LecturerCode: "L1", MaxUnits: 4, MaxCreditHours: 9, IsActive: true}

	res := c.Check(cand, nil, venue("v1", 45), WorkloadState{Limit: limit, Load: LecturerLoad{Units: 2, CreditHours: 6}})
	assert.True(t, res.OK())

	res = c.Check(cand, nil, venue("v1", 45), WorkloadState{Limit: limit, Load: LecturerLoad{Units: 2, CreditHours: 7}})
	require.Equal(t, models.ConflictWorkloadExceeded, res.Kind())
	assert.Contains(t, res.Conflicts[0].Message, "credit hours")
	assert.Equal(t, 4, res.Passed)

	res = c.Check(cand, nil, venue("v1", 45), WorkloadState{Limit: limit, Load: LecturerLoad{Units: 4}})
	assert.Equal(t, models.ConflictWorkloadExceeded, res.Kind())

	inactive := *limit
	inactive.IsActive = false
	res = c.Check(cand, nil, venue("v1", 45), WorkloadState{Limit: &inactive, Load: LecturerLoad{Units: 10}})
	assert.True(t, res.OK())
}
