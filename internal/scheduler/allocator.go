package scheduler

import (
	"github.com/google/uuid"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

var placementNamespace = uuid.MustParse("6f1c3a52-8d4e-4b7a-9c2e-3d5f7a1b9e04")

// PlacementID derives a stable id from the batch and item so reruns are reproducible.
func PlacementID(batchID, itemKey string) string {
	return uuid.NewSHA1(placementNamespace, []byte(batchID+"/"+itemKey)).String()
}

// Attempt is a tried candidate and what the checker said about it.
type Attempt struct {
	Candidate Candidate
	Result    Result
}

// Allocation is the allocator's answer for one item.
type Allocation struct {
	Placement models.Placement
	OK        bool
	// Best is the candidate that cleared the most checks, earliest on ties.
	Best *Attempt
	// Conflicts is every violation of the best candidate.
	Conflicts  []models.Conflict
	Tried      int
	KindCounts map[models.ConflictKind]int
}

// Allocator performs greedy first-fit placement.
type Allocator struct {
	checker *Checker
	limits  map[string]models.LecturerWorkloadLimit
	batchID string
}

// NewAllocator builds an allocator for one batch. Inactive limits are ignored.
func NewAllocator(checker *Checker, limits []models.LecturerWorkloadLimit, batchID string) *Allocator {
	byLecturer := make(map[string]models.LecturerWorkloadLimit, len(limits))
	for _, l := range limits {
		if l.IsActive {
			byLecturer[l.LecturerCode] = l
		}
	}
	return &Allocator{checker: checker, limits: byLecturer, batchID: batchID}
}

// Allocate tries candidates in order and commits the first that passes into booked.
func (a *Allocator) Allocate(item SchedulableItem, candidates []Candidate, booked *BookedSet) Allocation {
	alloc := Allocation{KindCounts: make(map[models.ConflictKind]int)}
	wl := a.workload(item, booked)

	var (
		best          *Attempt
		bestPlacement models.Placement
	)
	for _, cand := range candidates {
		p := a.placement(item, cand)
		res := a.checker.Check(p, booked.On(p.DateKey()), cand.Venue, wl)
		alloc.Tried++
		if res.OK() {
			booked.Add(p)
			alloc.Placement = p
			alloc.OK = true
			return alloc
		}
		alloc.KindCounts[res.Kind()]++
		if best == nil || res.Passed > best.Result.Passed {
			best = &Attempt{Candidate: cand, Result: res}
			bestPlacement = p
		}
	}
	if best != nil {
		alloc.Best = best
		alloc.Conflicts = a.checker.CheckAll(bestPlacement, booked.On(bestPlacement.DateKey()), best.Candidate.Venue, wl).Conflicts
	}
	return alloc
}

func (a *Allocator) workload(item SchedulableItem, booked *BookedSet) WorkloadState {
	if item.LecturerCode == "" {
		return WorkloadState{}
	}
	state := WorkloadState{Load: booked.Load(item.LecturerCode)}
	if limit, ok := a.limits[item.LecturerCode]; ok {
		state.Limit = &limit
	}
	return state
}

func (a *Allocator) placement(item SchedulableItem, cand Candidate) models.Placement {
	return models.Placement{
		ID:            PlacementID(a.batchID, item.Key),
		BatchID:       a.batchID,
		SemesterID:    item.SemesterID,
		Kind:          item.Kind,
		ItemKey:       item.Key,
		UnitID:        item.UnitID,
		UnitCode:      item.UnitCode,
		UnitName:      item.UnitName,
		ClassIDs:      item.ClassIDs(),
		ClassNames:    append([]string(nil), item.ClassNames...),
		LecturerCode:  item.LecturerCode,
		StudentCount:  item.StudentCount,
		CreditHours:   item.CreditHours,
		VenueID:       cand.Venue.ID,
		VenueCode:     cand.Venue.Code,
		VenueCapacity: cand.Venue.Capacity,
		TimeSlotID:    cand.Slot.ID,
		SlotNumber:    cand.Slot.SlotNumber,
		Date:          cand.Date,
		StartTime:     cand.Start,
		EndTime:       cand.End,
	}
}
