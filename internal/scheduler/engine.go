package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// Input is everything one pass needs. The pass never reads ambient state.
type Input struct {
	BatchID    string
	SemesterID string
	Kind       models.TimetableKind
	Items      []SchedulableItem
	Dates      []time.Time
	Slots      []models.TimeSlot
	Venues     []models.Venue
	Limits     []models.LecturerWorkloadLimit
	Membership Membership
	// Seed holds placements already committed for the semester and kind.
	Seed []models.Placement
}

// Failure is an item the pass could not place.
type Failure struct {
	Item    SchedulableItem
	Reason  models.ConflictKind
	Message string
	// Best is nil when no candidate was tried.
	Best    *Attempt
	Details models.ConflictDetails
}

// Outcome accounts for every input item exactly once across its three lists.
type Outcome struct {
	Placements []models.Placement
	Failures   []Failure
	Skipped    []SchedulableItem
	Cancelled  bool
}

// Run places items largest first against a booked set seeded from in.Seed.
// When ctx is cancelled, items not yet attempted become BATCH_CANCELLED failures
// and placements made so far are kept.
func Run(ctx context.Context, in Input) Outcome {
	items := append([]SchedulableItem(nil), in.Items...)
	sortItems(items)

	booked := NewBookedSet(in.Seed)
	allocator := NewAllocator(NewChecker(in.Membership), in.Limits, in.BatchID)

	var out Outcome
	for idx, item := range items {
		if ctx.Err() != nil {
			out.Cancelled = true
			for _, rest := range items[idx:] {
				out.Failures = append(out.Failures, cancelled(rest))
			}
			break
		}
		if booked.Has(item.Key) {
			out.Skipped = append(out.Skipped, item)
			continue
		}

		candidates, unplaceable := BuildCandidates(item, in.Dates, in.Slots, in.Venues)
		if unplaceable != nil {
			out.Failures = append(out.Failures, Failure{
				Item:    item,
				Reason:  unplaceable.Kind,
				Message: fmt.Sprintf("%s: %s", unplaceable.Kind, unplaceable.Message),
				Details: models.ConflictDetails{Kind: unplaceable.Kind, Conflicts: []models.Conflict{*unplaceable}},
			})
			continue
		}

		alloc := allocator.Allocate(item, candidates, booked)
		if alloc.OK {
			out.Placements = append(out.Placements, alloc.Placement)
			continue
		}
		out.Failures = append(out.Failures, failureFrom(item, alloc))
	}
	return out
}

func failureFrom(item SchedulableItem, alloc Allocation) Failure {
	f := Failure{
		Item: item,
		Best: alloc.Best,
		Details: models.ConflictDetails{
			Conflicts:       alloc.Conflicts,
			KindCounts:      alloc.KindCounts,
			CandidatesTried: alloc.Tried,
		},
	}
	if alloc.Best == nil {
		f.Reason = models.ConflictNoEligibleSlot
		f.Message = fmt.Sprintf("%s: no candidate was tried", f.Reason)
		f.Details.Kind = f.Reason
		return f
	}
	primary := alloc.Best.Result.Conflicts[0]
	f.Reason = primary.Kind
	f.Details.Kind = primary.Kind
	f.Details.VenueCode = alloc.Best.Candidate.Venue.Code
	f.Message = fmt.Sprintf("%s: %s on %s (%d candidates tried)", primary.Kind, primary.Message, models.DateKey(alloc.Best.Candidate.Date), alloc.Tried)
	return f
}

func cancelled(item SchedulableItem) Failure {
	return Failure{
		Item:    item,
		Reason:  models.ConflictBatchCancelled,
		Message: fmt.Sprintf("%s: batch cancelled before %s was attempted", models.ConflictBatchCancelled, item.UnitCode),
		Details: models.ConflictDetails{Kind: models.ConflictBatchCancelled},
	}
}
