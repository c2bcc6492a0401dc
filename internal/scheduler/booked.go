package scheduler

import "github.com/noah-isme/uni-timetable-api/internal/models"

// LecturerLoad accumulates what a lecturer already carries in the semester.
type LecturerLoad struct {
	Units       int
	CreditHours int
}

// BookedSet is the working set of committed placements a batch checks against.
// It is owned by a single batch and is not safe for concurrent use.
type BookedSet struct {
	all      []models.Placement
	byDate   map[string][]models.Placement
	items    map[string]struct{}
	workload map[string]LecturerLoad
}

// NewBookedSet seeds the set with placements that must survive the run.
func NewBookedSet(seed []models.Placement) *BookedSet {
	b := &BookedSet{
		byDate:   make(map[string][]models.Placement),
		items:    make(map[string]struct{}),
		workload: make(map[string]LecturerLoad),
	}
	for _, p := range seed {
		b.Add(p)
	}
	return b
}

// Add commits a placement.
func (b *BookedSet) Add(p models.Placement) {
	b.all = append(b.all, p)
	key := p.DateKey()
	b.byDate[key] = append(b.byDate[key], p)
	if p.ItemKey != "" {
		b.items[p.ItemKey] = struct{}{}
	}
	if p.LecturerCode != "" {
		load := b.workload[p.LecturerCode]
		load.Units++
		load.CreditHours += p.CreditHours
		b.workload[p.LecturerCode] = load
	}
}

// On returns the placements booked on the given date key.
func (b *BookedSet) On(dateKey string) []models.Placement {
	return b.byDate[dateKey]
}

// Has reports whether an item is already placed.
func (b *BookedSet) Has(itemKey string) bool {
	_, ok := b.items[itemKey]
	return ok
}

// Load returns the lecturer's current counters.
func (b *BookedSet) Load(lecturerCode string) LecturerLoad {
	return b.workload[lecturerCode]
}

// Len returns the number of booked placements, seeds included.
func (b *BookedSet) Len() int { return len(b.all) }
