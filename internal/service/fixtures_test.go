package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/repository"
	"github.com/noah-isme/uni-timetable-api/internal/scheduler"
	"github.com/noah-isme/uni-timetable-api/pkg/database"
)

var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func newTxMock(t *testing.T) (database.TxBeginner, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func perClassItem(unitCode, classID, lecturer string, students int) scheduler.SchedulableItem {
	scope := scheduler.PerClass{ClassID: classID}
	unitID := "unit-" + unitCode
	return scheduler.SchedulableItem{
		Key:          scheduler.ItemKey(unitID, scope),
		Kind:         models.TimetableClass,
		SemesterID:   "sem-1",
		ProgramID:    "prog-1",
		SchoolID:     "school-1",
		UnitID:       unitID,
		UnitCode:     unitCode,
		UnitName:     unitCode + " lecture",
		Scope:        scope,
		ClassNames:   []string{"Class " + classID},
		LecturerCode: lecturer,
		StudentCount: students,
		CreditHours:  3,
	}
}

// oneRoomSnapshot offers a single 40 seat room for one two hour Monday slot.
func oneRoomSnapshot(items ...scheduler.SchedulableItem) *CatalogSnapshot {
	return &CatalogSnapshot{
		Semester: &models.Semester{ID: "sem-1", StartDate: monday, EndDate: monday.AddDate(0, 4, 0)},
		Kind:     models.TimetableClass,
		Items:    items,
		Dates:    []time.Time{monday},
		Slots: []models.TimeSlot{{
			ID: "slot-1", Kind: models.TimetableClass, StartTime: models.Clock(8, 0), EndTime: models.Clock(10, 0),
			Status: models.ModePhysical, SlotNumber: 1, IsActive: true,
		}},
		Venues:     []models.Venue{{ID: "venue-1", Code: "LT-1", Capacity: 40, Type: models.VenueClassroom, IsActive: true}},
		Membership: scheduler.Membership{},
	}
}

// --- catalog ---

type stubCatalog struct {
	snapshot *CatalogSnapshot
	err      error
}

func (s *stubCatalog) Load(ctx context.Context, semesterID string, kind models.TimetableKind, dates []time.Time) (*CatalogSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.snapshot
	return &copied, nil
}

func (s *stubCatalog) LoadResources(ctx context.Context, semesterID string, kind models.TimetableKind, dates []time.Time) (*CatalogSnapshot, error) {
	snapshot, err := s.Load(ctx, semesterID, kind, dates)
	if err != nil {
		return nil, err
	}
	snapshot.Items = nil
	snapshot.Unenrolled = nil
	return snapshot, nil
}

// --- placements ---

type memPlacementStore struct {
	mu         sync.Mutex
	placements []models.Placement
	insertErr  error
}

func (s *memPlacementStore) InsertBatch(ctx context.Context, exec sqlx.ExtContext, placements []models.Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.placements = append(s.placements, placements...)
	return nil
}

func (s *memPlacementStore) ListBySemester(ctx context.Context, semesterID string, kind models.TimetableKind) ([]models.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Placement
	for _, p := range s.placements {
		if p.SemesterID == semesterID && p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPlacementStore) ListByBatch(ctx context.Context, batchID string) ([]models.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Placement
	for _, p := range s.placements {
		if p.BatchID == batchID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPlacementStore) CountByBatch(ctx context.Context, batchID string) (int, error) {
	placements, _ := s.ListByBatch(ctx, batchID)
	return len(placements), nil
}

// --- batches ---

type memBatchStore struct {
	mu      sync.Mutex
	batches map[string]models.SchedulingBatch
}

func newMemBatchStore() *memBatchStore {
	return &memBatchStore{batches: make(map[string]models.SchedulingBatch)}
}

func (s *memBatchStore) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = *batch
	return nil
}

func (s *memBatchStore) FindByID(ctx context.Context, id string) (*models.SchedulingBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &batch, nil
}

func (s *memBatchStore) ListBySemester(ctx context.Context, semesterID string, limit, offset int) ([]models.SchedulingBatch, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SchedulingBatch
	for _, b := range s.batches {
		if b.SemesterID == semesterID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *memBatchStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok || batch.Status != models.BatchQueued {
		return sql.ErrNoRows
	}
	batch.Status = models.BatchRunning
	batch.StartedAt = &startedAt
	s.batches[id] = batch
	return nil
}

func (s *memBatchStore) Finish(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.batches[batch.ID]
	if !ok || (current.Status != models.BatchQueued && current.Status != models.BatchRunning) {
		return sql.ErrNoRows
	}
	s.batches[batch.ID] = *batch
	return nil
}

func (s *memBatchStore) MarkIncomplete(ctx context.Context, id, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok || batch.Status == models.BatchIncomplete {
		return sql.ErrNoRows
	}
	batch.Status = models.BatchIncomplete
	batch.ErrorMessage = &message
	batch.CompletedAt = &at
	s.batches[id] = batch
	return nil
}

func (s *memBatchStore) get(id string) models.SchedulingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[id]
}

// --- failures ---

type memFailureStore struct {
	mu        sync.Mutex
	failures  map[string]models.SchedulingFailure
	order     []string
	legacy    []models.FailedExamSchedule
	insertErr error
}

func newMemFailureStore(seed ...models.SchedulingFailure) *memFailureStore {
	s := &memFailureStore{failures: make(map[string]models.SchedulingFailure)}
	for _, f := range seed {
		s.failures[f.ID] = f
		s.order = append(s.order, f.ID)
	}
	return s
}

func (s *memFailureStore) Insert(ctx context.Context, exec sqlx.ExtContext, failure *models.SchedulingFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if failure.ID == "" {
		failure.ID = uuid.NewString()
	}
	if failure.Status == "" {
		failure.Status = models.FailurePending
	}
	s.failures[failure.ID] = *failure
	s.order = append(s.order, failure.ID)
	return nil
}

func (s *memFailureStore) InsertLegacy(ctx context.Context, exec sqlx.ExtContext, rows []models.FailedExamSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy = append(s.legacy, rows...)
	return nil
}

func (s *memFailureStore) FindByID(ctx context.Context, id string) (*models.SchedulingFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &f, nil
}

func (s *memFailureStore) FindByIDs(ctx context.Context, ids []string) ([]models.SchedulingFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SchedulingFailure
	for _, id := range ids {
		if f, ok := s.failures[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memFailureStore) ListByBatch(ctx context.Context, batchID string) ([]models.SchedulingFailure, error) {
	return s.filter(func(f models.SchedulingFailure) bool { return f.BatchID == batchID }), nil
}

func (s *memFailureStore) List(ctx context.Context, filter models.FailureFilter) ([]models.SchedulingFailure, int, error) {
	out := s.filter(func(f models.SchedulingFailure) bool {
		return (filter.BatchID == "" || f.BatchID == filter.BatchID) &&
			(filter.Status == "" || f.Status == filter.Status) &&
			(filter.ReasonCode == "" || f.ReasonCode == filter.ReasonCode)
	})
	return out, len(out), nil
}

func (s *memFailureStore) filter(keep func(models.SchedulingFailure) bool) []models.SchedulingFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SchedulingFailure
	for _, id := range s.order {
		if f := s.failures[id]; keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s *memFailureStore) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateFailureStatusParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	allowed := false
	for _, from := range params.From {
		if f.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return sql.ErrNoRows
	}
	f.Status = params.To
	f.ResolvedAt = params.ResolvedAt
	f.ResolvedBy = params.ResolvedBy
	f.ResolutionNotes = params.Notes
	f.UpdatedAt = params.UpdatedAt
	s.failures[params.ID] = f
	return nil
}

func (s *memFailureStore) MarkRetried(ctx context.Context, exec sqlx.ExtContext, ids []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved int64
	for _, id := range ids {
		if f, ok := s.failures[id]; ok && f.Status == models.FailurePending {
			f.Status = models.FailureRetried
			f.UpdatedAt = at
			s.failures[id] = f
			moved++
		}
	}
	return moved, nil
}

func (s *memFailureStore) MarkRetriedByItemKeys(ctx context.Context, exec sqlx.ExtContext, semesterID string, kind models.TimetableKind, itemKeys []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make(map[string]bool, len(itemKeys))
	for _, key := range itemKeys {
		keys[key] = true
	}
	var moved int64
	for id, f := range s.failures {
		if f.SemesterID == semesterID && f.Kind == kind && keys[f.ItemKey] && f.Status == models.FailurePending {
			f.Status = models.FailureRetried
			f.UpdatedAt = at
			s.failures[id] = f
			moved++
		}
	}
	return moved, nil
}

func (s *memFailureStore) CountByStatus(ctx context.Context, batchID string) ([]models.StatusCount, error) {
	counts := make(map[models.FailureStatus]int)
	for _, f := range s.filter(func(f models.SchedulingFailure) bool { return f.BatchID == batchID }) {
		counts[f.Status]++
	}
	var rows []models.StatusCount
	for status, count := range counts {
		rows = append(rows, models.StatusCount{Status: status, Count: count})
	}
	return rows, nil
}

func (s *memFailureStore) CountByReason(ctx context.Context, batchID string) ([]models.ReasonCount, error) {
	counts := make(map[models.ConflictKind]int)
	for _, f := range s.filter(func(f models.SchedulingFailure) bool { return f.BatchID == batchID }) {
		counts[f.ReasonCode]++
	}
	var rows []models.ReasonCount
	for reason, count := range counts {
		rows = append(rows, models.ReasonCount{Reason: reason, Count: count})
	}
	return rows, nil
}

func (s *memFailureStore) get(id string) models.SchedulingFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[id]
}

// --- notifier ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []TimetableEvent
}

func (n *recordingNotifier) TimetableChanged(ctx context.Context, event TimetableEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

var errStoreDown = errors.New("connection refused")
