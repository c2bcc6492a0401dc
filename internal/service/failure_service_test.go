package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

func pendingFailure(id string) models.SchedulingFailure {
	return models.SchedulingFailure{
		ID:         id,
		BatchID:    "batch-1",
		SemesterID: "sem-1",
		Kind:       models.TimetableExam,
		ItemKey:    "unit-CS101/class-a",
		UnitID:     "unit-CS101",
		UnitCode:   "CS101",
		ClassIDs:   []string{"class-a"},
		ClassNames: []string{"Class A"},
		ReasonCode: models.ConflictVenue,
		Status:     models.FailurePending,
	}
}

func newFailureServiceFixture(seed ...models.SchedulingFailure) (*FailureService, *memFailureStore) {
	store := newMemFailureStore(seed...)
	svc := NewFailureService(store, nil, nil, nil, nil)
	svc.now = func() time.Time { return monday.Add(9 * time.Hour) }
	return svc, store
}

func TestFailureServiceResolveWithoutNotes(t *testing.T) {
	svc, store := newFailureServiceFixture(pendingFailure("f-1"))

	_, err := svc.Resolve(context.Background(), "f-1", dto.ResolveFailureRequest{Status: models.FailureResolved, ResolvedBy: "registrar"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, models.FailurePending, store.get("f-1").Status)
}

func TestFailureServiceResolve(t *testing.T) {
	svc, store := newFailureServiceFixture(pendingFailure("f-1"))

	failure, err := svc.Resolve(context.Background(), "f-1", dto.ResolveFailureRequest{
		Status:     models.FailureResolved,
		Notes:      "  moved to the main hall manually ",
		ResolvedBy: "registrar",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FailureResolved, failure.Status)

	stored := store.get("f-1")
	assert.Equal(t, models.FailureResolved, stored.Status)
	require.NotNil(t, stored.ResolutionNotes)
	assert.Equal(t, "moved to the main hall manually", *stored.ResolutionNotes)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, "registrar", *stored.ResolvedBy)
	require.NotNil(t, stored.ResolvedAt)
}

func TestFailureServiceResolveRejections(t *testing.T) {
	resolved := pendingFailure("f-2")
	resolved.Status = models.FailureResolved
	svc, _ := newFailureServiceFixture(pendingFailure("f-1"), resolved)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "f-1", dto.ResolveFailureRequest{Status: models.FailureRetried, Notes: "n", ResolvedBy: "u"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Resolve(ctx, "f-1", dto.ResolveFailureRequest{Status: models.FailureIgnored, Notes: "n"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Resolve(ctx, "f-2", dto.ResolveFailureRequest{Status: models.FailureIgnored, Notes: "n", ResolvedBy: "u"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = svc.Resolve(ctx, "missing", dto.ResolveFailureRequest{Status: models.FailureIgnored, Notes: "n", ResolvedBy: "u"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFailureServiceReopen(t *testing.T) {
	ignored := pendingFailure("f-1")
	ignored.Status = models.FailureIgnored
	svc, store := newFailureServiceFixture(ignored, pendingFailure("f-2"))
	ctx := context.Background()

	failure, err := svc.Reopen(ctx, "f-1", dto.ReopenFailureRequest{Notes: "room became available", Actor: "registrar"})
	require.NoError(t, err)
	assert.Equal(t, models.FailurePending, failure.Status)
	assert.Nil(t, store.get("f-1").ResolvedBy)
	assert.Nil(t, store.get("f-1").ResolvedAt)

	_, err = svc.Reopen(ctx, "f-2", dto.ReopenFailureRequest{Notes: "again", Actor: "registrar"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = svc.Reopen(ctx, "f-1", dto.ReopenFailureRequest{Notes: "", Actor: "registrar"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestFailureServiceRecordFailureWithLegacyProjection(t *testing.T) {
	svc, store := newFailureServiceFixture()
	batch := &models.SchedulingBatch{ID: "batch-9", SemesterID: "sem-1", Kind: models.TimetableExam}
	item := perClassItem("MA201", "class-b", "L-7", 55)
	item.Scope = scheduler.NewShared([]string{"class-b", "class-a"})
	item.Key = scheduler.ItemKey(item.UnitID, item.Scope)
	item.ClassNames = []string{"Class A", "Class B"}

	id, err := svc.RecordFailure(context.Background(), nil, batch, scheduler.Failure{
		Item:    item,
		Reason:  models.ConflictNoVenueCapacity,
		Message: "NO_VENUE_CAPACITY: no venue seats 55 students",
		Details: models.ConflictDetails{Kind: models.ConflictNoVenueCapacity},
	}, true)
	require.NoError(t, err)

	stored := store.get(id)
	assert.Equal(t, "batch-9", stored.BatchID)
	assert.True(t, stored.Shared)
	assert.Equal(t, []string{"class-a", "class-b"}, []string(stored.ClassIDs))
	assert.Equal(t, models.FailurePending, stored.Status)
	assert.Nil(t, stored.AttemptedVenueID)

	require.Len(t, store.legacy, 2)
	assert.Equal(t, id, store.legacy[0].FailureID)
	assert.Equal(t, "Class A", store.legacy[0].ClassName)
	assert.Equal(t, "Class B", store.legacy[1].ClassName)
}

func TestItemFromFailureRoundTrip(t *testing.T) {
	item := perClassItem("CS101", "class-a", "L-1", 30)
	record := failureRecord(&models.SchedulingBatch{ID: "b", SemesterID: "sem-1", Kind: models.TimetableClass}, scheduler.Failure{Item: item, Reason: models.ConflictVenue})
	record.ID = "f-1"

	rebuilt := ItemFromFailure(record)
	assert.Equal(t, item.Key, rebuilt.Key)
	assert.Equal(t, item.Scope, rebuilt.Scope)
	assert.Equal(t, "f-1", rebuilt.RetryOfFailureID)
	assert.Equal(t, item.StudentCount, rebuilt.StudentCount)
	assert.Equal(t, item.LecturerCode, rebuilt.LecturerCode)
}

func TestFailureServiceListDefaults(t *testing.T) {
	svc, _ := newFailureServiceFixture(pendingFailure("f-1"), pendingFailure("f-2"))

	failures, page, err := svc.List(context.Background(), dto.FailureQuery{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, failures, 2)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.PageSize)
	assert.Equal(t, 2, page.TotalCount)

	_, _, err = svc.List(context.Background(), dto.FailureQuery{Status: "done"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
