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
	"github.com/noah-isme/uni-timetable-api/pkg/database"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/jobs"
	"github.com/noah-isme/uni-timetable-api/pkg/lock"
)

type batchFixture struct {
	svc        *BatchService
	catalog    *stubCatalog
	placements *memPlacementStore
	batches    *memBatchStore
	failures   *memFailureStore
	notifier   *recordingNotifier
	locker     *lock.LocalLocker
}

func newBatchFixture(tx database.TxBeginner, snapshot *CatalogSnapshot, seed ...models.SchedulingFailure) *batchFixture {
	f := &batchFixture{
		catalog:    &stubCatalog{snapshot: snapshot},
		placements: &memPlacementStore{},
		batches:    newMemBatchStore(),
		failures:   newMemFailureStore(seed...),
		notifier:   &recordingNotifier{},
		locker:     lock.NewLocal(),
	}
	f.svc = NewBatchService(BatchServiceDeps{
		Catalog:    f.catalog,
		Placements: f.placements,
		Batches:    f.batches,
		Failures:   f.failures,
		Recorder:   NewFailureService(f.failures, nil, nil, nil, nil),
		Tx:         tx,
		Locker:     f.locker,
		Notifier:   f.notifier,
	}, BatchConfig{BatchTimeout: time.Minute, LegacyProjection: true}, nil)
	return f
}

func runRequest(kind models.TimetableKind) dto.RunBatchRequest {
	return dto.RunBatchRequest{SemesterID: "sem-1", Kind: kind, RequestedBy: "registrar"}
}

func TestBatchServiceRunBatchVenueConflict(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	f := newBatchFixture(tx, oneRoomSnapshot(
		perClassItem("CS101", "class-a", "L-1", 30),
		perClassItem("CS102", "class-b", "L-2", 30),
	))

	result, err := f.svc.RunBatch(context.Background(), runRequest(models.TimetableClass))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, result.Placements, 1)
	assert.Equal(t, "CS101", result.Placements[0].UnitCode)
	require.Len(t, result.Failures, 1)
	failure := result.Failures[0]
	assert.Equal(t, "CS102", failure.UnitCode)
	assert.Equal(t, models.ConflictVenue, failure.ReasonCode)
	assert.Equal(t, result.Batch.ID, failure.BatchID)
	require.NotNil(t, failure.AttemptedVenueID)
	assert.Equal(t, "venue-1", *failure.AttemptedVenueID)

	stored := f.batches.get(result.Batch.ID)
	assert.Equal(t, models.BatchCompleted, stored.Status)
	assert.Equal(t, 2, stored.ItemCount)
	assert.Equal(t, stored.ItemCount, stored.PlacedCount+stored.FailedCount+stored.SkippedCount)
	assert.Len(t, f.failures.legacy, 1)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, 1, f.notifier.events[0].Placements)
}

func TestBatchServiceRunBatchSeedsFromCommittedPlacements(t *testing.T) {
	tx, mock := newTxMock(t)
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	item := perClassItem("CS101", "class-a", "L-1", 30)
	f := newBatchFixture(tx, oneRoomSnapshot(item, perClassItem("CS102", "class-b", "L-2", 30)))
	ctx := context.Background()

	first, err := f.svc.RunBatch(ctx, runRequest(models.TimetableClass))
	require.NoError(t, err)
	require.Len(t, first.Placements, 1)

	second, err := f.svc.RunBatch(ctx, runRequest(models.TimetableClass))
	require.NoError(t, err)
	assert.Empty(t, second.Placements)
	assert.Equal(t, []string{item.Key}, second.Skipped)
	require.Len(t, second.Failures, 1)
	assert.Equal(t, models.ConflictVenue, second.Failures[0].ReasonCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceRunBatchCountsUnenrolledAssignments(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	snapshot := oneRoomSnapshot(perClassItem("CS101", "class-a", "L-1", 30))
	snapshot.Unenrolled = []string{"unit-CS999/class-z"}
	f := newBatchFixture(tx, snapshot)

	result, err := f.svc.RunBatch(context.Background(), runRequest(models.TimetableClass))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"unit-CS999/class-z"}, result.Unenrolled)
	stored := f.batches.get(result.Batch.ID)
	assert.Equal(t, 2, stored.ItemCount)
	assert.Equal(t, 1, stored.PlacedCount)
	assert.Equal(t, 1, stored.SkippedCount)
	assert.Equal(t, stored.ItemCount, stored.PlacedCount+stored.FailedCount+stored.SkippedCount)
}

func TestBatchServiceFullRunRetiresStaleFailures(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	item := perClassItem("CS102", "class-b", "L-2", 30)
	stale := failureRecord(&models.SchedulingBatch{ID: "batch-0", SemesterID: "sem-1", Kind: models.TimetableClass},
		scheduler.Failure{Item: item, Reason: models.ConflictVenue, Message: "VENUE_CONFLICT"})
	stale.ID = "7c1d2e3f-0a4b-4c5d-8e6f-9a0b1c2d3e4f"
	other := failureRecord(&models.SchedulingBatch{ID: "batch-0", SemesterID: "sem-2", Kind: models.TimetableClass},
		scheduler.Failure{Item: item, Reason: models.ConflictVenue, Message: "VENUE_CONFLICT"})
	other.ID = "8d2e3f40-1b5c-4d6e-9f70-0b1c2d3e4f50"

	f := newBatchFixture(tx, oneRoomSnapshot(item), stale, other)

	result, err := f.svc.RunBatch(context.Background(), runRequest(models.TimetableClass))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, result.Placements, 1)

	assert.Equal(t, models.FailureRetried, f.failures.get(stale.ID).Status)
	assert.Equal(t, models.FailurePending, f.failures.get(other.ID).Status)
}

func TestBatchServiceRunBatchSemesterLocked(t *testing.T) {
	tx, _ := newTxMock(t)
	f := newBatchFixture(tx, oneRoomSnapshot(perClassItem("CS101", "class-a", "L-1", 30)))
	ctx := context.Background()

	lease, err := f.locker.Acquire(ctx, "semester:sem-1", time.Minute)
	require.NoError(t, err)
	defer lease.Release(ctx)

	_, err = f.svc.RunBatch(ctx, runRequest(models.TimetableClass))
	assert.ErrorIs(t, err, appErrors.ErrSemesterLocked)
	assert.Equal(t, 409, appErrors.FromError(err).Status)
}

func TestBatchServiceRunBatchValidation(t *testing.T) {
	f := newBatchFixture(nil, oneRoomSnapshot())
	ctx := context.Background()

	_, err := f.svc.RunBatch(ctx, dto.RunBatchRequest{SemesterID: "sem-1", Kind: "WEEKLY", RequestedBy: "u"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req := runRequest(models.TimetableClass)
	req.Dates = []string{"06-01-2025"}
	_, err = f.svc.RunBatch(ctx, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestBatchServiceMarksIncompleteWhenFailuresCannotBeRecorded(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	f := newBatchFixture(tx, oneRoomSnapshot(
		perClassItem("CS101", "class-a", "L-1", 30),
		perClassItem("CS102", "class-b", "L-2", 30),
	))
	f.failures.insertErr = errStoreDown

	_, err := f.svc.RunBatch(context.Background(), runRequest(models.TimetableClass))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	require.NoError(t, mock.ExpectationsWereMet())

	f.batches.mu.Lock()
	defer f.batches.mu.Unlock()
	require.Len(t, f.batches.batches, 1)
	for _, batch := range f.batches.batches {
		assert.Equal(t, models.BatchIncomplete, batch.Status)
		require.NotNil(t, batch.ErrorMessage)
		assert.Contains(t, *batch.ErrorMessage, "placements committed")
	}
	assert.Len(t, f.placements.placements, 1)
}

func TestBatchServiceMarksIncompleteWhenPlacementsCannotCommit(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	f := newBatchFixture(tx, oneRoomSnapshot(perClassItem("CS101", "class-a", "L-1", 30)))
	f.placements.insertErr = errStoreDown

	_, err := f.svc.RunBatch(context.Background(), runRequest(models.TimetableClass))
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	require.NoError(t, mock.ExpectationsWereMet())
	for _, batch := range f.batches.batches {
		assert.Equal(t, models.BatchIncomplete, batch.Status)
	}
}

func TestBatchServiceRetry(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	item := perClassItem("CS102", "class-b", "L-2", 30)
	source := failureRecord(&models.SchedulingBatch{ID: "batch-1", SemesterID: "sem-1", Kind: models.TimetableClass},
		scheduler.Failure{Item: item, Reason: models.ConflictVenue, Message: "VENUE_CONFLICT"})
	source.ID = "3b8f6d0e-5a43-4b8e-9c1f-2d7a6e9b0c11"

	f := newBatchFixture(tx, oneRoomSnapshot(), source)

	result, err := f.svc.Retry(context.Background(), dto.RetryFailuresRequest{FailureIDs: []string{source.ID}, RequestedBy: "registrar"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, result.Placements, 1)
	assert.Equal(t, item.Key, result.Placements[0].ItemKey)
	assert.Empty(t, result.Failures)
	require.NotNil(t, result.Batch.RetriedFromBatchID)
	assert.Equal(t, "batch-1", *result.Batch.RetriedFromBatchID)
	assert.Equal(t, models.FailureRetried, f.failures.get(source.ID).Status)
}

func TestBatchServiceRetryStillFailingStaysPending(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	item := perClassItem("CS900", "class-z", "L-9", 120)
	source := failureRecord(&models.SchedulingBatch{ID: "batch-1", SemesterID: "sem-1", Kind: models.TimetableClass},
		scheduler.Failure{Item: item, Reason: models.ConflictNoVenueCapacity})
	source.ID = "9d2b7c44-1e0f-4c55-8a3b-6f1e2d3c4b5a"

	f := newBatchFixture(tx, oneRoomSnapshot(), source)

	result, err := f.svc.Retry(context.Background(), dto.RetryFailuresRequest{FailureIDs: []string{source.ID}, RequestedBy: "registrar"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, result.Failures, 1)
	assert.Equal(t, models.ConflictNoVenueCapacity, result.Failures[0].ReasonCode)
	require.NotNil(t, result.Failures[0].RetryOfFailureID)
	assert.Equal(t, source.ID, *result.Failures[0].RetryOfFailureID)
	assert.Equal(t, models.FailurePending, f.failures.get(source.ID).Status)
}

func TestBatchServiceRetryRejectsClosedFailures(t *testing.T) {
	closed := pendingFailure("5c1d2e3f-4a5b-4c6d-8e7f-9a0b1c2d3e4f")
	closed.Status = models.FailureIgnored
	f := newBatchFixture(nil, oneRoomSnapshot(), closed)
	ctx := context.Background()

	_, err := f.svc.Retry(ctx, dto.RetryFailuresRequest{FailureIDs: []string{closed.ID}, RequestedBy: "u"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = f.svc.Retry(ctx, dto.RetryFailuresRequest{FailureIDs: []string{"7e6d5c4b-3a29-4180-9f8e-7d6c5b4a3928"}, RequestedBy: "u"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestBatchServiceAsyncRun(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	f := newBatchFixture(tx, oneRoomSnapshot(perClassItem("CS101", "class-a", "L-1", 30)))
	ctx := context.Background()

	req := runRequest(models.TimetableClass)
	req.Async = true
	_, err := f.svc.RunBatch(ctx, req)
	assert.ErrorIs(t, err, appErrors.ErrUnavailable)

	f.svc.StartWorkers(ctx, jobs.QueueConfig{Workers: 1})
	defer f.svc.StopWorkers()

	queued, err := f.svc.RunBatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.BatchQueued, queued.Batch.Status)

	require.Eventually(t, func() bool {
		return f.batches.get(queued.Batch.ID).Status == models.BatchCompleted
	}, 2*time.Second, 10*time.Millisecond)
	placements, err := f.placements.ListByBatch(ctx, queued.Batch.ID)
	require.NoError(t, err)
	assert.Len(t, placements, 1)
}

func TestBatchServiceStopWorkersMarksWaitingBatchesIncomplete(t *testing.T) {
	tx, _ := newTxMock(t)
	f := newBatchFixture(tx, oneRoomSnapshot(perClassItem("CS101", "class-a", "L-1", 30)))
	ctx := context.Background()

	lease, err := f.locker.Acquire(ctx, "semester:sem-1", time.Minute)
	require.NoError(t, err)
	defer lease.Release(ctx)

	f.svc.StartWorkers(ctx, jobs.QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: time.Hour})

	req := runRequest(models.TimetableClass)
	req.Async = true
	queued, err := f.svc.RunBatch(ctx, req)
	require.NoError(t, err)

	f.svc.StopWorkers()

	batch := f.batches.get(queued.Batch.ID)
	assert.Equal(t, models.BatchIncomplete, batch.Status)
	require.NotNil(t, batch.ErrorMessage)
	assert.Contains(t, *batch.ErrorMessage, "queue stopped")
}

func TestBatchServiceCancel(t *testing.T) {
	f := newBatchFixture(nil, oneRoomSnapshot())
	ctx := context.Background()

	queued := &models.SchedulingBatch{ID: "batch-q", SemesterID: "sem-1", Kind: models.TimetableClass, Status: models.BatchQueued}
	done := &models.SchedulingBatch{ID: "batch-d", SemesterID: "sem-1", Kind: models.TimetableClass, Status: models.BatchCompleted}
	require.NoError(t, f.batches.Create(ctx, nil, queued))
	require.NoError(t, f.batches.Create(ctx, nil, done))

	cancelled, err := f.svc.Cancel(ctx, "batch-q")
	require.NoError(t, err)
	assert.Equal(t, models.BatchCancelled, cancelled.Status)
	assert.Equal(t, models.BatchCancelled, f.batches.get("batch-q").Status)

	_, err = f.svc.Cancel(ctx, "batch-d")
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, "nope")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestBatchServiceCancelRunningBatch(t *testing.T) {
	f := newBatchFixture(nil, oneRoomSnapshot())
	ctx := context.Background()

	running := &models.SchedulingBatch{ID: "batch-r", SemesterID: "sem-1", Kind: models.TimetableClass, Status: models.BatchRunning}
	require.NoError(t, f.batches.Create(ctx, nil, running))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.svc.track("batch-r", cancel)

	_, err := f.svc.Cancel(ctx, "batch-r")
	require.NoError(t, err)
	assert.ErrorIs(t, runCtx.Err(), context.Canceled)
}

func TestBatchServiceSummary(t *testing.T) {
	tx, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	f := newBatchFixture(tx, oneRoomSnapshot(
		perClassItem("CS101", "class-a", "L-1", 30),
		perClassItem("CS102", "class-b", "L-2", 30),
		perClassItem("CS900", "class-z", "L-9", 120),
	))
	ctx := context.Background()

	result, err := f.svc.RunBatch(ctx, runRequest(models.TimetableClass))
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, result.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Placements)
	assert.Equal(t, 2, summary.Failures)
	assert.Equal(t, 2, summary.ByStatus[models.FailurePending])
	assert.Equal(t, 1, summary.ByReason[models.ConflictVenue])
	assert.Equal(t, 1, summary.ByReason[models.ConflictNoVenueCapacity])

	batches, page, err := f.svc.List(ctx, "sem-1", dto.BatchListQuery{})
	require.NoError(t, err)
	assert.Len(t, batches, 1)
	assert.Equal(t, 1, page.TotalCount)
}
