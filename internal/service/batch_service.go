package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/scheduler"
	"github.com/noah-isme/uni-timetable-api/pkg/database"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/jobs"
	"github.com/noah-isme/uni-timetable-api/pkg/lock"
)

type catalogLoader interface {
	Load(ctx context.Context, semesterID string, kind models.TimetableKind, dates []time.Time) (*CatalogSnapshot, error)
	LoadResources(ctx context.Context, semesterID string, kind models.TimetableKind, dates []time.Time) (*CatalogSnapshot, error)
}

type placementStore interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, placements []models.Placement) error
	ListBySemester(ctx context.Context, semesterID string, kind models.TimetableKind) ([]models.Placement, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.Placement, error)
	CountByBatch(ctx context.Context, batchID string) (int, error)
}

type batchStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch) error
	FindByID(ctx context.Context, id string) (*models.SchedulingBatch, error)
	ListBySemester(ctx context.Context, semesterID string, limit, offset int) ([]models.SchedulingBatch, int, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	Finish(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch) error
	MarkIncomplete(ctx context.Context, id, message string, at time.Time) error
}

type failureRecorder interface {
	RecordFailures(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch, failures []scheduler.Failure, legacy bool) ([]models.SchedulingFailure, error)
}

// BatchConfig tunes batch execution.
type BatchConfig struct {
	LockTTL          time.Duration
	BatchTimeout     time.Duration
	LegacyProjection bool
	SummaryTTL       time.Duration
}

// batchJob is the queued payload of an asynchronous batch.
type batchJob struct {
	SemesterID string
	Kind       models.TimetableKind
	Dates      []time.Time
	FailureIDs []string
}

// runPlan describes what one batch schedules. Retry is nil for a full semester run.
type runPlan struct {
	SemesterID string
	Kind       models.TimetableKind
	Dates      []time.Time
	Retry      []models.SchedulingFailure
}

const batchQueueName = "scheduling-batches"

// BatchService orchestrates scheduling batches: locking, the allocation pass, persistence and retries.
type BatchService struct {
	catalog    catalogLoader
	placements placementStore
	batches    batchStore
	failures   failureStore
	recorder   failureRecorder
	tx         database.TxBeginner
	locker     lock.Locker
	notifier   TimetableNotifier
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	config     BatchConfig
	logger     *zap.Logger
	now        func() time.Time

	queue   *jobs.Queue
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// BatchServiceDeps groups the collaborators of a BatchService.
type BatchServiceDeps struct {
	Catalog    catalogLoader
	Placements placementStore
	Batches    batchStore
	Failures   failureStore
	Recorder   failureRecorder
	Tx         database.TxBeginner
	Locker     lock.Locker
	Notifier   TimetableNotifier
	Cache      *CacheService
	Metrics    *MetricsService
	Validator  *validator.Validate
}

// NewBatchService constructs the orchestrator.
func NewBatchService(deps BatchServiceDeps, cfg BatchConfig, logger *zap.Logger) *BatchService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Minute
	}
	if cfg.LockTTL < cfg.BatchTimeout {
		cfg.LockTTL = cfg.BatchTimeout + time.Minute
	}
	return &BatchService{
		catalog:    deps.Catalog,
		placements: deps.Placements,
		batches:    deps.Batches,
		failures:   deps.Failures,
		recorder:   deps.Recorder,
		tx:         deps.Tx,
		locker:     deps.Locker,
		notifier:   deps.Notifier,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		validator:  deps.Validator,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
		running:    make(map[string]context.CancelFunc),
	}
}

// StartWorkers enables asynchronous batches backed by an in-process job queue.
func (s *BatchService) StartWorkers(ctx context.Context, cfg jobs.QueueConfig) {
	cfg.Logger = s.logger
	cfg.OnGiveUp = s.giveUp
	s.queue = jobs.NewQueue(batchQueueName, s.handleJob, cfg)
	s.queue.Start(ctx)
}

// StopWorkers stops the job queue and waits for in-flight batches. Queued batches
// that never ran are marked incomplete through giveUp.
func (s *BatchService) StopWorkers() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// RunBatch schedules the semester's full worklist, synchronously or on the queue.
func (s *BatchService) RunBatch(ctx context.Context, req dto.RunBatchRequest) (*dto.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		return nil, err
	}
	plan := runPlan{SemesterID: req.SemesterID, Kind: req.Kind, Dates: dates}
	batch := s.newBatch(plan, req.RequestedBy, nil)
	if req.Async {
		return s.submit(ctx, batch, batchJob{SemesterID: plan.SemesterID, Kind: plan.Kind, Dates: dates})
	}
	return s.runNow(ctx, batch, plan)
}

// Retry re-runs pending failures as a new batch linked to the batch they came from.
func (s *BatchService) Retry(ctx context.Context, req dto.RetryFailuresRequest) (*dto.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid retry payload")
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		return nil, err
	}
	ids := uniqueStrings(req.FailureIDs)
	failures, err := s.failures.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling failures")
	}
	if err := validateRetrySet(ids, failures); err != nil {
		return nil, err
	}

	byID := make(map[string]models.SchedulingFailure, len(failures))
	for _, f := range failures {
		byID[f.ID] = f
	}
	source := byID[ids[0]].BatchID
	plan := runPlan{SemesterID: failures[0].SemesterID, Kind: failures[0].Kind, Dates: dates, Retry: failures}
	batch := s.newBatch(plan, req.RequestedBy, &source)
	if req.Async {
		return s.submit(ctx, batch, batchJob{SemesterID: plan.SemesterID, Kind: plan.Kind, Dates: dates, FailureIDs: ids})
	}
	return s.runNow(ctx, batch, plan)
}

func validateRetrySet(ids []string, failures []models.SchedulingFailure) error {
	found := make(map[string]bool, len(failures))
	for _, f := range failures {
		found[f.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "scheduling failures not found: "+strings.Join(missing, ", "))
	}
	for _, f := range failures {
		if f.Status != models.FailurePending {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("failure %s is %s, only pending failures can be retried", f.ID, f.Status))
		}
		if f.SemesterID != failures[0].SemesterID || f.Kind != failures[0].Kind {
			return appErrors.Clone(appErrors.ErrValidation, "retried failures must share one semester and timetable kind")
		}
	}
	return nil
}

func (s *BatchService) newBatch(plan runPlan, createdBy string, retriedFrom *string) *models.SchedulingBatch {
	return &models.SchedulingBatch{
		ID:                 uuid.NewString(),
		SemesterID:         plan.SemesterID,
		Kind:               plan.Kind,
		Status:             models.BatchQueued,
		RetriedFromBatchID: retriedFrom,
		CreatedBy:          createdBy,
		CreatedAt:          s.now().UTC(),
	}
}

func (s *BatchService) runNow(ctx context.Context, batch *models.SchedulingBatch, plan runPlan) (*dto.BatchResult, error) {
	lease, err := s.acquire(ctx, plan.SemesterID)
	if err != nil {
		return nil, err
	}
	defer s.release(lease)

	started := s.now().UTC()
	batch.Status = models.BatchRunning
	batch.StartedAt = &started
	if err := s.batches.Create(ctx, nil, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create scheduling batch")
	}
	return s.execute(ctx, batch, plan)
}

func (s *BatchService) submit(ctx context.Context, batch *models.SchedulingBatch, payload batchJob) (*dto.BatchResult, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "background scheduling is disabled")
	}
	if err := s.batches.Create(ctx, nil, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create scheduling batch")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: batch.ID, Type: string(batch.Kind), Payload: payload}); err != nil {
		s.markIncomplete(batch.ID, "enqueue failed: "+err.Error())
		message := "failed to queue scheduling batch"
		if errors.Is(err, jobs.ErrQueueFull) {
			message = "scheduling queue is full, try again later"
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, message)
	}
	s.logger.Info("scheduling batch queued", zap.String("batch_id", batch.ID), zap.String("semester_id", batch.SemesterID))
	return &dto.BatchResult{Batch: batch}, nil
}

func (s *BatchService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(batchJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T", job.Payload))
	}
	lease, err := s.acquire(ctx, payload.SemesterID)
	if err != nil {
		return err
	}
	defer s.release(lease)

	started := s.now().UTC()
	if err := s.batches.MarkRunning(ctx, job.ID, started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("queued batch no longer runnable", zap.String("batch_id", job.ID))
			return nil
		}
		return err
	}
	batch, err := s.batches.FindByID(ctx, job.ID)
	if err != nil {
		s.markIncomplete(job.ID, err.Error())
		return nil
	}

	plan := runPlan{SemesterID: payload.SemesterID, Kind: payload.Kind, Dates: payload.Dates}
	if len(payload.FailureIDs) > 0 {
		failures, err := s.failures.FindByIDs(ctx, payload.FailureIDs)
		if err != nil {
			s.markIncomplete(batch.ID, err.Error())
			return nil
		}
		plan.Retry = make([]models.SchedulingFailure, 0, len(failures))
		for _, f := range failures {
			if f.Status == models.FailurePending {
				plan.Retry = append(plan.Retry, f)
			}
		}
	}
	// execute records its own failures on the batch row
	if _, err := s.execute(ctx, batch, plan); err != nil {
		s.logger.Warn("queued batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	return nil
}

func (s *BatchService) giveUp(job jobs.Job, err error) {
	s.markIncomplete(job.ID, err.Error())
}

func (s *BatchService) acquire(ctx context.Context, semesterID string) (lock.Lease, error) {
	lease, err := s.locker.Acquire(ctx, "semester:"+semesterID, s.config.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			s.metrics.RecordLockContention()
			return nil, appErrors.Clone(appErrors.ErrSemesterLocked, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to lock semester")
	}
	return lease, nil
}

func (s *BatchService) release(lease lock.Lease) {
	if err := lease.Release(context.Background()); err != nil {
		s.logger.Warn("failed to release semester lock", zap.String("key", lease.Key()), zap.Error(err))
	}
}

// execute runs the pass for a batch already marked running and persists its outcome.
// Placements and the batch counters commit in one transaction; failures follow in a second.
func (s *BatchService) execute(ctx context.Context, batch *models.SchedulingBatch, plan runPlan) (*dto.BatchResult, error) {
	persistCtx := context.WithoutCancel(ctx)
	started := s.now()
	s.metrics.BatchStarted()

	snapshot, items, err := s.prepare(ctx, plan)
	if err != nil {
		s.metrics.ObserveBatch(batch.Kind, models.BatchIncomplete, 0, nil, s.now().Sub(started))
		s.markIncomplete(batch.ID, err.Error())
		return nil, err
	}
	seed, err := s.placements.ListBySemester(ctx, plan.SemesterID, plan.Kind)
	if err != nil {
		s.metrics.ObserveBatch(batch.Kind, models.BatchIncomplete, 0, nil, s.now().Sub(started))
		s.markIncomplete(batch.ID, err.Error())
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load committed placements")
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.BatchTimeout)
	s.track(batch.ID, cancel)
	outcome := scheduler.Run(runCtx, scheduler.Input{
		BatchID:    batch.ID,
		SemesterID: plan.SemesterID,
		Kind:       plan.Kind,
		Items:      items,
		Dates:      snapshot.Dates,
		Slots:      snapshot.Slots,
		Venues:     snapshot.Venues,
		Limits:     snapshot.Limits,
		Membership: snapshot.Membership,
		Seed:       seed,
	})
	s.untrack(batch.ID)
	cancel()

	var unenrolled []string
	if plan.Retry == nil {
		unenrolled = snapshot.Unenrolled
	}
	completed := s.now().UTC()
	batch.ItemCount = len(items) + len(unenrolled)
	batch.PlacedCount = len(outcome.Placements)
	batch.FailedCount = len(outcome.Failures)
	batch.SkippedCount = len(outcome.Skipped) + len(unenrolled)
	batch.Status = models.BatchCompleted
	if outcome.Cancelled {
		batch.Status = models.BatchCancelled
	}
	batch.CompletedAt = &completed
	for i := range outcome.Placements {
		outcome.Placements[i].CreatedAt = completed
	}

	retried := retriedSources(plan.Retry, outcome)
	err = database.WithTx(persistCtx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.placements.InsertBatch(persistCtx, tx, outcome.Placements); err != nil {
			return err
		}
		if _, err := s.failures.MarkRetried(persistCtx, tx, retried, completed); err != nil {
			return err
		}
		if plan.Retry == nil {
			if _, err := s.failures.MarkRetriedByItemKeys(persistCtx, tx, plan.SemesterID, plan.Kind, scheduledKeys(outcome), completed); err != nil {
				return err
			}
		}
		return s.batches.Finish(persistCtx, tx, batch)
	})
	if err != nil {
		s.metrics.ObserveBatch(batch.Kind, models.BatchIncomplete, 0, nil, s.now().Sub(started))
		s.markIncomplete(batch.ID, err.Error())
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit placements")
	}

	var records []models.SchedulingFailure
	if len(outcome.Failures) > 0 {
		err = database.WithTx(persistCtx, s.tx, func(tx *sqlx.Tx) error {
			var recErr error
			records, recErr = s.recorder.RecordFailures(persistCtx, tx, batch, outcome.Failures, s.config.LegacyProjection)
			return recErr
		})
		if err != nil {
			message := fmt.Sprintf("placements committed but failures were not recorded: %v", err)
			s.markIncomplete(batch.ID, message)
			batch.Status = models.BatchIncomplete
			batch.ErrorMessage = &message
			s.metrics.ObserveBatch(batch.Kind, batch.Status, len(outcome.Placements), nil, s.now().Sub(started))
			s.afterCommit(persistCtx, batch)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record scheduling failures")
		}
	}

	s.metrics.ObserveBatch(batch.Kind, batch.Status, len(outcome.Placements), reasonCounts(outcome.Failures), s.now().Sub(started))
	s.afterCommit(persistCtx, batch)
	s.logger.Info("scheduling batch finished",
		zap.String("batch_id", batch.ID),
		zap.String("semester_id", batch.SemesterID),
		zap.String("status", string(batch.Status)),
		zap.Int("items", batch.ItemCount),
		zap.Int("placed", batch.PlacedCount),
		zap.Int("failed", batch.FailedCount),
		zap.Int("skipped", batch.SkippedCount),
	)

	skipped := make([]string, 0, len(outcome.Skipped))
	for _, item := range outcome.Skipped {
		skipped = append(skipped, item.Key)
	}
	return &dto.BatchResult{Batch: batch, Placements: outcome.Placements, Failures: records, Skipped: skipped, Unenrolled: unenrolled}, nil
}

func (s *BatchService) prepare(ctx context.Context, plan runPlan) (*CatalogSnapshot, []scheduler.SchedulableItem, error) {
	if plan.Retry == nil {
		snapshot, err := s.catalog.Load(ctx, plan.SemesterID, plan.Kind, plan.Dates)
		if err != nil {
			return nil, nil, err
		}
		return snapshot, snapshot.Items, nil
	}
	snapshot, err := s.catalog.LoadResources(ctx, plan.SemesterID, plan.Kind, plan.Dates)
	if err != nil {
		return nil, nil, err
	}
	items := make([]scheduler.SchedulableItem, 0, len(plan.Retry))
	for _, f := range plan.Retry {
		items = append(items, ItemFromFailure(f))
	}
	return snapshot, items, nil
}

// retriedSources returns the retried failures whose item is now in the timetable.
func retriedSources(retry []models.SchedulingFailure, outcome scheduler.Outcome) []string {
	if len(retry) == 0 {
		return nil
	}
	placed := make(map[string]bool, len(outcome.Placements)+len(outcome.Skipped))
	for _, p := range outcome.Placements {
		placed[p.ItemKey] = true
	}
	for _, item := range outcome.Skipped {
		placed[item.Key] = true
	}
	var ids []string
	for _, f := range retry {
		if placed[ItemFromFailure(f).Key] {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// scheduledKeys lists the item keys that hold a placement once the batch commits.
func scheduledKeys(outcome scheduler.Outcome) []string {
	keys := make([]string, 0, len(outcome.Placements)+len(outcome.Skipped))
	seen := make(map[string]bool, cap(keys))
	for _, p := range outcome.Placements {
		if !seen[p.ItemKey] {
			seen[p.ItemKey] = true
			keys = append(keys, p.ItemKey)
		}
	}
	for _, item := range outcome.Skipped {
		if !seen[item.Key] {
			seen[item.Key] = true
			keys = append(keys, item.Key)
		}
	}
	return keys
}

func reasonCounts(failures []scheduler.Failure) map[string]int {
	counts := make(map[string]int)
	for _, f := range failures {
		counts[string(f.Reason)]++
	}
	return counts
}

func (s *BatchService) afterCommit(ctx context.Context, batch *models.SchedulingBatch) {
	event := TimetableEvent{
		BatchID:    batch.ID,
		SemesterID: batch.SemesterID,
		Kind:       batch.Kind,
		Status:     batch.Status,
		Placements: batch.PlacedCount,
		Failures:   batch.FailedCount,
	}
	if err := s.notifier.TimetableChanged(ctx, event); err != nil {
		s.logger.Warn("failed to publish timetable event", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, summaryCacheKey(batch.ID)); err != nil {
		s.logger.Warn("failed to invalidate batch summary", zap.String("batch_id", batch.ID), zap.Error(err))
	}
}

func (s *BatchService) markIncomplete(batchID, message string) {
	if err := s.batches.MarkIncomplete(context.Background(), batchID, message, s.now().UTC()); err != nil {
		s.logger.Error("failed to mark batch incomplete", zap.String("batch_id", batchID), zap.Error(err))
	}
}

func (s *BatchService) track(batchID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[batchID] = cancel
	s.mu.Unlock()
}

func (s *BatchService) untrack(batchID string) {
	s.mu.Lock()
	delete(s.running, batchID)
	s.mu.Unlock()
}

// Cancel stops a running batch after its current item, or cancels a queued one outright.
func (s *BatchService) Cancel(ctx context.Context, batchID string) (*models.SchedulingBatch, error) {
	s.mu.Lock()
	cancel, ok := s.running[batchID]
	s.mu.Unlock()

	batch, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if ok {
		cancel()
		s.logger.Info("scheduling batch cancellation requested", zap.String("batch_id", batchID))
		return batch, nil
	}

	switch {
	case batch.Status.Terminal():
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "batch has already finished")
	case batch.Status == models.BatchRunning:
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch is running on another worker")
	}

	completed := s.now().UTC()
	batch.Status = models.BatchCancelled
	batch.CompletedAt = &completed
	if err := s.batches.Finish(ctx, nil, batch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "batch started before it could be cancelled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel batch")
	}
	return batch, nil
}

func (s *BatchService) findBatch(ctx context.Context, batchID string) (*models.SchedulingBatch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scheduling batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling batch")
	}
	return batch, nil
}

// Get returns a batch with its placements and failures.
func (s *BatchService) Get(ctx context.Context, batchID string) (*dto.BatchResult, error) {
	batch, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	placements, err := s.placements.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load placements")
	}
	failures, err := s.failures.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling failures")
	}
	return &dto.BatchResult{Batch: batch, Placements: placements, Failures: failures}, nil
}

// Placements returns the committed placements of a batch.
func (s *BatchService) Placements(ctx context.Context, batchID string) (*models.SchedulingBatch, []models.Placement, error) {
	batch, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	placements, err := s.placements.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load placements")
	}
	return batch, placements, nil
}

// List pages through a semester's batches, newest first.
func (s *BatchService) List(ctx context.Context, semesterID string, query dto.BatchListQuery) ([]models.SchedulingBatch, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch query")
	}
	page, size := query.Page, query.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	batches, total, err := s.batches.ListBySemester(ctx, semesterID, size, (page-1)*size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scheduling batches")
	}
	return batches, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Summary counts a batch's failures by status and reason. Counts are derived on read and cached.
func (s *BatchService) Summary(ctx context.Context, batchID string) (*models.BatchSummary, error) {
	summary, err := cached(ctx, s.cache, summaryCacheKey(batchID), s.config.SummaryTTL, func(ctx context.Context) (models.BatchSummary, error) {
		return s.buildSummary(ctx, batchID)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *BatchService) buildSummary(ctx context.Context, batchID string) (models.BatchSummary, error) {
	batch, err := s.findBatch(ctx, batchID)
	if err != nil {
		return models.BatchSummary{}, err
	}
	placed, err := s.placements.CountByBatch(ctx, batchID)
	if err != nil {
		return models.BatchSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count placements")
	}
	byStatus, err := s.failures.CountByStatus(ctx, batchID)
	if err != nil {
		return models.BatchSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count failures")
	}
	byReason, err := s.failures.CountByReason(ctx, batchID)
	if err != nil {
		return models.BatchSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count failures")
	}

	summary := models.BatchSummary{
		BatchID:    batchID,
		Status:     batch.Status,
		Placements: placed,
		ByStatus:   make(map[models.FailureStatus]int, len(byStatus)),
		ByReason:   make(map[models.ConflictKind]int, len(byReason)),
	}
	for _, row := range byStatus {
		summary.ByStatus[row.Status] = row.Count
		summary.Failures += row.Count
	}
	for _, row := range byReason {
		summary.ByReason[row.Reason] = row.Count
	}
	return summary, nil
}

func parseDates(raw []string) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(raw))
	dates := make([]time.Time, 0, len(raw))
	for _, value := range raw {
		d, err := time.Parse("2006-01-02", value)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date "+value)
		}
		if seen[value] {
			continue
		}
		seen[value] = true
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
