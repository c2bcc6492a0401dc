package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/repository"
	"github.com/noah-isme/uni-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type failureStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, failure *models.SchedulingFailure) error
	InsertLegacy(ctx context.Context, exec sqlx.ExtContext, rows []models.FailedExamSchedule) error
	FindByID(ctx context.Context, id string) (*models.SchedulingFailure, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.SchedulingFailure, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.SchedulingFailure, error)
	List(ctx context.Context, filter models.FailureFilter) ([]models.SchedulingFailure, int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateFailureStatusParams) error
	MarkRetried(ctx context.Context, exec sqlx.ExtContext, ids []string, at time.Time) (int64, error)
	MarkRetriedByItemKeys(ctx context.Context, exec sqlx.ExtContext, semesterID string, kind models.TimetableKind, itemKeys []string, at time.Time) (int64, error)
	CountByStatus(ctx context.Context, batchID string) ([]models.StatusCount, error)
	CountByReason(ctx context.Context, batchID string) ([]models.ReasonCount, error)
}

// reopenable are the statuses an operator may move back to pending.
var reopenable = []models.FailureStatus{models.FailureResolved, models.FailureIgnored, models.FailureRetried}

// FailureService records unplaceable items and runs their resolution workflow.
type FailureService struct {
	repo      failureStore
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewFailureService constructs the failure service.
func NewFailureService(repo failureStore, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *FailureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// RecordFailure persists one failure through exec and returns its id. With legacy set the
// program scoped projection is written alongside, one row per class name.
func (s *FailureService) RecordFailure(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch, failure scheduler.Failure, legacy bool) (string, error) {
	record, err := s.record(ctx, exec, batch, failure, legacy)
	if err != nil {
		return "", err
	}
	return record.ID, nil
}

func (s *FailureService) record(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch, failure scheduler.Failure, legacy bool) (models.SchedulingFailure, error) {
	record := failureRecord(batch, failure)
	record.CreatedAt = s.now().UTC()
	if err := s.repo.Insert(ctx, exec, &record); err != nil {
		return models.SchedulingFailure{}, err
	}
	if !legacy {
		return record, nil
	}

	rows := make([]models.FailedExamSchedule, 0, len(record.ClassNames))
	for _, className := range record.ClassNames {
		rows = append(rows, models.FailedExamSchedule{
			FailureID:     record.ID,
			SemesterID:    record.SemesterID,
			ProgramID:     record.ProgramID,
			SchoolID:      record.SchoolID,
			UnitCode:      record.UnitCode,
			UnitName:      record.UnitName,
			ClassName:     className,
			StudentCount:  record.StudentCount,
			FailureReason: record.FailureReason,
			Status:        record.Status,
			CreatedAt:     record.CreatedAt,
		})
	}
	if err := s.repo.InsertLegacy(ctx, exec, rows); err != nil {
		return models.SchedulingFailure{}, err
	}
	return record, nil
}

// RecordFailures persists every failure of a batch through exec and returns the stored records.
func (s *FailureService) RecordFailures(ctx context.Context, exec sqlx.ExtContext, batch *models.SchedulingBatch, failures []scheduler.Failure, legacy bool) ([]models.SchedulingFailure, error) {
	records := make([]models.SchedulingFailure, 0, len(failures))
	for _, failure := range failures {
		record, err := s.record(ctx, exec, batch, failure, legacy)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func failureRecord(batch *models.SchedulingBatch, failure scheduler.Failure) models.SchedulingFailure {
	item := failure.Item
	record := models.SchedulingFailure{
		BatchID:         batch.ID,
		SemesterID:      batch.SemesterID,
		Kind:            batch.Kind,
		ProgramID:       item.ProgramID,
		SchoolID:        item.SchoolID,
		ItemKey:         item.Key,
		UnitID:          item.UnitID,
		UnitCode:        item.UnitCode,
		UnitName:        item.UnitName,
		Shared:          item.IsShared(),
		ClassIDs:        item.ClassIDs(),
		ClassNames:      append([]string(nil), item.ClassNames...),
		LecturerCode:    item.LecturerCode,
		StudentCount:    item.StudentCount,
		CreditHours:     item.CreditHours,
		DurationMinutes: item.DurationMinutes,
		ReasonCode:      failure.Reason,
		FailureReason:   failure.Message,
		ConflictDetails: failure.Details,
		Status:          models.FailurePending,
	}
	if item.RetryOfFailureID != "" {
		id := item.RetryOfFailureID
		record.RetryOfFailureID = &id
	}
	if best := failure.Best; best != nil {
		date := best.Candidate.Date
		start, end := best.Candidate.Start, best.Candidate.End
		slotNumber := best.Candidate.Slot.SlotNumber
		venueID := best.Candidate.Venue.ID
		record.AttemptedDate = &date
		record.AttemptedStartTime = &start
		record.AttemptedEndTime = &end
		record.AttemptedSlotNumber = &slotNumber
		record.AttemptedVenueID = &venueID
	}
	return record
}

// ItemFromFailure rebuilds the schedulable item a failure snapshot describes.
func ItemFromFailure(f models.SchedulingFailure) scheduler.SchedulableItem {
	var scope scheduler.Scope
	if f.Shared {
		scope = scheduler.NewShared(f.ClassIDs)
	} else if len(f.ClassIDs) > 0 {
		scope = scheduler.PerClass{ClassID: f.ClassIDs[0]}
	}
	key := f.ItemKey
	if key == "" {
		key = scheduler.ItemKey(f.UnitID, scope)
	}
	return scheduler.SchedulableItem{
		Key:              key,
		Kind:             f.Kind,
		SemesterID:       f.SemesterID,
		ProgramID:        f.ProgramID,
		SchoolID:         f.SchoolID,
		UnitID:           f.UnitID,
		UnitCode:         f.UnitCode,
		UnitName:         f.UnitName,
		Scope:            scope,
		ClassNames:       append([]string(nil), f.ClassNames...),
		LecturerCode:     f.LecturerCode,
		StudentCount:     f.StudentCount,
		CreditHours:      f.CreditHours,
		DurationMinutes:  f.DurationMinutes,
		RetryOfFailureID: f.ID,
	}
}

// Get returns one failure.
func (s *FailureService) Get(ctx context.Context, id string) (*models.SchedulingFailure, error) {
	failure, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scheduling failure not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling failure")
	}
	return failure, nil
}

// List returns the failure queue page matching the query.
func (s *FailureService) List(ctx context.Context, query dto.FailureQuery) ([]models.SchedulingFailure, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid failure query")
	}
	filter := models.FailureFilter{
		BatchID:    query.BatchID,
		SemesterID: query.SemesterID,
		Status:     models.FailureStatus(query.Status),
		ReasonCode: models.ConflictKind(strings.ToUpper(query.Reason)),
		Kind:       models.TimetableKind(query.Kind),
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	failures, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scheduling failures")
	}
	return failures, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Resolve closes a pending failure. Only resolved and ignored are accepted; retried is
// reached by re-running the failure, never by hand.
func (s *FailureService) Resolve(ctx context.Context, id string, req dto.ResolveFailureRequest) (*models.SchedulingFailure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}
	switch req.Status {
	case models.FailureResolved, models.FailureIgnored:
	case models.FailureRetried:
		return nil, appErrors.Clone(appErrors.ErrValidation, "retried is set by re-running the failure")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be resolved or ignored")
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resolution notes are required")
	}
	actor := strings.TrimSpace(req.ResolvedBy)
	if actor == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resolvedBy is required")
	}

	failure, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if failure.Status != models.FailurePending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending failures can be "+string(req.Status))
	}

	now := s.now().UTC()
	params := repository.UpdateFailureStatusParams{
		ID:         id,
		From:       []models.FailureStatus{models.FailurePending},
		To:         req.Status,
		ResolvedBy: &actor,
		ResolvedAt: &now,
		Notes:      &notes,
		UpdatedAt:  now,
	}
	if err := s.applyTransition(ctx, params); err != nil {
		return nil, err
	}

	failure.Status = req.Status
	failure.ResolvedBy = &actor
	failure.ResolvedAt = &now
	failure.ResolutionNotes = &notes
	failure.UpdatedAt = now
	s.afterTransition(ctx, failure)
	return failure, nil
}

// Reopen moves a resolved, ignored or retried failure back to pending.
func (s *FailureService) Reopen(ctx context.Context, id string, req dto.ReopenFailureRequest) (*models.SchedulingFailure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reopen payload")
	}
	failure, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if failure.Status == models.FailurePending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "failure is already pending")
	}

	notes := strings.TrimSpace(req.Notes)
	now := s.now().UTC()
	params := repository.UpdateFailureStatusParams{
		ID:        id,
		From:      reopenable,
		To:        models.FailurePending,
		Notes:     &notes,
		UpdatedAt: now,
	}
	if err := s.applyTransition(ctx, params); err != nil {
		return nil, err
	}

	failure.Status = models.FailurePending
	failure.ResolvedBy = nil
	failure.ResolvedAt = nil
	failure.ResolutionNotes = &notes
	failure.UpdatedAt = now
	s.logger.Info("scheduling failure reopened", zap.String("failure_id", id), zap.String("actor", req.Actor))
	s.afterTransition(ctx, failure)
	return failure, nil
}

func (s *FailureService) applyTransition(ctx context.Context, params repository.UpdateFailureStatusParams) error {
	if err := s.repo.UpdateStatus(ctx, nil, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// status changed between read and write
			return appErrors.Clone(appErrors.ErrInvalidTransition, "failure status changed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update failure status")
	}
	return nil
}

func (s *FailureService) afterTransition(ctx context.Context, failure *models.SchedulingFailure) {
	s.metrics.RecordFailureTransition(failure.Status)
	if err := s.cache.Invalidate(ctx, summaryCacheKey(failure.BatchID)); err != nil {
		s.logger.Warn("failed to invalidate batch summary", zap.String("batch_id", failure.BatchID), zap.Error(err))
	}
}

func summaryCacheKey(batchID string) string {
	return "summary:" + batchID
}
