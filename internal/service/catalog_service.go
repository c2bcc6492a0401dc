package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type catalogReader interface {
	FindSemester(ctx context.Context, id string) (*models.Semester, error)
	ListVenues(ctx context.Context, types []models.VenueType) ([]models.Venue, error)
	ListTimeSlots(ctx context.Context, kind models.TimetableKind) ([]models.TimeSlot, error)
	ListUnitAssignments(ctx context.Context, semesterID string) ([]models.UnitAssignment, error)
	ListClassEnrollments(ctx context.Context, semesterID string) ([]models.ClassEnrollment, error)
	ListClassMembers(ctx context.Context, semesterID string) ([]models.ClassMember, error)
	ListWorkloadLimits(ctx context.Context, semesterID string) ([]models.LecturerWorkloadLimit, error)
}

// CatalogSnapshot is the read-only resource view one batch runs against.
type CatalogSnapshot struct {
	Semester   *models.Semester
	Kind       models.TimetableKind
	Items      []scheduler.SchedulableItem
	Dates      []time.Time
	Slots      []models.TimeSlot
	Venues     []models.Venue
	Limits     []models.LecturerWorkloadLimit
	Membership scheduler.Membership
	// Unenrolled holds assignment keys dropped from the worklist for having no students.
	Unenrolled []string
}

// CatalogService derives worklists and scheduling resources for a semester.
type CatalogService struct {
	repo   catalogReader
	logger *zap.Logger
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(repo catalogReader, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, logger: logger}
}

// Load returns resources plus the full worklist for the semester and kind.
func (s *CatalogService) Load(ctx context.Context, semesterID string, kind models.TimetableKind, dates []time.Time) (*CatalogSnapshot, error) {
	snapshot, err := s.LoadResources(ctx, semesterID, kind, dates)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListUnitAssignments(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit assignments")
	}
	enrollments, err := s.repo.ListClassEnrollments(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	items, skipped := BuildWorklist(semesterID, kind, assignments, enrollments)
	for _, key := range skipped {
		s.logger.Warn("assignment has no enrolled students", zap.String("semester_id", semesterID), zap.String("item_key", key))
	}
	snapshot.Items = items
	snapshot.Unenrolled = skipped
	return snapshot, nil
}

// LoadResources returns everything but the worklist, for retries that rebuild items from failures.
func (s *CatalogService) LoadResources(ctx context.Context, semesterID string, kind models.TimetableKind, dates []time.Time) (*CatalogSnapshot, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown timetable kind")
	}
	semester, err := s.repo.FindSemester(ctx, semesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	window, err := ScheduleDates(semester, kind, dates)
	if err != nil {
		return nil, err
	}

	venues, err := s.repo.ListVenues(ctx, venueTypesFor(kind))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load venues")
	}
	slots, err := s.repo.ListTimeSlots(ctx, kind)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slots")
	}
	members, err := s.repo.ListClassMembers(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class members")
	}
	limits, err := s.repo.ListWorkloadLimits(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workload limits")
	}

	return &CatalogSnapshot{
		Semester:   semester,
		Kind:       kind,
		Dates:      window,
		Slots:      slots,
		Venues:     venues,
		Limits:     limits,
		Membership: scheduler.NewMembership(members),
	}, nil
}

func venueTypesFor(kind models.TimetableKind) []models.VenueType {
	if kind == models.TimetableExam {
		return []models.VenueType{models.VenueExamRoom}
	}
	return []models.VenueType{models.VenueClassroom, models.VenueLab}
}

// ScheduleDates resolves the dates a batch may use. Explicit dates must fall inside the semester.
// Otherwise class timetables use the first teaching week and exam timetables the exam window.
func ScheduleDates(semester *models.Semester, kind models.TimetableKind, explicit []time.Time) ([]time.Time, error) {
	if len(explicit) > 0 {
		start := truncateDate(semester.StartDate)
		end := truncateDate(semester.EndDate)
		dates := make([]time.Time, 0, len(explicit))
		for _, d := range explicit {
			day := truncateDate(d)
			if day.Before(start) || day.After(end) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "date "+models.DateKey(day)+" is outside the semester")
			}
			dates = append(dates, day)
		}
		return dates, nil
	}

	var from, to time.Time
	switch kind {
	case models.TimetableExam:
		if semester.ExamStartDate == nil || semester.ExamEndDate == nil {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "semester has no exam window")
		}
		from, to = truncateDate(*semester.ExamStartDate), truncateDate(*semester.ExamEndDate)
	default:
		from = truncateDate(semester.StartDate)
		to = from.AddDate(0, 0, 6)
		if end := truncateDate(semester.EndDate); end.Before(to) {
			to = end
		}
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "semester date window is empty")
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildWorklist turns assignments into schedulable items. A per-class assignment becomes one
// PerClass item. A common assignment becomes one Shared item over every enrolled class of the
// unit not already covered by a per-class assignment. Items without students are returned as
// skipped keys.
func BuildWorklist(semesterID string, kind models.TimetableKind, assignments []models.UnitAssignment, enrollments []models.ClassEnrollment) ([]scheduler.SchedulableItem, []string) {
	type classCount struct {
		name  string
		count int
	}
	byUnit := make(map[string]map[string]classCount)
	for _, e := range enrollments {
		if byUnit[e.UnitID] == nil {
			byUnit[e.UnitID] = make(map[string]classCount)
		}
		byUnit[e.UnitID][e.ClassID] = classCount{name: e.ClassName, count: e.StudentCount}
	}

	covered := make(map[string]map[string]bool)
	for _, a := range assignments {
		if a.ClassID == nil {
			continue
		}
		if covered[a.UnitID] == nil {
			covered[a.UnitID] = make(map[string]bool)
		}
		covered[a.UnitID][*a.ClassID] = true
	}

	var (
		items   []scheduler.SchedulableItem
		skipped []string
		seen    = make(map[string]bool)
	)
	for _, a := range assignments {
		item := scheduler.SchedulableItem{
			Kind:            kind,
			SemesterID:      semesterID,
			ProgramID:       a.ProgramID,
			SchoolID:        a.SchoolID,
			UnitID:          a.UnitID,
			UnitCode:        a.UnitCode,
			UnitName:        a.UnitName,
			LecturerCode:    deref(a.LecturerCode),
			CreditHours:     a.CreditHours,
			DurationMinutes: a.DurationMinutes,
		}

		if a.ClassID != nil {
			item.Scope = scheduler.PerClass{ClassID: *a.ClassID}
			enrolled := byUnit[a.UnitID][*a.ClassID]
			item.StudentCount = enrolled.count
			name := deref(a.ClassName)
			if name == "" {
				name = enrolled.name
			}
			item.ClassNames = []string{name}
		} else {
			var classIDs []string
			for classID, enrolled := range byUnit[a.UnitID] {
				if covered[a.UnitID][classID] || enrolled.count == 0 {
					continue
				}
				classIDs = append(classIDs, classID)
			}
			shared := scheduler.NewShared(classIDs)
			item.Scope = shared
			for _, classID := range shared.Classes {
				enrolled := byUnit[a.UnitID][classID]
				item.StudentCount += enrolled.count
				item.ClassNames = append(item.ClassNames, enrolled.name)
			}
		}

		item.Key = scheduler.ItemKey(item.UnitID, item.Scope)
		if seen[item.Key] {
			continue
		}
		seen[item.Key] = true
		if item.StudentCount <= 0 {
			skipped = append(skipped, item.Key)
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, skipped
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
