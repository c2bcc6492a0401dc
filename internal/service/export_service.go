package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/export"
)

type batchPlacementReader interface {
	Placements(ctx context.Context, batchID string) (*models.SchedulingBatch, []models.Placement, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportFile is a rendered timetable ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders committed batch placements as CSV or PDF timetables.
type ExportService struct {
	batches batchPlacementReader
	csv     datasetRenderer
	pdf     datasetRenderer
	logger  *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(batches batchPlacementReader, csv, pdf datasetRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{batches: batches, csv: csv, pdf: pdf, logger: logger}
}

// ExportBatch renders the batch timetable in the requested format.
func (s *ExportService) ExportBatch(ctx context.Context, batchID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatPDF
	}
	var (
		renderer    datasetRenderer
		contentType string
	)
	switch format {
	case ExportFormatCSV:
		renderer, contentType = s.csv, "text/csv"
	case ExportFormatPDF:
		renderer, contentType = s.pdf, "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	batch, placements, err := s.batches.Placements(ctx, batchID)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(TimetableDataset(batch, placements))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}
	s.logger.Debug("timetable exported", zap.String("batch_id", batchID), zap.String("format", format), zap.Int("bytes", len(body)))
	return &ExportFile{Filename: buildFilename(batch, format), ContentType: contentType, Body: body}, nil
}

// TimetableDataset lays placements out by date, start time and venue.
func TimetableDataset(batch *models.SchedulingBatch, placements []models.Placement) export.Dataset {
	rows := append([]models.Placement(nil), placements...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.VenueCode < b.VenueCode
	})

	title := "Class Timetable"
	if batch.Kind == models.TimetableExam {
		title = "Exam Timetable"
	}
	ds := export.Dataset{
		Title:    title,
		Subtitle: fmt.Sprintf("Semester %s, batch %s (%s)", batch.SemesterID, batch.ID, batch.Status),
		Columns: []export.Column{
			{Header: "Date", Width: 1.2},
			{Header: "Day", Width: 1},
			{Header: "Start", Width: 0.7},
			{Header: "End", Width: 0.7},
			{Header: "Slot", Width: 0.5},
			{Header: "Unit", Width: 1},
			{Header: "Unit name", Width: 2.5},
			{Header: "Classes", Width: 2},
			{Header: "Lecturer", Width: 1},
			{Header: "Venue", Width: 1},
			{Header: "Students", Width: 0.8},
		},
	}
	for _, p := range rows {
		ds.Rows = append(ds.Rows, []string{
			p.DateKey(),
			p.Date.Weekday().String(),
			p.StartTime.String(),
			p.EndTime.String(),
			strconv.Itoa(p.SlotNumber),
			p.UnitCode,
			p.UnitName,
			strings.Join(p.ClassNames, ", "),
			p.LecturerCode,
			p.VenueCode,
			strconv.Itoa(p.StudentCount),
		})
	}
	return ds
}

func buildFilename(batch *models.SchedulingBatch, format string) string {
	kind := "class"
	if batch.Kind == models.TimetableExam {
		kind = "exam"
	}
	stamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_timetable_%s_%s.%s", kind, sanitizeFilename(batch.SemesterID), stamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
