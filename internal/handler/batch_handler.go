package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/service"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/response"
)

type batchRunner interface {
	RunBatch(ctx context.Context, req dto.RunBatchRequest) (*dto.BatchResult, error)
	Retry(ctx context.Context, req dto.RetryFailuresRequest) (*dto.BatchResult, error)
	Cancel(ctx context.Context, batchID string) (*models.SchedulingBatch, error)
	Get(ctx context.Context, batchID string) (*dto.BatchResult, error)
	List(ctx context.Context, semesterID string, query dto.BatchListQuery) ([]models.SchedulingBatch, *models.Pagination, error)
	Summary(ctx context.Context, batchID string) (*models.BatchSummary, error)
}

type timetableExporter interface {
	ExportBatch(ctx context.Context, batchID, format string) (*service.ExportFile, error)
}

// BatchHandler exposes scheduling batch endpoints.
type BatchHandler struct {
	service  batchRunner
	exporter timetableExporter
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(svc *service.BatchService, exporter *service.ExportService) *BatchHandler {
	return &BatchHandler{service: svc, exporter: exporter}
}

// Run godoc
// @Summary Run a scheduling batch for a semester
// @Description Places the semester worklist. With async=true the batch is queued and 202 is returned.
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body dto.RunBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /semesters/{id}/batches [post]
func (h *BatchHandler) Run(c *gin.Context) {
	var req dto.RunBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	req.SemesterID = c.Param("id")
	req.RequestedBy = actorFromContext(c)

	result, err := h.service.RunBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeBatchResult(c, result)
}

// Retry godoc
// @Summary Retry scheduling failures
// @Description Re-runs pending failures as a new batch linked to their source batch.
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.RetryFailuresRequest true "Retry payload"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /failures/retry [post]
func (h *BatchHandler) Retry(c *gin.Context) {
	var req dto.RetryFailuresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid retry payload"))
		return
	}
	req.RequestedBy = actorFromContext(c)

	result, err := h.service.Retry(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeBatchResult(c, result)
}

func writeBatchResult(c *gin.Context, result *dto.BatchResult) {
	if result.Batch != nil && result.Batch.Status == models.BatchQueued {
		response.Accepted(c, result)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List scheduling batches of a semester
// @Tags Scheduling
// @Produce json
// @Param id path string true "Semester ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id}/batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	var query dto.BatchListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	batches, pagination, err := h.service.List(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, pagination)
}

// Get godoc
// @Summary Get a batch with its placements and failures
// @Tags Scheduling
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	result, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Summary godoc
// @Summary Failure counts of a batch by status and reason
// @Tags Scheduling
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/summary [get]
func (h *BatchHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Cancel godoc
// @Summary Cancel a queued or running batch
// @Description Items not yet attempted are recorded as BATCH_CANCELLED; placements made so far are kept.
// @Tags Scheduling
// @Produce json
// @Param id path string true "Batch ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches/{id}/cancel [post]
func (h *BatchHandler) Cancel(c *gin.Context) {
	batch, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, batch)
}

// Export godoc
// @Summary Export a batch timetable
// @Tags Scheduling
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Batch ID"
// @Param format query string false "pdf or csv" Enums(pdf, csv)
// @Success 200 {file} binary
// @Router /batches/{id}/export [get]
func (h *BatchHandler) Export(c *gin.Context) {
	file, err := h.exporter.ExportBatch(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", service.ExportFormatPDF))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
