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

type failureTracker interface {
	Get(ctx context.Context, id string) (*models.SchedulingFailure, error)
	List(ctx context.Context, query dto.FailureQuery) ([]models.SchedulingFailure, *models.Pagination, error)
	Resolve(ctx context.Context, id string, req dto.ResolveFailureRequest) (*models.SchedulingFailure, error)
	Reopen(ctx context.Context, id string, req dto.ReopenFailureRequest) (*models.SchedulingFailure, error)
}

// FailureHandler exposes the failure queue and its resolution workflow.
type FailureHandler struct {
	service failureTracker
}

// NewFailureHandler constructs the handler.
func NewFailureHandler(svc *service.FailureService) *FailureHandler {
	return &FailureHandler{service: svc}
}

// List godoc
// @Summary List scheduling failures
// @Tags Failures
// @Produce json
// @Param batchId query string false "Batch ID"
// @Param semesterId query string false "Semester ID"
// @Param status query string false "pending, resolved, retried or ignored"
// @Param reason query string false "Conflict kind"
// @Param kind query string false "CLASS_TIMETABLE or EXAM_TIMETABLE"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /failures [get]
func (h *FailureHandler) List(c *gin.Context) {
	var query dto.FailureQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	failures, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, failures, pagination)
}

// Get godoc
// @Summary Get a scheduling failure
// @Tags Failures
// @Produce json
// @Param id path string true "Failure ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /failures/{id} [get]
func (h *FailureHandler) Get(c *gin.Context) {
	failure, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, failure, nil)
}

// Resolve godoc
// @Summary Resolve or ignore a pending failure
// @Tags Failures
// @Accept json
// @Produce json
// @Param id path string true "Failure ID"
// @Param payload body dto.ResolveFailureRequest true "Resolution"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /failures/{id}/resolve [post]
func (h *FailureHandler) Resolve(c *gin.Context) {
	var req dto.ResolveFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolve payload"))
		return
	}
	req.ResolvedBy = actorFromContext(c)

	failure, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, failure, nil)
}

// Reopen godoc
// @Summary Reopen a closed failure
// @Tags Failures
// @Accept json
// @Produce json
// @Param id path string true "Failure ID"
// @Param payload body dto.ReopenFailureRequest true "Reason for reopening"
// @Success 200 {object} response.Envelope
// @Router /failures/{id}/reopen [post]
func (h *FailureHandler) Reopen(c *gin.Context) {
	var req dto.ReopenFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reopen payload"))
		return
	}
	req.Actor = actorFromContext(c)

	failure, err := h.service.Reopen(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, failure, nil)
}
