package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

type scheduleService interface {
	GenerateSchedule(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error)
	ListEntries(ctx context.Context, ownerID string, from, to time.Time) ([]models.ScheduleEntry, error)
	ExportEntries(ctx context.Context, ownerID string, from, to time.Time, format dto.ExportFormat) (*dto.ExportResult, error)
	CheckTutorConflict(ctx context.Context, ownerID string, interval models.Interval, exclude mo.Option[string]) (*models.ScheduleEntry, error)
	CancelLesson(ctx context.Context, actor models.Actor, lessonID string) error
}

// ScheduleHandler exposes lesson generation and tutor calendars.
type ScheduleHandler struct {
	service scheduleService
	loc     *time.Location
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleService, loc *time.Location) *ScheduleHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleHandler{service: svc, loc: loc}
}

// Generate godoc
// @Summary Generate lessons for a class or class request
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Generation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedules/generate [post]
func (h *ScheduleHandler) Generate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule generation payload"))
		return
	}
	resp, err := h.service.GenerateSchedule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Entries godoc
// @Summary List calendar entries of a tutor
// @Tags Schedules
// @Produce json
// @Param from query string true "Range start (RFC 3339 or YYYY-MM-DD)"
// @Param to query string true "Range end, exclusive"
// @Param ownerId query string false "Tutor profile (admins only)"
// @Success 200 {object} response.Envelope
// @Router /schedules/entries [get]
func (h *ScheduleHandler) Entries(c *gin.Context) {
	ownerID, ok := resolveOwner(c, c.Query("ownerId"))
	if !ok {
		return
	}
	from, to, ok := parseRange(c, h.loc)
	if !ok {
		return
	}
	entries, err := h.service.ListEntries(c.Request.Context(), ownerID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}

// Export godoc
// @Summary Export a tutor calendar
// @Tags Schedules
// @Produce text/csv
// @Produce application/pdf
// @Param from query string true "Range start"
// @Param to query string true "Range end, exclusive"
// @Param format query string false "csv (default) or pdf"
// @Param ownerId query string false "Tutor profile (admins only)"
// @Success 200 {file} file
// @Router /schedules/entries/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	ownerID, ok := resolveOwner(c, c.Query("ownerId"))
	if !ok {
		return
	}
	from, to, ok := parseRange(c, h.loc)
	if !ok {
		return
	}
	format := dto.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.ExportFormatCSV))))
	result, err := h.service.ExportEntries(c.Request.Context(), ownerID, from, to, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Content)
}

// CheckConflict godoc
// @Summary Check an interval against a tutor calendar
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ConflictCheckRequest true "Interval to check"
// @Success 200 {object} response.Envelope
// @Router /schedules/conflicts/check [post]
func (h *ScheduleHandler) CheckConflict(c *gin.Context) {
	var req dto.ConflictCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conflict check payload"))
		return
	}
	ownerID, ok := resolveOwner(c, req.OwnerID)
	if !ok {
		return
	}
	exclude := mo.None[string]()
	if id := strings.TrimSpace(req.ExcludeEntryID); id != "" {
		exclude = mo.Some(id)
	}
	entry, err := h.service.CheckTutorConflict(c.Request.Context(), ownerID, models.NewInterval(req.StartAt, req.EndAt), exclude)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ConflictCheckResponse{Conflict: entry != nil, Entry: entry})
}

// CancelLesson godoc
// @Summary Cancel a lesson and free its slot
// @Tags Schedules
// @Param id path string true "Lesson ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [delete]
func (h *ScheduleHandler) CancelLesson(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.service.CancelLesson(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
