package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

type rescheduleService interface {
	CreateRequest(ctx context.Context, actor models.Actor, lessonID string, req dto.CreateRescheduleRequest) (*models.RescheduleRequest, error)
	Accept(ctx context.Context, actor models.Actor, requestID string) (*models.RescheduleRequest, error)
	Reject(ctx context.Context, actor models.Actor, requestID string) (*models.RescheduleRequest, error)
	ListForLesson(ctx context.Context, actor models.Actor, lessonID string) ([]models.RescheduleRequest, error)
}

// RescheduleHandler exposes the two-party reschedule flow.
type RescheduleHandler struct {
	service rescheduleService
}

// NewRescheduleHandler constructs the handler.
func NewRescheduleHandler(svc rescheduleService) *RescheduleHandler {
	return &RescheduleHandler{service: svc}
}

// Create godoc
// @Summary Propose a new interval for a lesson
// @Tags Reschedule
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.CreateRescheduleRequest true "Proposal"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/reschedule-requests [post]
func (h *RescheduleHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}
	created, err := h.service.CreateRequest(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List reschedule requests of a lesson
// @Tags Reschedule
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/reschedule-requests [get]
func (h *RescheduleHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	requests, err := h.service.ListForLesson(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests)
}

// Accept godoc
// @Summary Accept a pending reschedule request
// @Tags Reschedule
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reschedule-requests/{id}/accept [post]
func (h *RescheduleHandler) Accept(c *gin.Context) {
	h.respond(c, h.service.Accept)
}

// Reject godoc
// @Summary Reject a pending reschedule request
// @Tags Reschedule
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /reschedule-requests/{id}/reject [post]
func (h *RescheduleHandler) Reject(c *gin.Context) {
	h.respond(c, h.service.Reject)
}

func (h *RescheduleHandler) respond(c *gin.Context, decide func(context.Context, models.Actor, string) (*models.RescheduleRequest, error)) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	decided, err := decide(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decided)
}
