package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

type availabilityBlockService interface {
	CreateBlock(ctx context.Context, ownerID string, req dto.CreateAvailabilityBlockRequest) (*models.BlockWithEntries, error)
	DeleteBlock(ctx context.Context, blockID, ownerID string) (bool, error)
	UpdateBlock(ctx context.Context, blockID, ownerID string, req dto.UpdateAvailabilityBlockRequest) (*models.AvailabilityBlock, error)
	ListBlocks(ctx context.Context, ownerID string, from, to time.Time) ([]models.AvailabilityBlock, error)
}

// AvailabilityBlockHandler lets tutors manage recurring non-teaching time.
type AvailabilityBlockHandler struct {
	service availabilityBlockService
	loc     *time.Location
}

// NewAvailabilityBlockHandler constructs the handler.
func NewAvailabilityBlockHandler(svc availabilityBlockService, loc *time.Location) *AvailabilityBlockHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityBlockHandler{service: svc, loc: loc}
}

// Create godoc
// @Summary Declare a recurring availability block
// @Tags AvailabilityBlocks
// @Accept json
// @Produce json
// @Param payload body dto.CreateAvailabilityBlockRequest true "Block payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /availability-blocks [post]
func (h *AvailabilityBlockHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateAvailabilityBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability block payload"))
		return
	}
	created, err := h.service.CreateBlock(c.Request.Context(), actor.ProfileID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List blocks with entries in a range
// @Tags AvailabilityBlocks
// @Produce json
// @Param from query string true "Range start"
// @Param to query string true "Range end, exclusive"
// @Success 200 {object} response.Envelope
// @Router /availability-blocks [get]
func (h *AvailabilityBlockHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	from, to, ok := parseRange(c, h.loc)
	if !ok {
		return
	}
	blocks, err := h.service.ListBlocks(c.Request.Context(), actor.ProfileID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks)
}

// Update godoc
// @Summary Edit block title, notes or interval
// @Tags AvailabilityBlocks
// @Accept json
// @Produce json
// @Param id path string true "Block ID"
// @Param payload body dto.UpdateAvailabilityBlockRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /availability-blocks/{id} [patch]
func (h *AvailabilityBlockHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.UpdateAvailabilityBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability block payload"))
		return
	}
	block, err := h.service.UpdateBlock(c.Request.Context(), c.Param("id"), actor.ProfileID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, block)
}

// Delete godoc
// @Summary Delete a block and every entry it produced
// @Tags AvailabilityBlocks
// @Param id path string true "Block ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /availability-blocks/{id} [delete]
func (h *AvailabilityBlockHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	deleted, err := h.service.DeleteBlock(c.Request.Context(), c.Param("id"), actor.ProfileID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !deleted {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "availability block not found"))
		return
	}
	response.NoContent(c)
}
