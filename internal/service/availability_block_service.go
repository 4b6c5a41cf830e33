package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

const (
	horizonDateLayout     = "2006-01-02"
	defaultMaxHorizonDays = 366
)

type availabilityBlockStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, block *models.AvailabilityBlock) error
	FindOwned(ctx context.Context, exec sqlx.ExtContext, id, ownerID string) (*models.AvailabilityBlock, error)
	UpdateDetails(ctx context.Context, exec sqlx.ExtContext, block *models.AvailabilityBlock) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListWithEntriesIn(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval) ([]models.AvailabilityBlock, error)
}

// AvailabilityBlockConfig bounds block recurrence.
type AvailabilityBlockConfig struct {
	// MaxHorizonDays is how far past the block start a horizon date may fall.
	MaxHorizonDays int
}

// AvailabilityBlockService manages tutor free time and the block entries it occupies.
type AvailabilityBlockService struct {
	runner    atomicRunner
	locker    ownerLocker
	blocks    availabilityBlockStore
	entries   scheduleEntryStore
	expander  *RecurrenceExpander
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	maxHorizonDays int
}

// NewAvailabilityBlockService wires block dependencies.
func NewAvailabilityBlockService(
	runner atomicRunner,
	locker ownerLocker,
	blocks availabilityBlockStore,
	entries scheduleEntryStore,
	expander *RecurrenceExpander,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg AvailabilityBlockConfig,
) *AvailabilityBlockService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxHorizonDays <= 0 {
		cfg.MaxHorizonDays = defaultMaxHorizonDays
	}
	return &AvailabilityBlockService{
		runner:    runner,
		locker:    locker,
		blocks:    blocks,
		entries:   entries,
		expander:  expander,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,

		maxHorizonDays: cfg.MaxHorizonDays,
	}
}

// CreateBlock stores a block and one block entry per occurrence of its rule, from StartAt's
// date through the rule's horizon date. Every occurrence must be free on the tutor's calendar.
func (s *AvailabilityBlockService) CreateBlock(ctx context.Context, ownerID string, req dto.CreateAvailabilityBlockRequest) (*models.BlockWithEntries, error) {
	if ownerID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "owner id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability block payload")
	}
	if !req.EndAt.After(req.StartAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endAt must be after startAt")
	}
	if req.Recurrence == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence rule is required")
	}
	rule, err := s.parseRule(*req.Recurrence)
	if err != nil {
		return nil, err
	}
	if err := s.checkHorizon(req.StartAt, rule.Horizon); err != nil {
		return nil, err
	}
	intervals, err := s.expander.Intervals(rule, req.StartAt)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to expand recurrence rule")
	}
	if len(intervals) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no occurrences")
	}

	y, m, d := rule.Horizon.Date()
	days := make(pq.Int32Array, 0, len(rule.DaysOfWeek))
	for _, day := range uniqueWeekdays(rule.DaysOfWeek) {
		days = append(days, int32(day))
	}
	template := models.AvailabilityBlock{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       req.Title,
		Notes:       req.Notes,
		StartAt:     req.StartAt.UTC(),
		EndAt:       req.EndAt.UTC(),
		DaysOfWeek:  days,
		StartTime:   rule.StartTime,
		EndTime:     rule.EndTime,
		HorizonDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}

	result, err := func() (*models.BlockWithEntries, error) {
		var out *models.BlockWithEntries
		err := s.runner.RunAtomic(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
			block := template
			entries, err := s.materialise(ctx, tx, &block, intervals)
			if err != nil {
				return err
			}
			out = &models.BlockWithEntries{Block: block, Entries: entries}
			return nil
		})
		return out, err
	}()
	if err != nil {
		err = txError(err, "failed to create availability block")
		if appErrors.HasCode(err, appErrors.ErrConflict) {
			s.metrics.RecordConflict("availability_block")
		}
		return nil, err
	}

	s.cache.InvalidateOwner(ctx, ownerID)
	s.logger.Info("availability block created",
		zap.String("block_id", result.Block.ID),
		zap.String("owner_id", ownerID),
		zap.Int("count", len(result.Entries)))
	return result, nil
}

func (s *AvailabilityBlockService) materialise(ctx context.Context, tx sqlx.ExtContext, block *models.AvailabilityBlock, intervals []models.Interval) ([]models.ScheduleEntry, error) {
	if err := lockOwner(ctx, s.locker, tx, block.OwnerID); err != nil {
		return nil, err
	}
	span := models.NewInterval(intervals[0].Start, intervals[len(intervals)-1].End)
	working, err := s.entries.ListOverlapping(ctx, tx, block.OwnerID, span)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule entries")
	}

	entries := make([]models.ScheduleEntry, 0, len(intervals))
	for _, interval := range intervals {
		if clash := FirstOverlap(working, interval, mo.None[string]()); clash != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("occurrence at %s overlaps schedule entry %s",
				interval.Start.In(s.expander.Location()).Format(time.RFC3339), clash.ID))
		}
		entry := models.ScheduleEntry{
			ID:       uuid.NewString(),
			OwnerID:  block.OwnerID,
			StartAt:  interval.Start,
			EndAt:    interval.End,
			Kind:     models.EntryKindBlock,
			BlockRef: &block.ID,
		}
		entries = append(entries, entry)
		working = append(working, entry)
	}

	if err := s.blocks.Create(ctx, tx, block); err != nil {
		return nil, appErrors.Internal(err, "failed to store availability block")
	}
	if err := insertEntries(ctx, s.entries, tx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteBlock removes a block and exactly the entries it produced, past ones included. It
// reports false when the block does not exist or belongs to someone else.
func (s *AvailabilityBlockService) DeleteBlock(ctx context.Context, blockID, ownerID string) (bool, error) {
	if !isEntityID(blockID) || ownerID == "" {
		return false, nil
	}

	var (
		deleted bool
		removed int64
	)
	err := s.runner.RunAtomic(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		deleted, removed = false, 0
		block, err := s.blocks.FindOwned(ctx, tx, blockID, ownerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return appErrors.Internal(err, "failed to load availability block")
		}
		if err := lockOwner(ctx, s.locker, tx, block.OwnerID); err != nil {
			return err
		}
		count, err := s.entries.SoftDeleteByBlock(ctx, tx, block.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to delete block entries")
		}
		if err := s.blocks.SoftDelete(ctx, tx, block.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return appErrors.Internal(err, "failed to delete availability block")
		}
		deleted, removed = true, count
		return nil
	})
	if err != nil {
		return false, txError(err, "failed to delete availability block")
	}
	if deleted {
		s.cache.InvalidateOwner(ctx, ownerID)
		s.logger.Info("availability block deleted",
			zap.String("block_id", blockID),
			zap.String("owner_id", ownerID),
			zap.Int64("entries_removed", removed))
	}
	return deleted, nil
}

// UpdateBlock edits title, notes and the top-level interval. The block's entries stay as they
// were materialised.
func (s *AvailabilityBlockService) UpdateBlock(ctx context.Context, blockID, ownerID string, req dto.UpdateAvailabilityBlockRequest) (*models.AvailabilityBlock, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability block payload")
	}
	if !isEntityID(blockID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "availability block not found")
	}

	var updated *models.AvailabilityBlock
	err := s.runner.RunAtomic(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		block, err := s.blocks.FindOwned(ctx, tx, blockID, ownerID)
		if err != nil {
			return notFoundOr(err, "availability block not found", "failed to load availability block")
		}
		if req.Title != nil {
			block.Title = *req.Title
		}
		if req.Notes != nil {
			block.Notes = *req.Notes
		}
		if req.StartAt != nil {
			block.StartAt = req.StartAt.UTC()
		}
		if req.EndAt != nil {
			block.EndAt = req.EndAt.UTC()
		}
		if !block.EndAt.After(block.StartAt) {
			return appErrors.Clone(appErrors.ErrValidation, "endAt must be after startAt")
		}
		if err := s.blocks.UpdateDetails(ctx, tx, block); err != nil {
			return notFoundOr(err, "availability block not found", "failed to update availability block")
		}
		updated = block
		return nil
	})
	if err != nil {
		return nil, txError(err, "failed to update availability block")
	}
	return updated, nil
}

// ListBlocks returns distinct blocks of ownerID with a live entry intersecting [from, to).
func (s *AvailabilityBlockService) ListBlocks(ctx context.Context, ownerID string, from, to time.Time) ([]models.AvailabilityBlock, error) {
	if ownerID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "owner id is required")
	}
	if !to.After(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end must be after range start")
	}
	blocks, err := s.blocks.ListWithEntriesIn(ctx, nil, ownerID, models.NewInterval(from, to))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list availability blocks")
	}
	if blocks == nil {
		blocks = []models.AvailabilityBlock{}
	}
	return blocks, nil
}

// checkHorizon bounds the number of occurrences expanded and inserted under the owner lock.
func (s *AvailabilityBlockService) checkHorizon(startAt, horizon time.Time) error {
	y, m, d := startAt.In(s.expander.Location()).Date()
	limit := time.Date(y, m, d, 0, 0, 0, 0, s.expander.Location()).AddDate(0, 0, s.maxHorizonDays)
	if horizon.After(limit) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("horizonDate may be at most %d days after startAt", s.maxHorizonDays))
	}
	return nil
}

func (s *AvailabilityBlockService) parseRule(req dto.RecurrenceRuleRequest) (models.RecurrenceRule, error) {
	start, err := models.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return models.RecurrenceRule{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence start time")
	}
	end, err := models.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return models.RecurrenceRule{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence end time")
	}
	horizon, err := time.ParseInLocation(horizonDateLayout, req.HorizonDate, s.expander.Location())
	if err != nil {
		return models.RecurrenceRule{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "horizonDate must be YYYY-MM-DD")
	}
	days := make([]time.Weekday, 0, len(req.DaysOfWeek))
	for _, day := range req.DaysOfWeek {
		days = append(days, isoWeekday(day))
	}
	rule := models.RecurrenceRule{DaysOfWeek: days, StartTime: start, EndTime: end, Horizon: horizon}
	if !rule.HasValidTimes() {
		return models.RecurrenceRule{}, appErrors.Clone(appErrors.ErrValidation, "recurrence end time must be after start time")
	}
	return rule, nil
}
