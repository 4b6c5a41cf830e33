package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/database"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/export"
)

const maxCalendarRange = 366 * 24 * time.Hour

type slotAllocator interface {
	Allocate(ctx context.Context, exec sqlx.ExtContext, req AllocationRequest) ([]models.Interval, error)
}

// ScheduleServiceConfig tunes calendar reads.
type ScheduleServiceConfig struct {
	Location *time.Location
	CacheTTL time.Duration
}

// ScheduleService materialises lessons and serves tutor calendars.
type ScheduleService struct {
	runner    atomicRunner
	locker    ownerLocker
	allocator slotAllocator
	conflicts conflictFinder
	entries   scheduleEntryStore
	lessons   lessonStore
	cache     *CacheService
	metrics   *MetricsService
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	cacheTTL  time.Duration
	group     singleflight.Group
}

// NewScheduleService wires schedule dependencies.
func NewScheduleService(
	runner atomicRunner,
	locker ownerLocker,
	allocator slotAllocator,
	conflicts conflictFinder,
	entries scheduleEntryStore,
	lessons lessonStore,
	cache *CacheService,
	metrics *MetricsService,
	notifier Notifier,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleServiceConfig,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ScheduleService{
		runner:    runner,
		locker:    locker,
		allocator: allocator,
		conflicts: conflicts,
		entries:   entries,
		lessons:   lessons,
		cache:     cache,
		metrics:   metrics,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		loc:       cfg.Location,
		cacheTTL:  cfg.CacheTTL,
	}
}

// GenerateSchedule allocates sessions for a class or request and stores one lesson and one entry
// per session, all in one atomic unit. On failure nothing is written.
func (s *ScheduleService) GenerateSchedule(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error) {
	allocation, err := s.prepareGeneration(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := database.Atomic(ctx, s.runner, func(ctx context.Context, tx sqlx.ExtContext) (*dto.GenerateScheduleResponse, error) {
		return s.generate(ctx, tx, req, allocation)
	})
	if err != nil {
		err = txError(err, "failed to generate schedule")
		s.recordGenerationFailure(err, started)
		return nil, err
	}

	s.metrics.RecordAllocation("success", time.Since(started))
	s.cache.InvalidateOwner(ctx, req.OwnerID)
	s.logger.Info("schedule generated",
		zap.String("source_id", req.SourceID),
		zap.String("owner_id", req.OwnerID),
		zap.Int("count", len(resp.Lessons)))
	return resp, nil
}

// GenerateWithin runs the generation unit inside a transaction owned by the caller, for flows
// such as enrollment that must roll back their own writes when scheduling fails. The caller
// invalidates the calendar with InvalidateCalendar once it has committed.
func (s *ScheduleService) GenerateWithin(ctx context.Context, exec sqlx.ExtContext, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error) {
	if exec == nil {
		return nil, appErrors.Internal(fmt.Errorf("nil transaction"), "schedule generation requires a transaction")
	}
	allocation, err := s.prepareGeneration(req)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, exec, req, allocation)
}

// InvalidateCalendar drops cached calendar reads of ownerID.
func (s *ScheduleService) InvalidateCalendar(ctx context.Context, ownerID string) {
	s.cache.InvalidateOwner(ctx, ownerID)
}

func (s *ScheduleService) generate(ctx context.Context, tx sqlx.ExtContext, req dto.GenerateScheduleRequest, allocation AllocationRequest) (*dto.GenerateScheduleResponse, error) {
	if err := lockOwner(ctx, s.locker, tx, req.OwnerID); err != nil {
		return nil, err
	}
	intervals, err := s.allocator.Allocate(ctx, tx, allocation)
	if err != nil {
		return nil, err
	}

	lessons := make([]models.Lesson, len(intervals))
	entries := make([]models.ScheduleEntry, len(intervals))
	for i, interval := range intervals {
		lessonID := uuid.NewString()
		lessons[i] = models.Lesson{ID: lessonID, SourceID: req.SourceID, OwnerID: req.OwnerID}
		entries[i] = models.ScheduleEntry{
			ID:        uuid.NewString(),
			OwnerID:   req.OwnerID,
			StartAt:   interval.Start,
			EndAt:     interval.End,
			Kind:      models.EntryKindLesson,
			LessonRef: &lessons[i].ID,
		}
	}

	if err := s.lessons.InsertBatch(ctx, tx, lessons); err != nil {
		return nil, appErrors.Internal(err, "failed to store lessons")
	}
	if err := insertEntries(ctx, s.entries, tx, entries); err != nil {
		return nil, err
	}
	if err := s.lessons.AddParticipants(ctx, tx, req.SourceID, uniqueStrings(req.ParticipantIDs)); err != nil {
		return nil, appErrors.Internal(err, "failed to store participants")
	}

	resp := &dto.GenerateScheduleResponse{SourceID: req.SourceID, OwnerID: req.OwnerID, Lessons: make([]dto.ScheduledLesson, len(entries))}
	for i, entry := range entries {
		resp.Lessons[i] = dto.ScheduledLesson{LessonID: lessons[i].ID, EntryID: entry.ID, StartAt: entry.StartAt, EndAt: entry.EndAt}
	}
	return resp, nil
}

func (s *ScheduleService) prepareGeneration(req dto.GenerateScheduleRequest) (AllocationRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return AllocationRequest{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}
	slots := make([]models.WeeklySlot, 0, len(req.Slots))
	for _, slot := range req.Slots {
		parsed, err := parseWeeklySlot(slot)
		if err != nil {
			return AllocationRequest{}, err
		}
		slots = append(slots, parsed)
	}
	return AllocationRequest{
		OwnerID:     req.OwnerID,
		SearchStart: req.StartDate,
		Slots:       slots,
		TargetCount: req.TargetCount,
		DayHorizon:  req.DayHorizon,
	}, nil
}

func (s *ScheduleService) recordGenerationFailure(err error, started time.Time) {
	outcome := "error"
	switch {
	case appErrors.HasCode(err, appErrors.ErrInsufficientCapacity):
		outcome = "insufficient_capacity"
	case appErrors.HasCode(err, appErrors.ErrValidation):
		outcome = "invalid"
	case appErrors.HasCode(err, appErrors.ErrConflict):
		outcome = "conflict"
		s.metrics.RecordConflict("generate")
	}
	s.metrics.RecordAllocation(outcome, time.Since(started))
}

// CheckTutorConflict returns the entry that interval would collide with, or nil.
func (s *ScheduleService) CheckTutorConflict(ctx context.Context, ownerID string, interval models.Interval, exclude mo.Option[string]) (*models.ScheduleEntry, error) {
	return s.conflicts.FindConflict(ctx, nil, ownerID, interval, exclude)
}

// ListEntries returns ownerID's live entries intersecting [from, to). Reads are cached per range
// and concurrent misses for the same range share one query.
func (s *ScheduleService) ListEntries(ctx context.Context, ownerID string, from, to time.Time) ([]models.ScheduleEntry, error) {
	if ownerID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "owner id is required")
	}
	if !to.After(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end must be after range start")
	}
	if to.Sub(from) > maxCalendarRange {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range must not exceed 366 days")
	}

	key := CalendarKey(ownerID, from, to)
	var cached []models.ScheduleEntry
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return nonNilEntries(cached), nil
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Waiters on key share this read, so it must outlive the leader's cancellation.
		shared := context.WithoutCancel(ctx)
		entries, err := s.entries.ListOverlapping(shared, nil, ownerID, models.NewInterval(from, to))
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load calendar")
		}
		entries = nonNilEntries(entries)
		_ = s.cache.Set(shared, key, entries, s.cacheTTL)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]models.ScheduleEntry), nil
}

// CancelLesson removes a lesson and its entry. Only the owning tutor or an admin may cancel.
func (s *ScheduleService) CancelLesson(ctx context.Context, actor models.Actor, lessonID string) error {
	var (
		lesson       *models.Lesson
		participants []string
	)
	if !isEntityID(lessonID) {
		return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	err := s.runner.RunAtomic(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		found, err := s.lessons.FindByID(ctx, tx, lessonID)
		if err != nil {
			return notFoundOr(err, "lesson not found", "failed to load lesson")
		}
		if actor.Role != models.RoleAdmin && actor.ProfileID != found.OwnerID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the lesson's tutor can cancel it")
		}
		if err := lockOwner(ctx, s.locker, tx, found.OwnerID); err != nil {
			return err
		}
		if _, err := s.entries.SoftDeleteByLesson(ctx, tx, found.ID); err != nil {
			return appErrors.Internal(err, "failed to delete lesson entry")
		}
		if err := s.lessons.SoftDelete(ctx, tx, found.ID); err != nil {
			return notFoundOr(err, "lesson not found", "failed to delete lesson")
		}
		ids, err := s.lessons.ListParticipants(ctx, tx, found.SourceID)
		if err != nil {
			return appErrors.Internal(err, "failed to load participants")
		}
		lesson, participants = found, ids
		return nil
	})
	if err != nil {
		return txError(err, "failed to cancel lesson")
	}

	s.cache.InvalidateOwner(ctx, lesson.OwnerID)
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, models.Notification{
			Kind:         models.NotificationLessonCancelled,
			RecipientIDs: participants,
			LessonID:     lesson.ID,
		})
	}
	s.logger.Info("lesson cancelled", zap.String("lesson_id", lesson.ID), zap.String("owner_id", lesson.OwnerID))
	return nil
}

// ExportEntries renders ownerID's calendar over [from, to) as CSV or PDF.
func (s *ScheduleService) ExportEntries(ctx context.Context, ownerID string, from, to time.Time, format dto.ExportFormat) (*dto.ExportResult, error) {
	entries, err := s.ListEntries(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}

	table := export.Table{Columns: []export.Column{
		{Name: "Date", Weight: 2},
		{Name: "Start"},
		{Name: "End"},
		{Name: "Kind"},
		{Name: "Reference", Weight: 3},
	}}
	for _, entry := range entries {
		ref := ""
		switch {
		case entry.LessonRef != nil:
			ref = *entry.LessonRef
		case entry.BlockRef != nil:
			ref = *entry.BlockRef
		}
		start := entry.StartAt.In(s.loc)
		table.AddRow(start.Format("2006-01-02 Mon"), start.Format("15:04"), entry.EndAt.In(s.loc).Format("15:04"), entry.Kind.String(), ref)
	}

	filename := fmt.Sprintf("calendar-%s-%s-%s.%s", ownerID, from.In(s.loc).Format("20060102"), to.In(s.loc).Format("20060102"), format)
	switch format {
	case dto.ExportFormatCSV:
		content, err := export.CSV(table)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render csv")
		}
		return &dto.ExportResult{Filename: filename, ContentType: export.ContentTypeCSV, Content: content}, nil
	case dto.ExportFormatPDF:
		title := fmt.Sprintf("Calendar %s (%s - %s)", ownerID, from.In(s.loc).Format("2006-01-02"), to.In(s.loc).Format("2006-01-02"))
		content, err := export.PDF(table, title)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render pdf")
		}
		return &dto.ExportResult{Filename: filename, ContentType: export.ContentTypePDF, Content: content}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func parseWeeklySlot(slot dto.WeeklySlotRequest) (models.WeeklySlot, error) {
	start, err := models.ParseTimeOfDay(slot.StartTime)
	if err != nil {
		return models.WeeklySlot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot start time")
	}
	end, err := models.ParseTimeOfDay(slot.EndTime)
	if err != nil {
		return models.WeeklySlot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot end time")
	}
	if end <= start {
		return models.WeeklySlot{}, appErrors.Clone(appErrors.ErrValidation, "slot end time must be after start time")
	}
	return models.WeeklySlot{DayOfWeek: isoWeekday(slot.DayOfWeek), StartTime: start, EndTime: end}, nil
}

// isoWeekday converts 1 (Monday) .. 7 (Sunday) to time.Weekday.
func isoWeekday(day int) time.Weekday {
	return time.Weekday(day % 7)
}

func nonNilEntries(entries []models.ScheduleEntry) []models.ScheduleEntry {
	if entries == nil {
		return []models.ScheduleEntry{}
	}
	return entries
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
