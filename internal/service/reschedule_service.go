package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/database"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

type rescheduleStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RescheduleRequest, error)
	HasPending(ctx context.Context, exec sqlx.ExtContext, lessonID string) (bool, error)
	Decide(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error
	ListByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) ([]models.RescheduleRequest, error)
}

// RescheduleService coordinates two-party proposals to move a single lesson.
type RescheduleService struct {
	runner    atomicRunner
	locker    ownerLocker
	conflicts conflictFinder
	requests  rescheduleStore
	entries   scheduleEntryStore
	lessons   lessonStore
	cache     *CacheService
	metrics   *MetricsService
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRescheduleService wires reschedule dependencies.
func NewRescheduleService(
	runner atomicRunner,
	locker ownerLocker,
	conflicts conflictFinder,
	requests rescheduleStore,
	entries scheduleEntryStore,
	lessons lessonStore,
	cache *CacheService,
	metrics *MetricsService,
	notifier Notifier,
	validate *validator.Validate,
	logger *zap.Logger,
) *RescheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RescheduleService{
		runner:    runner,
		locker:    locker,
		conflicts: conflicts,
		requests:  requests,
		entries:   entries,
		lessons:   lessons,
		cache:     cache,
		metrics:   metrics,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateRequest records a pending proposal from one side of the lesson and notifies the other.
func (s *RescheduleService) CreateRequest(ctx context.Context, actor models.Actor, lessonID string, req dto.CreateRescheduleRequest) (*models.RescheduleRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	proposed := models.NewInterval(req.NewStart, req.NewEnd)
	if !proposed.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "newEnd must be after newStart")
	}
	if !proposed.Start.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "newStart must be in the future")
	}
	if !isEntityID(lessonID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}

	var (
		created    *models.RescheduleRequest
		recipients []string
	)
	err := s.runner.RunAtomic(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		lesson, err := s.lessons.FindByID(ctx, tx, lessonID)
		if err != nil {
			return notFoundOr(err, "lesson not found", "failed to load lesson")
		}
		party, err := s.resolveParty(ctx, tx, actor, lesson)
		if err != nil {
			return err
		}
		if err := lockOwner(ctx, s.locker, tx, lesson.OwnerID); err != nil {
			return err
		}
		entry, err := s.entries.FindActiveByLesson(ctx, tx, lesson.ID)
		if err != nil {
			return notFoundOr(err, "lesson has no scheduled entry", "failed to load lesson entry")
		}
		pending, err := s.requests.HasPending(ctx, tx, lesson.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to check pending requests")
		}
		if pending {
			return appErrors.Clone(appErrors.ErrConflict, "lesson already has a pending reschedule request")
		}
		clash, err := s.conflicts.FindConflict(ctx, tx, lesson.OwnerID, proposed, mo.Some(entry.ID))
		if err != nil {
			return err
		}
		if clash != nil {
			return appErrors.Clone(appErrors.ErrConflict, "proposed interval overlaps schedule entry "+clash.ID)
		}

		request := &models.RescheduleRequest{
			ID:             uuid.NewString(),
			LessonID:       lesson.ID,
			EntryID:        entry.ID,
			OldStart:       entry.StartAt,
			OldEnd:         entry.EndAt,
			NewStart:       proposed.Start,
			NewEnd:         proposed.End,
			RequesterID:    actor.ProfileID,
			RequesterParty: party,
			Status:         models.RescheduleStatusPending,
			Reason:         req.Reason,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.requests.Create(ctx, tx, request); err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "lesson already has a pending reschedule request")
			}
			return appErrors.Internal(err, "failed to store reschedule request")
		}
		to, err := s.counterparty(ctx, tx, lesson, party)
		if err != nil {
			return err
		}
		created, recipients = request, to
		return nil
	})
	if err != nil {
		err = txError(err, "failed to create reschedule request")
		if appErrors.HasCode(err, appErrors.ErrConflict) {
			s.metrics.RecordConflict("reschedule")
		}
		return nil, err
	}

	interval := created.NewInterval()
	s.notify(ctx, models.Notification{
		Kind:         models.NotificationRescheduleRequested,
		RecipientIDs: recipients,
		LessonID:     created.LessonID,
		RequestID:    created.ID,
		Interval:     &interval,
	})
	s.logger.Info("reschedule requested",
		zap.String("request_id", created.ID),
		zap.String("lesson_id", created.LessonID),
		zap.String("party", created.RequesterParty.String()))
	return created, nil
}

// Accept moves the lesson's entry to the proposed interval. The proposal is re-checked against
// the calendar as it is now; a new collision leaves the request pending.
func (s *RescheduleService) Accept(ctx context.Context, actor models.Actor, requestID string) (*models.RescheduleRequest, error) {
	decided, ownerID, err := s.respond(ctx, actor, requestID, models.RescheduleStatusAccepted)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateOwner(ctx, ownerID)
	interval := decided.NewInterval()
	s.notify(ctx, models.Notification{
		Kind:         models.NotificationRescheduleAccepted,
		RecipientIDs: []string{decided.RequesterID},
		LessonID:     decided.LessonID,
		RequestID:    decided.ID,
		Interval:     &interval,
	})
	s.logger.Info("reschedule accepted", zap.String("request_id", decided.ID), zap.String("lesson_id", decided.LessonID))
	return decided, nil
}

// Reject closes the request without touching the calendar.
func (s *RescheduleService) Reject(ctx context.Context, actor models.Actor, requestID string) (*models.RescheduleRequest, error) {
	decided, _, err := s.respond(ctx, actor, requestID, models.RescheduleStatusRejected)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, models.Notification{
		Kind:         models.NotificationRescheduleRejected,
		RecipientIDs: []string{decided.RequesterID},
		LessonID:     decided.LessonID,
		RequestID:    decided.ID,
	})
	s.logger.Info("reschedule rejected", zap.String("request_id", decided.ID), zap.String("lesson_id", decided.LessonID))
	return decided, nil
}

// ListForLesson returns a lesson's requests to either of its parties or an admin.
func (s *RescheduleService) ListForLesson(ctx context.Context, actor models.Actor, lessonID string) ([]models.RescheduleRequest, error) {
	if !isEntityID(lessonID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	lesson, err := s.lessons.FindByID(ctx, nil, lessonID)
	if err != nil {
		return nil, notFoundOr(err, "lesson not found", "failed to load lesson")
	}
	if actor.Role != models.RoleAdmin {
		if _, err := s.resolveParty(ctx, nil, actor, lesson); err != nil {
			return nil, err
		}
	}
	requests, err := s.requests.ListByLesson(ctx, nil, lesson.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list reschedule requests")
	}
	if requests == nil {
		requests = []models.RescheduleRequest{}
	}
	return requests, nil
}

func (s *RescheduleService) respond(ctx context.Context, actor models.Actor, requestID string, status models.RescheduleStatus) (*models.RescheduleRequest, string, error) {
	if !isEntityID(requestID) {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "reschedule request not found")
	}

	var (
		decided *models.RescheduleRequest
		ownerID string
	)
	err := s.runner.RunAtomic(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		request, err := s.requests.FindByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return notFoundOr(err, "reschedule request not found", "failed to load reschedule request")
		}
		if request.Status != models.RescheduleStatusPending {
			return appErrors.Clone(appErrors.ErrValidation, "reschedule request is not pending")
		}
		lesson, err := s.lessons.FindByID(ctx, tx, request.LessonID)
		if err != nil {
			return notFoundOr(err, "lesson not found", "failed to load lesson")
		}
		party, err := s.resolveParty(ctx, tx, actor, lesson)
		if err != nil {
			return err
		}
		if party == request.RequesterParty {
			return appErrors.Clone(appErrors.ErrForbidden, "only the other party can respond to this request")
		}

		if status == models.RescheduleStatusAccepted {
			if err := s.applyMove(ctx, tx, lesson, request); err != nil {
				return err
			}
		}

		responder := actor.ProfileID
		respondedAt := s.now().UTC()
		request.Status = status
		request.ResponderID = &responder
		request.RespondedAt = &respondedAt
		if err := s.requests.Decide(ctx, tx, request); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, "reschedule request is not pending")
			}
			return appErrors.Internal(err, "failed to record reschedule decision")
		}
		decided, ownerID = request, lesson.OwnerID
		return nil
	})
	if err != nil {
		err = txError(err, "failed to respond to reschedule request")
		if appErrors.HasCode(err, appErrors.ErrConflict) {
			s.metrics.RecordConflict("reschedule")
		}
		return nil, "", err
	}
	return decided, ownerID, nil
}

func (s *RescheduleService) applyMove(ctx context.Context, tx sqlx.ExtContext, lesson *models.Lesson, request *models.RescheduleRequest) error {
	if err := lockOwner(ctx, s.locker, tx, lesson.OwnerID); err != nil {
		return err
	}
	proposed := request.NewInterval()
	clash, err := s.conflicts.FindConflict(ctx, tx, lesson.OwnerID, proposed, mo.Some(request.EntryID))
	if err != nil {
		return err
	}
	if clash != nil {
		return appErrors.Clone(appErrors.ErrConflict, "proposed interval now overlaps schedule entry "+clash.ID)
	}
	if err := s.entries.UpdateInterval(ctx, tx, request.EntryID, proposed); err != nil {
		if database.IsOverlapViolation(err) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "booking overlaps an existing schedule entry")
		}
		return notFoundOr(err, "lesson entry no longer exists", "failed to move lesson entry")
	}
	return nil
}

// resolveParty places actor on the tutor side when it owns the lesson and on the learner side
// when it participates in the lesson's source.
func (s *RescheduleService) resolveParty(ctx context.Context, exec sqlx.ExtContext, actor models.Actor, lesson *models.Lesson) (models.PartySide, error) {
	if actor.ProfileID == "" {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "caller is not a party to this lesson")
	}
	if actor.ProfileID == lesson.OwnerID {
		return models.PartyTutor, nil
	}
	ok, err := s.lessons.IsParticipant(ctx, exec, lesson.SourceID, actor.ProfileID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to resolve lesson party")
	}
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "caller is not a party to this lesson")
	}
	return models.PartyLearner, nil
}

func (s *RescheduleService) counterparty(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson, requester models.PartySide) ([]string, error) {
	if requester == models.PartyLearner {
		return []string{lesson.OwnerID}, nil
	}
	ids, err := s.lessons.ListParticipants(ctx, exec, lesson.SourceID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load participants")
	}
	return ids, nil
}

func (s *RescheduleService) notify(ctx context.Context, notification models.Notification) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Notify(ctx, notification)
}
