package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
)

// Notifier hands notifications to the delivery collaborator. Callers invoke it only after
// their unit of work has committed.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// NotificationSender delivers one notification (chat, push, email...).
type NotificationSender interface {
	Send(ctx context.Context, notification models.Notification) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// QueueNotifier pushes notifications onto the background job queue.
type QueueNotifier struct {
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewQueueNotifier constructs a queue-backed notifier.
func NewQueueNotifier(queue jobEnqueuer, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueNotifier{queue: queue, logger: logger}
}

// Notify enqueues the notification. Recipients-less notifications are dropped.
func (n *QueueNotifier) Notify(ctx context.Context, notification models.Notification) error {
	if len(notification.RecipientIDs) == 0 {
		return nil
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	job := jobs.Job{ID: uuid.NewString(), Type: string(notification.Kind), Payload: notification}
	if err := n.queue.Enqueue(job); err != nil {
		n.logger.Warn("notification not queued",
			zap.String("kind", string(notification.Kind)),
			zap.String("lesson_id", notification.LessonID),
			zap.Error(err))
		return err
	}
	return nil
}

// NotificationJobHandler adapts a sender to the job queue.
func NotificationJobHandler(sender NotificationSender) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		notification, ok := job.Payload.(models.Notification)
		if !ok {
			return fmt.Errorf("unexpected notification payload %T", job.Payload)
		}
		return sender.Send(ctx, notification)
	}
}

// NotificationOutcomeRecorder reports finished notification jobs to metrics.
func NotificationOutcomeRecorder(metrics *MetricsService) func(job jobs.Job, err error) {
	return func(job jobs.Job, err error) {
		metrics.RecordNotification(job.Type, err == nil)
	}
}

// LogNotificationSender writes notifications to the structured log. It stands in for the chat
// delivery collaborator.
type LogNotificationSender struct {
	logger *zap.Logger
}

// NewLogNotificationSender constructs the sender.
func NewLogNotificationSender(logger *zap.Logger) *LogNotificationSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotificationSender{logger: logger}
}

// Send logs the notification.
func (s *LogNotificationSender) Send(_ context.Context, notification models.Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(notification.Kind)),
		zap.Strings("recipients", notification.RecipientIDs),
		zap.String("lesson_id", notification.LessonID),
	}
	if notification.RequestID != "" {
		fields = append(fields, zap.String("request_id", notification.RequestID))
	}
	if notification.Interval != nil {
		fields = append(fields, zap.Time("start_at", notification.Interval.Start), zap.Time("end_at", notification.Interval.End))
	}
	s.logger.Info("notification dispatched", fields...)
	return nil
}
