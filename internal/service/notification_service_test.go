package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
)

type stubEnqueuer struct {
	jobs []jobs.Job
	err  error
}

func (s *stubEnqueuer) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type captureSender struct {
	sent chan models.Notification
}

func (s *captureSender) Send(ctx context.Context, notification models.Notification) error {
	s.sent <- notification
	return nil
}

func TestQueueNotifierEnqueuesNotification(t *testing.T) {
	queue := &stubEnqueuer{}
	notifier := NewQueueNotifier(queue, nil)

	err := notifier.Notify(context.Background(), models.Notification{
		Kind:         models.NotificationRescheduleRequested,
		RecipientIDs: []string{tutorID},
		LessonID:     "lesson-1",
	})
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, string(models.NotificationRescheduleRequested), queue.jobs[0].Type)
	payload, ok := queue.jobs[0].Payload.(models.Notification)
	require.True(t, ok)
	assert.False(t, payload.CreatedAt.IsZero())
}

func TestQueueNotifierDropsRecipientlessNotification(t *testing.T) {
	queue := &stubEnqueuer{}
	require.NoError(t, NewQueueNotifier(queue, nil).Notify(context.Background(), models.Notification{Kind: models.NotificationLessonCancelled}))
	assert.Empty(t, queue.jobs)
}

func TestQueueNotifierReportsFullQueue(t *testing.T) {
	queue := &stubEnqueuer{err: jobs.ErrQueueFull}
	err := NewQueueNotifier(queue, nil).Notify(context.Background(), models.Notification{Kind: models.NotificationLessonCancelled, RecipientIDs: []string{"a"}})
	assert.ErrorIs(t, err, jobs.ErrQueueFull)
}

func TestNotificationsFlowThroughQueue(t *testing.T) {
	sender := &captureSender{sent: make(chan models.Notification, 1)}
	metrics := NewMetricsService()
	queue := jobs.NewQueue("notifications", NotificationJobHandler(sender), jobs.QueueConfig{
		OnFinish: NotificationOutcomeRecorder(metrics),
	})
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, NewQueueNotifier(queue, nil).Notify(context.Background(), models.Notification{
		Kind:         models.NotificationRescheduleAccepted,
		RecipientIDs: []string{"learner-1"},
		LessonID:     "lesson-1",
	}))

	select {
	case got := <-sender.sent:
		assert.Equal(t, models.NotificationRescheduleAccepted, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("notification was not delivered")
	}
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.notifications.WithLabelValues(string(models.NotificationRescheduleAccepted), "delivered")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNotificationJobHandlerRejectsForeignPayload(t *testing.T) {
	handler := NotificationJobHandler(NewLogNotificationSender(nil))
	err := handler(context.Background(), jobs.Job{Payload: "nope"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, jobs.ErrQueueClosed))
}
