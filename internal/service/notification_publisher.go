package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/advance-api/internal/models"
	"github.com/noah-isme/advance-api/pkg/jobs"
)

// NotificationJobType tags queued transition notifications.
const NotificationJobType = "advance.notification"

type transitionDispatcher interface {
	Dispatch(ctx context.Context, event models.TransitionEvent) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// QueuedPublisher hands transitions to a background queue so notification
// latency never reaches the request path.
type QueuedPublisher struct {
	queue jobEnqueuer
}

// NewQueuedPublisher wraps queue.
func NewQueuedPublisher(queue jobEnqueuer) *QueuedPublisher {
	return &QueuedPublisher{queue: queue}
}

// Publish enqueues event.
func (p *QueuedPublisher) Publish(ctx context.Context, event models.TransitionEvent) error {
	return p.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    NotificationJobType,
		Payload: event,
	})
}

// NotificationJobHandler adapts a dispatcher to the jobs.Queue handler signature.
func NotificationJobHandler(dispatcher transitionDispatcher) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(models.TransitionEvent)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		return dispatcher.Dispatch(ctx, event)
	}
}

// SyncPublisher dispatches inline; the transition waits for delivery.
type SyncPublisher struct {
	dispatcher transitionDispatcher
}

// NewSyncPublisher wraps dispatcher.
func NewSyncPublisher(dispatcher transitionDispatcher) *SyncPublisher {
	return &SyncPublisher{dispatcher: dispatcher}
}

// Publish dispatches event immediately.
func (p *SyncPublisher) Publish(ctx context.Context, event models.TransitionEvent) error {
	return p.dispatcher.Dispatch(ctx, event)
}
