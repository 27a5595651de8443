package workflow

import (
	"context"

	"shortsfactory/internal/logging"
	"shortsfactory/internal/notifications"
	"shortsfactory/internal/queue"
)

// handleTransition runs after a worker moved a job. It keeps the throttle in
// step with actual publishes and pushes operator notifications.
func (m *Manager) handleTransition(ctx context.Context, job *queue.Job) {
	m.mu.Lock()
	m.lastJob = job
	m.mu.Unlock()

	switch job.State {
	case queue.StateAwaitingReview:
		m.notify(ctx, notifications.EventReviewReady, notifications.Payload{
			"jobID": job.ID,
			"title": job.DisplayTitle(),
		})
	case queue.StatePublished:
		m.throttle.Record(m.clock())
		m.notify(ctx, notifications.EventPublished, notifications.Payload{
			"jobID": job.ID,
			"title": job.DisplayTitle(),
			"url":   job.Publish.URL,
		})
		snap := m.throttle.Snapshot()
		if snap.MaxPerDay > 0 && snap.Count >= snap.MaxPerDay {
			m.notify(ctx, notifications.EventDailyLimit, notifications.Payload{"count": snap.Count})
		}
	case queue.StateFailed:
		m.notify(ctx, notifications.EventJobFailed, notifications.Payload{
			"jobID": job.ID,
			"title": job.DisplayTitle(),
			"error": job.ErrorMessage,
		})
	}
}

// JobReprocessed satisfies review.Notifier. A reprocessed job re-enters the
// pipeline at NEW, so it becomes the manager's most recent job.
func (m *Manager) JobReprocessed(ctx context.Context, job *queue.Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	m.lastJob = job
	m.mu.Unlock()
	logging.WithContext(ctx, m.logger).Info("job returned to the pipeline",
		logging.JobID(job.ID),
		logging.String(logging.FieldEventType, "job_reprocessed"),
	)
}

func (m *Manager) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(m.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}
