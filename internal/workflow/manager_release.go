package workflow

import (
	"context"
	"errors"
	"fmt"

	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/services"
	"shortsfactory/internal/throttle"
)

// releaseOne moves the oldest APPROVED job into UPLOADING when nothing is
// uploading and the throttle allows a publish now. A throttle rejection
// consumes no attempt; the job simply stays APPROVED.
func (m *Manager) releaseOne(ctx context.Context) (Outcome, error) {
	uploading, err := m.store.ListByState(ctx, queue.StateUploading)
	if err != nil {
		return "", fmt.Errorf("list uploading: %w", err)
	}
	approved, err := m.store.ListByState(ctx, queue.StateApproved)
	if err != nil {
		return "", fmt.Errorf("list approved: %w", err)
	}
	if len(approved) == 0 {
		return OutcomeIdle, nil
	}
	if len(uploading) > 0 {
		m.logger.Debug("release deferred; upload in progress",
			logging.JobID(uploading[0].ID),
			logging.String(logging.FieldEventType, "release_busy"),
		)
		return OutcomeDeferred, nil
	}

	job := approved[0]
	if err := m.throttle.Allow(m.clock()); err != nil {
		if err := m.noteDeferral(ctx, job, err); err != nil {
			return "", err
		}
		return OutcomeDeferred, nil
	}

	ctx = services.WithJobID(ctx, job.ID)
	next, err := m.store.Advance(ctx, queue.Transition{
		JobID: job.ID,
		From:  queue.StateApproved,
		Event: queue.EventRelease,
		Note:  "released for upload",
	})
	if errors.Is(err, queue.ErrConflict) {
		return OutcomeConflict, nil
	}
	if err != nil {
		return "", fmt.Errorf("release %s: %w", job.ID, err)
	}

	m.mu.Lock()
	m.deferReason = ""
	m.lastJob = next
	m.mu.Unlock()
	m.observer.ObserveWorkerOutcome("release", string(OutcomeAdvanced))
	logging.WithContext(ctx, m.logger).Info("job released for upload",
		logging.String(logging.FieldEventType, "job_released"),
		logging.String("title", next.DisplayTitle()),
	)
	return OutcomeAdvanced, nil
}

// noteDeferral records a throttle rejection. The activity log only gets an
// entry when the reason changes so a long wait does not flood it.
func (m *Manager) noteDeferral(ctx context.Context, job *queue.Job, rejection error) error {
	reason := throttle.ReasonOf(rejection)
	m.observer.ObserveThrottleRejection(string(reason))
	m.logger.Debug("release deferred by throttle",
		logging.JobID(job.ID),
		logging.String("reason", string(reason)),
		logging.Error(rejection),
	)

	m.mu.Lock()
	changed := m.deferReason != reason
	m.deferReason = reason
	m.mu.Unlock()
	if !changed {
		return nil
	}
	if err := m.store.AppendLog(ctx, queue.Entry{
		JobID:     job.ID,
		Action:    queue.ActionPublishDeferred,
		FromState: queue.StateApproved,
		Details:   rejection.Error(),
		Success:   true,
	}); err != nil {
		return fmt.Errorf("log publish deferral: %w", err)
	}
	return nil
}
