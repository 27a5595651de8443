// Package review implements the human checkpoint between rendering and
// publishing. Every decision is a conditional transition through the job
// store, so a job can only leave AWAITING_REVIEW through this package.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/services"
)

// Recorder receives review outcomes, typically for metrics.
type Recorder interface {
	ObserveReviewDecision(decision string)
}

// Notifier is told about decisions that operators may want pushed to them.
type Notifier interface {
	JobReprocessed(ctx context.Context, job *queue.Job)
}

// Gate exposes approve, reject, reprocess and the pending listing.
type Gate struct {
	store    *queue.Store
	logger   *slog.Logger
	recorder Recorder
	notifier Notifier
}

// Option customizes a Gate.
type Option func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithRecorder attaches a decision recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// WithNotifier attaches a notifier.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.notifier = n }
}

// NewGate binds a gate to store.
func NewGate(store *queue.Store, opts ...Option) *Gate {
	g := &Gate{store: store}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "review")
	return g
}

// Approve moves a job from AWAITING_REVIEW to APPROVED.
func (g *Gate) Approve(ctx context.Context, id, reviewer, note string) (*queue.Job, error) {
	return g.decide(ctx, id, queue.EventApprove, reviewer, note)
}

// Reject moves a job from AWAITING_REVIEW to REJECTED.
func (g *Gate) Reject(ctx context.Context, id, reviewer, note string) (*queue.Job, error) {
	return g.decide(ctx, id, queue.EventReject, reviewer, note)
}

func (g *Gate) decide(ctx context.Context, id string, event queue.Event, reviewer, note string) (*queue.Job, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, services.Wrap(services.ErrValidation, "review", string(event), "reviewer name is required", nil)
	}
	id = strings.TrimSpace(id)
	note = strings.TrimSpace(note)

	job, err := g.store.Advance(ctx, queue.Transition{
		JobID:  id,
		Event:  event,
		Review: &queue.Review{Reviewer: reviewer, Note: note},
		Note:   describe(reviewer, note),
	})
	if err != nil {
		return nil, fmt.Errorf("%s job %s: %w", event, id, err)
	}

	g.logger.Info("review decision recorded",
		logging.JobID(job.ID),
		logging.String("decision", string(job.Review.Decision)),
		logging.String("reviewer", reviewer),
		logging.String("title", job.DisplayTitle()),
		logging.EventType("review_"+string(job.Review.Decision)),
	)
	if g.recorder != nil {
		g.recorder.ObserveReviewDecision(string(job.Review.Decision))
	}
	return job, nil
}

// Reprocess sends a job in AWAITING_REVIEW, APPROVED, REJECTED or FAILED back
// to NEW with every artifact cleared.
func (g *Gate) Reprocess(ctx context.Context, id string) (*queue.Job, error) {
	id = strings.TrimSpace(id)
	job, err := g.store.Advance(ctx, queue.Transition{
		JobID: id,
		Event: queue.EventReprocess,
		Note:  "reprocess requested",
	})
	if err != nil {
		return nil, fmt.Errorf("reprocess job %s: %w", id, err)
	}
	g.logger.Info("job queued for reprocessing",
		logging.JobID(job.ID),
		logging.EventType("review_reprocess"),
	)
	if g.recorder != nil {
		g.recorder.ObserveReviewDecision("reprocess")
	}
	if g.notifier != nil {
		g.notifier.JobReprocessed(ctx, job)
	}
	return job, nil
}

// Pending lists jobs waiting for a decision, oldest first.
func (g *Gate) Pending(ctx context.Context) ([]*queue.Job, error) {
	jobs, err := g.store.ListByState(ctx, queue.StateAwaitingReview)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	return jobs, nil
}

func describe(reviewer, note string) string {
	if note == "" {
		return "by " + reviewer
	}
	return fmt.Sprintf("by %s: %s", reviewer, note)
}
