package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"shortsfactory/internal/config"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/services"
	"shortsfactory/internal/stage"
)

// Outcome summarizes what a single worker step did.
type Outcome string

const (
	OutcomeIdle     Outcome = "idle"
	OutcomeConflict Outcome = "conflict"
	OutcomeAdvanced Outcome = "advanced"
	OutcomeRetry    Outcome = "retry"
	OutcomeFailed   Outcome = "failed"
	// OutcomeDeferred is only produced by the release lane.
	OutcomeDeferred Outcome = "deferred"
)

// Observer receives worker and throttle measurements. metrics.Recorder
// satisfies it.
type Observer interface {
	ObserveWorkerOutcome(state, outcome string)
	ObserveProvider(provider string, elapsed time.Duration, success bool)
	ObserveThrottleRejection(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveWorkerOutcome(string, string) {}
func (nopObserver) ObserveProvider(string, time.Duration, bool) {}
func (nopObserver) ObserveThrottleRejection(string) {}

// TransitionFunc is called after a worker moved a job to a new state.
type TransitionFunc func(ctx context.Context, job *queue.Job)

// Worker claims jobs in one state and runs its provider against them.
type Worker struct {
	State    queue.State
	Name     string
	Provider stage.Provider

	store        *queue.Store
	cfg          *config.Config
	logger       *slog.Logger
	observer     Observer
	owner        string
	now          func() time.Time
	onTransition TransitionFunc
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the base logger. Stage level overrides are applied on top.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

// WithWorkerObserver attaches an outcome observer.
func WithWorkerObserver(o Observer) WorkerOption {
	return func(w *Worker) {
		if o != nil {
			w.observer = o
		}
	}
}

// WithWorkerClock overrides the clock used to compute lease cutoffs.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithTransitionHook registers fn to run after every state change the worker causes.
func WithTransitionHook(fn TransitionFunc) WorkerOption {
	return func(w *Worker) { w.onTransition = fn }
}

// NewWorker binds provider to state. The claim owner is unique per worker
// instance so a restarted process never mistakes an old lease for its own.
func NewWorker(store *queue.Store, cfg *config.Config, state queue.State, provider stage.Provider, opts ...WorkerOption) (*Worker, error) {
	if store == nil || cfg == nil {
		return nil, errors.New("worker requires store and config")
	}
	if !queue.WorkerBound(state) {
		return nil, fmt.Errorf("state %s is not worker-bound", state)
	}
	if provider == nil {
		return nil, fmt.Errorf("no provider for state %s", state)
	}
	name := strings.ToLower(string(state))
	w := &Worker{
		State:    state,
		Name:     name,
		Provider: provider,
		store:    store,
		cfg:      cfg,
		observer: nopObserver{},
		owner:    fmt.Sprintf("%s-%s", name, uuid.NewString()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.ForStage(w.logger, cfg, string(state)).With(logging.String(logging.FieldWorker, w.Name))
	return w, nil
}

// Owner returns the claim owner string this worker writes.
func (w *Worker) Owner() string {
	return w.owner
}

// ProcessOne claims at most one job and drives it through the provider.
// Provider failures are recorded on the job and never returned; the error
// result is reserved for store failures.
func (w *Worker) ProcessOne(ctx context.Context) (Outcome, error) {
	staleBefore := w.now().Add(-w.cfg.ClaimTimeout())
	job, err := w.store.ClaimNext(ctx, w.State, w.owner, staleBefore)
	if errors.Is(err, queue.ErrConflict) {
		return w.finish(OutcomeConflict), nil
	}
	if err != nil {
		return "", fmt.Errorf("claim %s: %w", w.State, err)
	}
	if job == nil {
		return OutcomeIdle, nil
	}

	runCtx := services.WithJobID(ctx, job.ID)
	runCtx = services.WithStage(runCtx, string(w.State))
	runCtx = services.WithWorker(runCtx, w.Name)
	runCtx = services.WithRequestID(runCtx, uuid.NewString())
	logger := logging.WithContext(runCtx, w.logger)
	if aware, ok := w.Provider.(stage.LoggerAware); ok {
		aware.SetLogger(logger)
	}

	logger.Debug("job claimed",
		logging.String("provider", w.Provider.Name()),
		logging.Int("attempt", job.AttemptCount+1),
	)

	result, runErr := w.run(runCtx, logger, job)
	if runErr == nil {
		runErr = w.validate(result)
	}
	if runErr != nil {
		return w.fail(ctx, logger, job, runErr)
	}

	next, err := w.store.Advance(ctx, queue.Transition{
		JobID:     job.ID,
		From:      w.State,
		Event:     queue.EventComplete,
		Owner:     w.owner,
		Artifacts: result.Artifacts,
		Details:   result.Details,
		Publish:   result.Publish,
		Note:      result.Note,
	})
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrArtifactOrder):
		return w.fail(ctx, logger, job, stage.Failed(w.Provider.Name(), "store", "artifacts rejected", err))
	case errors.Is(err, queue.ErrConflict):
		logging.WarnWithContext(logger, "claim lost before completion", "claim_lost",
			logging.String(logging.FieldErrorHint, "another worker reclaimed the job after the lease expired"),
			logging.String(logging.FieldImpact, "result discarded; the job is processed again"),
		)
		return w.finish(OutcomeConflict), nil
	default:
		return "", fmt.Errorf("advance %s: %w", job.ID, err)
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("to_state", string(next.State)),
	)
	w.notifyTransition(ctx, next)
	return w.finish(OutcomeAdvanced), nil
}

func (w *Worker) run(ctx context.Context, logger *slog.Logger, job *queue.Job) (result stage.Result, err error) {
	stopLease := w.keepLease(ctx, logger, job.ID)
	defer stopLease()

	name := w.Provider.Name()
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("provider panicked",
				logging.String(logging.FieldEventType, "provider_panic"),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			err = stage.Failed(name, "run", fmt.Sprintf("panic: %v", r), nil)
		}
		w.observer.ObserveProvider(name, time.Since(started), err == nil)
	}()

	return w.Provider.Run(ctx, stage.Request{Job: job, Attempt: job.AttemptCount + 1})
}

// validate rejects results that lack what the next state requires.
func (w *Worker) validate(result stage.Result) error {
	if kind, ok := queue.ArtifactFor(w.State); ok {
		if strings.TrimSpace(result.Artifacts[kind]) == "" {
			return stage.Failed(w.Provider.Name(), "validate", fmt.Sprintf("no %s artifact returned", kind), nil)
		}
	}
	if w.State == queue.StateUploading && (result.Publish == nil || strings.TrimSpace(result.Publish.PlatformID) == "") {
		return stage.Failed(w.Provider.Name(), "validate", "no platform id returned", nil)
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, job *queue.Job, runErr error) (Outcome, error) {
	maxAttempts := w.cfg.Workflow.MaxRetries
	if stage.IsPermanent(runErr) {
		maxAttempts = job.AttemptCount + 1
	}
	message := stage.Describe(runErr)

	updated, err := w.store.RecordFailure(ctx, queue.Failure{
		JobID:       job.ID,
		State:       w.State,
		Owner:       w.owner,
		Message:     message,
		MaxAttempts: maxAttempts,
		RetryAfter:  time.Duration(w.cfg.Workflow.ErrorRetryInterval) * time.Second,
	})
	if errors.Is(err, queue.ErrConflict) {
		return w.finish(OutcomeConflict), nil
	}
	if err != nil {
		return "", fmt.Errorf("record failure for %s: %w", job.ID, err)
	}

	if updated.State == queue.StateFailed {
		logging.ErrorWithContext(logger, "job failed", "stage_exhausted",
			logging.Error(runErr),
			logging.Int("attempts", updated.AttemptCount),
			logging.String(logging.FieldErrorHint, "inspect the job history, then reprocess it"),
		)
		w.notifyTransition(ctx, updated)
		return w.finish(OutcomeFailed), nil
	}

	logging.WarnWithContext(logger, "stage attempt failed; will retry", "stage_retry",
		logging.Error(runErr),
		logging.Int("attempt", updated.AttemptCount),
		logging.Int("max_attempts", maxAttempts),
		logging.String(logging.FieldErrorHint, services.Kind(runErr)),
		logging.String(logging.FieldImpact, "job stays in "+string(w.State)),
	)
	return w.finish(OutcomeRetry), nil
}

func (w *Worker) finish(outcome Outcome) Outcome {
	w.observer.ObserveWorkerOutcome(string(w.State), string(outcome))
	return outcome
}

func (w *Worker) notifyTransition(ctx context.Context, job *queue.Job) {
	if w.onTransition != nil && job != nil {
		w.onTransition(ctx, job)
	}
}
