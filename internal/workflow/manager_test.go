package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"shortsfactory/internal/notifications"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/review"
	"shortsfactory/internal/stage"
	"shortsfactory/internal/testsupport"
	"shortsfactory/internal/throttle"
)

func TestRunOnceCarriesJobToPublished(t *testing.T) {
	e := newEnv(t, []testsupport.ConfigOption{testsupport.WithPublishing(5, 0, 0)}, nil)
	e.configure(t, e.providers.set())
	job := testsupport.MustIngestIdea(t, e.store, "three tips for faster builds")

	e.runOnce(t)
	got := e.job(t, job.ID)
	if got.State != queue.StateAwaitingReview {
		t.Fatalf("expected AWAITING_REVIEW after one cycle, got %s", got.State)
	}
	assertArtifactInvariant(t, got)
	if got.Details.Title != "Fake Title" {
		t.Fatalf("expected metadata details to be stored, got %#v", got.Details)
	}
	if e.notifier.count(notifications.EventReviewReady) != 1 {
		t.Fatalf("expected one review notification, got %v", e.notifier.events)
	}

	// Nothing moves without a reviewer.
	e.runOnce(t)
	if got := e.job(t, job.ID); got.State != queue.StateAwaitingReview {
		t.Fatalf("job left review without a decision: %s", got.State)
	}

	gate := review.NewGate(e.store)
	if _, err := gate.Approve(context.Background(), job.ID, "alice", "ship it"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	e.runOnce(t)
	got = e.job(t, job.ID)
	if got.State != queue.StatePublished {
		t.Fatalf("expected PUBLISHED, got %s (error %q)", got.State, got.ErrorMessage)
	}
	assertArtifactInvariant(t, got)
	if got.Publish.PlatformID != "fake-"+job.ID {
		t.Fatalf("unexpected publish record %#v", got.Publish)
	}

	history := e.history(t, job.ID)
	if n := countActions(history, queue.ActionStateChange); n != 9 {
		t.Fatalf("expected 9 state changes, got %d", n)
	}
	for _, entry := range history {
		if entry.Action != queue.ActionStateChange {
			continue
		}
		if !queue.Allowed(entry.FromState, entry.Event, entry.ToState) {
			t.Fatalf("illegal transition logged: %s --%s--> %s", entry.FromState, entry.Event, entry.ToState)
		}
	}

	snap := e.manager.Status(context.Background()).Throttle
	if snap.Count != 1 {
		t.Fatalf("expected throttle to record the publish, got %d", snap.Count)
	}
	if e.notifier.count(notifications.EventPublished) != 1 {
		t.Fatalf("expected one published notification, got %v", e.notifier.events)
	}
}

func TestRetryExhaustionMovesJobToFailed(t *testing.T) {
	e := newEnv(t, []testsupport.ConfigOption{testsupport.WithMaxRetries(3)}, nil)
	e.providers[queue.StateCutting].fail = func(int) error {
		return stage.Failed("fake-cutter", "cut", "tool crashed", errFlaky)
	}
	e.configure(t, e.providers.set())
	job := testsupport.MustIngestIdea(t, e.store, "retry me")

	for attempt := 1; attempt <= 2; attempt++ {
		e.runOnce(t)
		got := e.job(t, job.ID)
		if got.State != queue.StateCutting || got.AttemptCount != attempt {
			t.Fatalf("after cycle %d expected CUTTING with %d attempts, got %s/%d", attempt, attempt, got.State, got.AttemptCount)
		}
		if got.IsClaimed() {
			t.Fatalf("claim should be cleared after a failure")
		}
	}

	e.runOnce(t)
	got := e.job(t, job.ID)
	if got.State != queue.StateFailed {
		t.Fatalf("expected FAILED after exhausting retries, got %s", got.State)
	}
	if !strings.Contains(got.ErrorMessage, "tool crashed") {
		t.Fatalf("expected error to be kept, got %q", got.ErrorMessage)
	}
	assertArtifactInvariant(t, got)

	history := e.history(t, job.ID)
	if n := countActions(history, queue.ActionStageFailed); n != 3 {
		t.Fatalf("expected 3 STAGE_FAILED entries, got %d", n)
	}
	last := history[len(history)-1]
	if last.Event != queue.EventExhaust || last.ToState != queue.StateFailed {
		t.Fatalf("expected final exhaust transition, got %#v", last)
	}
	if e.providers[queue.StateCutting].Calls() != 3 {
		t.Fatalf("expected 3 provider calls, got %d", e.providers[queue.StateCutting].Calls())
	}
	if e.notifier.count(notifications.EventJobFailed) != 1 {
		t.Fatalf("expected one failure notification, got %v", e.notifier.events)
	}

	// Further cycles leave a failed job alone.
	e.runOnce(t)
	if e.providers[queue.StateCutting].Calls() != 3 {
		t.Fatal("failed job was processed again")
	}
}

func TestPermanentProviderErrorFailsImmediately(t *testing.T) {
	e := newEnv(t, []testsupport.ConfigOption{testsupport.WithMaxRetries(5)}, nil)
	e.providers[queue.StateNew].fail = func(int) error {
		return stage.Fatal("fake-intake", "stage", "source missing", nil)
	}
	e.configure(t, e.providers.set())
	job := testsupport.MustIngestIdea(t, e.store, "gone")

	e.runOnce(t)
	got := e.job(t, job.ID)
	if got.State != queue.StateFailed || got.AttemptCount != 1 {
		t.Fatalf("expected FAILED after one attempt, got %s/%d", got.State, got.AttemptCount)
	}
}

func TestProviderPanicIsRecordedAsFailure(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.providers[queue.StateFormatting].panicMsg = "boom"
	e.configure(t, e.providers.set())
	job := testsupport.MustIngestIdea(t, e.store, "panic")

	e.runOnce(t)
	got := e.job(t, job.ID)
	if got.State != queue.StateFormatting || got.AttemptCount != 1 {
		t.Fatalf("expected FORMATTING with one attempt, got %s/%d", got.State, got.AttemptCount)
	}
	if !strings.Contains(got.ErrorMessage, "panic: boom") {
		t.Fatalf("expected panic in error message, got %q", got.ErrorMessage)
	}
	assertArtifactInvariant(t, got)
}

func TestMissingArtifactIsTreatedAsFailure(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.providers[queue.StateCaptioning].omitArtifact = true
	e.configure(t, e.providers.set())
	job := testsupport.MustIngestIdea(t, e.store, "no captions")

	e.runOnce(t)
	got := e.job(t, job.ID)
	if got.State != queue.StateCaptioning || got.AttemptCount != 1 {
		t.Fatalf("expected CAPTIONING with one attempt, got %s/%d", got.State, got.AttemptCount)
	}
	if got.Artifacts.Captions != "" {
		t.Fatalf("captions artifact must stay empty, got %q", got.Artifacts.Captions)
	}
	if !strings.Contains(got.ErrorMessage, "captions") {
		t.Fatalf("expected missing artifact in error, got %q", got.ErrorMessage)
	}
}

func TestReleaseDeferredByDailyLimit(t *testing.T) {
	e := newEnv(t, []testsupport.ConfigOption{testsupport.WithPublishing(1, 0, 0)}, nil)
	e.configure(t, e.providers.set())
	first := testsupport.MustIngestIdea(t, e.store, "first")
	second := testsupport.MustIngestIdea(t, e.store, "second")
	testsupport.DriveTo(t, e.store, first.ID, queue.StateApproved)
	testsupport.DriveTo(t, e.store, second.ID, queue.StateApproved)

	e.runOnce(t)
	if got := e.job(t, first.ID); got.State != queue.StatePublished {
		t.Fatalf("expected first job published, got %s", got.State)
	}
	if e.notifier.count(notifications.EventDailyLimit) != 1 {
		t.Fatalf("expected daily limit notification, got %v", e.notifier.events)
	}

	for range 3 {
		e.runOnce(t)
	}
	got := e.job(t, second.ID)
	if got.State != queue.StateApproved {
		t.Fatalf("expected second job to wait in APPROVED, got %s", got.State)
	}
	if got.AttemptCount != 0 {
		t.Fatalf("throttle rejection must not consume attempts, got %d", got.AttemptCount)
	}
	if n := countActions(e.history(t, second.ID), queue.ActionPublishDeferred); n != 1 {
		t.Fatalf("expected one PUBLISH_DEFERRED entry, got %d", n)
	}
}

func TestReleaseSpacingUsesClock(t *testing.T) {
	clock := testsupport.NewClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	e := newEnv(t,
		[]testsupport.ConfigOption{testsupport.WithPublishing(5, 60, 60)},
		[]queue.Option{queue.WithClock(clock.Now)},
		WithClock(clock.Now),
	)
	e.configure(t, e.providers.set())
	first := testsupport.MustIngestIdea(t, e.store, "first")
	second := testsupport.MustIngestIdea(t, e.store, "second")
	testsupport.DriveTo(t, e.store, first.ID, queue.StateApproved)
	testsupport.DriveTo(t, e.store, second.ID, queue.StateApproved)

	e.runOnce(t)
	e.runOnce(t)
	if got := e.job(t, second.ID); got.State != queue.StateApproved {
		t.Fatalf("second publish must wait for spacing, got %s", got.State)
	}

	clock.Advance(61 * time.Minute)
	e.runOnce(t)
	if got := e.job(t, second.ID); got.State != queue.StatePublished {
		t.Fatalf("expected second publish after spacing, got %s", got.State)
	}
}

func TestReleaseWaitsWhileUploading(t *testing.T) {
	e := newEnv(t, []testsupport.ConfigOption{testsupport.WithPublishing(5, 0, 0)}, nil)
	set := e.providers.set()
	set.Uploader = nil
	e.configure(t, set)
	busy := testsupport.MustIngestIdea(t, e.store, "busy")
	waiting := testsupport.MustIngestIdea(t, e.store, "waiting")
	testsupport.DriveTo(t, e.store, busy.ID, queue.StateUploading)
	testsupport.DriveTo(t, e.store, waiting.ID, queue.StateApproved)

	e.runOnce(t)
	if got := e.job(t, waiting.ID); got.State != queue.StateApproved {
		t.Fatalf("release must wait for the in-flight upload, got %s", got.State)
	}
}

func TestPublishingDisabledKeepsJobsApproved(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.configure(t, e.providers.set())
	job := testsupport.MustIngestIdea(t, e.store, "hold")
	testsupport.DriveTo(t, e.store, job.ID, queue.StateApproved)

	e.runOnce(t)
	if got := e.job(t, job.ID); got.State != queue.StateApproved {
		t.Fatalf("expected APPROVED with publishing disabled, got %s", got.State)
	}
	for _, l := range e.manager.Status(context.Background()).Lanes {
		if l.Name == "release" {
			t.Fatal("release lane must not exist when publishing is disabled")
		}
	}
}

func TestStartReleasesStaleClaimsAndStopIsCooperative(t *testing.T) {
	e := newEnv(t, nil, nil)
	intake := e.providers[queue.StateNew]
	intake.started = make(chan struct{}, 1)
	intake.release = make(chan struct{})
	e.configure(t, WorkerSet{Intake: intake})

	job := testsupport.MustIngestIdea(t, e.store, "cooperative")
	if _, err := e.store.ClaimNext(context.Background(), queue.StateNew, "ghost", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("ghost claim: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.manager.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	select {
	case <-intake.started:
	case <-time.After(5 * time.Second):
		t.Fatal("provider never started; stale claim was not released")
	}

	stopped := make(chan struct{})
	go func() {
		e.manager.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a provider call was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(intake.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the provider finished")
	}

	if e.manager.Running() {
		t.Fatal("manager still reports running")
	}
	intake.mu.Lock()
	ctxErr := intake.ctxErrs[0]
	intake.mu.Unlock()
	if ctxErr != nil {
		t.Fatalf("provider context was cancelled by Stop: %v", ctxErr)
	}
	got := e.job(t, job.ID)
	if got.State != queue.StateCutting {
		t.Fatalf("expected the in-flight job to complete, got %s", got.State)
	}
	if n := countActions(e.history(t, job.ID), queue.ActionClaimReleased); n != 1 {
		t.Fatalf("expected one CLAIM_RELEASED entry, got %d", n)
	}
}

func TestCrashedClaimIsReclaimedWithoutDuplicateTransition(t *testing.T) {
	clock := testsupport.NewClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	e := newEnv(t, nil, []queue.Option{queue.WithClock(clock.Now)}, WithClock(clock.Now))
	e.configure(t, WorkerSet{Intake: e.providers[queue.StateNew]})
	job := testsupport.MustIngestIdea(t, e.store, "crash")

	ctx := context.Background()
	crashed, err := e.store.ClaimNext(ctx, queue.StateNew, "crashed-worker", clock.Now().Add(-time.Hour))
	if err != nil || crashed == nil {
		t.Fatalf("crashed claim: %v", err)
	}

	// Lease still fresh: nothing to do.
	e.runOnce(t)
	if got := e.job(t, job.ID); got.State != queue.StateNew {
		t.Fatalf("live lease was stolen: %s", got.State)
	}

	clock.Advance(e.cfg.ClaimTimeout() + time.Minute)
	e.runOnce(t)
	if got := e.job(t, job.ID); got.State != queue.StateCutting {
		t.Fatalf("expected reclaimed job to advance, got %s", got.State)
	}

	_, err = e.store.Advance(ctx, queue.Transition{
		JobID:     job.ID,
		From:      queue.StateNew,
		Event:     queue.EventComplete,
		Owner:     "crashed-worker",
		Artifacts: map[queue.Artifact]string{queue.ArtifactOrigin: "/late"},
	})
	if !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected ErrConflict for the crashed worker, got %v", err)
	}

	transitions := 0
	for _, entry := range e.history(t, job.ID) {
		if entry.Action == queue.ActionStateChange && entry.FromState == queue.StateNew {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("expected exactly one NEW transition, got %d", transitions)
	}
}

func TestStatusSummary(t *testing.T) {
	e := newEnv(t, []testsupport.ConfigOption{testsupport.WithPublishing(3, 0, 0)}, nil)
	e.configure(t, e.providers.set())
	testsupport.MustIngestIdea(t, e.store, "status")

	e.runOnce(t)
	status := e.manager.Status(context.Background())
	if status.Running {
		t.Fatal("RunOnce must not mark the manager running")
	}
	if status.Counts[queue.StateAwaitingReview] != 1 {
		t.Fatalf("unexpected counts %#v", status.Counts)
	}
	if len(status.ProviderHealth) != 7 {
		t.Fatalf("expected health for 7 providers, got %d", len(status.ProviderHealth))
	}
	if len(status.Lanes) != 8 {
		t.Fatalf("expected 7 worker lanes plus release, got %d", len(status.Lanes))
	}
	if status.LastJob == nil || status.LastJob.State != queue.StateAwaitingReview {
		t.Fatalf("expected last job to be the reviewed one, got %#v", status.LastJob)
	}
	if !status.PublishEnabled || status.Throttle.MaxPerDay != 3 {
		t.Fatalf("unexpected publish status %#v", status.Throttle)
	}
}

func TestConfigureWorkersRequiresProviders(t *testing.T) {
	e := newEnv(t, nil, nil)
	if err := e.manager.Start(context.Background()); err == nil {
		t.Fatal("expected Start without lanes to fail")
	}
	if err := e.manager.RunOnce(context.Background()); err == nil {
		t.Fatal("expected RunOnce without lanes to fail")
	}
}

func TestWithThrottleOverridesConfig(t *testing.T) {
	th := throttle.New(throttle.Options{MaxPerDay: 0})
	e := newEnv(t, []testsupport.ConfigOption{testsupport.WithPublishing(5, 0, 0)}, nil, WithThrottle(th))
	e.configure(t, e.providers.set())
	job := testsupport.MustIngestIdea(t, e.store, "blocked")
	testsupport.DriveTo(t, e.store, job.ID, queue.StateApproved)

	e.runOnce(t)
	if got := e.job(t, job.ID); got.State != queue.StateApproved {
		t.Fatalf("expected disabled throttle to hold the job, got %s", got.State)
	}
}
