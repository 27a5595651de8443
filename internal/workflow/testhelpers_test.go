package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"shortsfactory/internal/config"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/notifications"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
	"shortsfactory/internal/testsupport"
)

// fakeProvider returns the artifact its state owns. Behaviour hooks let
// tests inject failures, panics and blocking.
type fakeProvider struct {
	state queue.State

	mu           sync.Mutex
	calls        int
	fail         func(attempt int) error
	panicMsg     string
	omitArtifact bool
	started      chan struct{}
	release      chan struct{}
	ctxErrs      []error
}

func newFakeProvider(state queue.State) *fakeProvider {
	return &fakeProvider{state: state}
}

func (p *fakeProvider) Name() string { return "fake-" + string(p.state) }

func (p *fakeProvider) HealthCheck(context.Context) stage.Health { return stage.Healthy(p.Name()) }

func (p *fakeProvider) Run(ctx context.Context, req stage.Request) (stage.Result, error) {
	p.mu.Lock()
	p.calls++
	started, release := p.started, p.release
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	p.mu.Lock()
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	p.mu.Unlock()

	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.fail != nil {
		if err := p.fail(req.Attempt); err != nil {
			return stage.Result{}, err
		}
	}

	id := req.Job.ID
	if p.state == queue.StateUploading {
		return stage.Result{Publish: &queue.PublishRecord{
			PlatformID: "fake-" + id,
			URL:        "https://example.invalid/" + id,
		}}, nil
	}
	kind, ok := queue.ArtifactFor(p.state)
	if !ok || p.omitArtifact {
		return stage.Result{}, nil
	}
	result := stage.WithArtifact(kind, fmt.Sprintf("/fake/%s/%s", id, kind))
	if p.state == queue.StateMetadata {
		result.Details = &queue.Details{Title: "Fake Title", Hashtags: []string{"#shorts"}}
	}
	return result, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeProviders map[queue.State]*fakeProvider

func newFakeProviders() fakeProviders {
	out := make(fakeProviders)
	for _, state := range queue.WorkerStates() {
		out[state] = newFakeProvider(state)
	}
	return out
}

func (f fakeProviders) set() WorkerSet {
	return WorkerSet{
		Intake:    f[queue.StateNew],
		Cutter:    f[queue.StateCutting],
		Formatter: f[queue.StateFormatting],
		Captioner: f[queue.StateCaptioning],
		Describer: f[queue.StateMetadata],
		Renderer:  f[queue.StateRendering],
		Uploader:  f[queue.StateUploading],
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == event {
			total++
		}
	}
	return total
}

type env struct {
	cfg       *config.Config
	store     *queue.Store
	manager   *Manager
	providers fakeProviders
	notifier  *recordingNotifier
}

func newEnv(t *testing.T, cfgOpts []testsupport.ConfigOption, storeOpts []queue.Option, mgrOpts ...ManagerOption) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	cfg.Workflow.ErrorRetryInterval = 0
	store := testsupport.MustOpenStore(t, cfg, storeOpts...)
	notifier := &recordingNotifier{}
	opts := append([]ManagerOption{WithNotifier(notifier)}, mgrOpts...)
	mgr := NewManager(cfg, store, logging.NewNop(), opts...)
	return &env{
		cfg:       cfg,
		store:     store,
		manager:   mgr,
		providers: newFakeProviders(),
		notifier:  notifier,
	}
}

func (e *env) configure(t *testing.T, set WorkerSet) {
	t.Helper()
	if err := e.manager.ConfigureWorkers(set); err != nil {
		t.Fatalf("ConfigureWorkers: %v", err)
	}
}

func (e *env) runOnce(t *testing.T) {
	t.Helper()
	if err := e.manager.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
}

func (e *env) job(t *testing.T, id string) *queue.Job {
	t.Helper()
	job, err := e.store.GetByID(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("GetByID %s: %v", id, err)
	}
	return job
}

func (e *env) history(t *testing.T, id string) []queue.Entry {
	t.Helper()
	entries, err := e.store.History(context.Background(), id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	return entries
}

func countActions(entries []queue.Entry, action queue.Action) int {
	total := 0
	for _, e := range entries {
		if e.Action == action {
			total++
		}
	}
	return total
}

func assertArtifactInvariant(t *testing.T, job *queue.Job) {
	t.Helper()
	if err := queue.CheckArtifacts(job.State, job.Artifacts); err != nil {
		t.Fatalf("artifact invariant broken for %s in %s: %v", job.ID, job.State, err)
	}
}

var errFlaky = errors.New("flaky tool")
