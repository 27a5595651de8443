package daemon

import (
	"context"
	"fmt"
	"testing"

	"shortsfactory/internal/config"
	"shortsfactory/internal/ingest"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/review"
	"shortsfactory/internal/stage"
	"shortsfactory/internal/testsupport"
	"shortsfactory/internal/workflow"
)

// passProvider returns a placeholder for the artifact its state owns.
type passProvider struct{ state queue.State }

func (p passProvider) Name() string { return "pass-" + string(p.state) }

func (p passProvider) HealthCheck(context.Context) stage.Health { return stage.Healthy(p.Name()) }

func (p passProvider) Run(_ context.Context, req stage.Request) (stage.Result, error) {
	if p.state == queue.StateUploading {
		return stage.Result{Publish: &queue.PublishRecord{PlatformID: "pass-" + req.Job.ID}}, nil
	}
	kind, _ := queue.ArtifactFor(p.state)
	return stage.WithArtifact(kind, fmt.Sprintf("/pass/%s/%s", req.Job.ID, kind)), nil
}

type harness struct {
	cfg    *config.Config
	store  *queue.Store
	daemon *Daemon
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	return &harness{cfg: cfg, store: store, daemon: newDaemon(t, cfg, store)}
}

func newDaemon(t *testing.T, cfg *config.Config, store *queue.Store) *Daemon {
	t.Helper()
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	if err := mgr.ConfigureWorkers(workflow.WorkerSet{
		Intake:    passProvider{queue.StateNew},
		Cutter:    passProvider{queue.StateCutting},
		Formatter: passProvider{queue.StateFormatting},
		Captioner: passProvider{queue.StateCaptioning},
		Describer: passProvider{queue.StateMetadata},
		Renderer:  passProvider{queue.StateRendering},
		Uploader:  passProvider{queue.StateUploading},
	}); err != nil {
		t.Fatalf("ConfigureWorkers: %v", err)
	}
	svc := ingest.NewService(store, cfg, logger)
	d, err := New(cfg, logger, Components{
		Store:   store,
		Manager: mgr,
		Gate:    review.NewGate(store, review.WithLogger(logger), review.WithNotifier(mgr)),
		Ingest:  svc,
		Watcher: ingest.NewWatcher(svc),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestNewRequiresComponents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := New(cfg, nil, Components{}); err == nil {
		t.Fatal("expected error for missing components")
	}
}

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := h.daemon.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected daemon and workflow to report running, got %+v", status)
	}
	if !status.WatcherRunning {
		t.Fatal("expected inbox watcher to run")
	}
	if h.daemon.APIAddress() == "" {
		t.Fatal("expected API to listen")
	}
	if err := h.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	h.daemon.Stop()
	status = h.daemon.Status(ctx)
	if status.Running || status.Workflow.Running || status.WatcherRunning {
		t.Fatalf("expected everything stopped, got %+v", status)
	}

	entries, err := h.store.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	var started, stopped int
	for _, e := range entries {
		switch e.Action {
		case queue.ActionDaemonStarted:
			started++
		case queue.ActionDaemonStopped:
			stopped++
		}
	}
	if started != 1 || stopped != 1 {
		t.Fatalf("expected one start and one stop entry, got %d/%d", started, stopped)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	h := newHarness(t)
	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	other := newDaemon(t, h.cfg, h.store)
	if err := other.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
	h.daemon.Stop()
	if err := other.Start(context.Background()); err != nil {
		t.Fatalf("expected start after lock release, got %v", err)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	h := newHarness(t)
	sent, msg, err := h.daemon.TestNotification(context.Background())
	if err != nil || sent || msg != "ntfy topic not configured" {
		t.Fatalf("unexpected result sent=%v msg=%q err=%v", sent, msg, err)
	}
}
