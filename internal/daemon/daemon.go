package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"shortsfactory/internal/config"
	"shortsfactory/internal/ingest"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/notifications"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/review"
	"shortsfactory/internal/workflow"
)

// Watcher is the inbox watcher lifecycle the daemon drives.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// Components are the collaborators a Daemon coordinates. Store, Manager,
// Gate and Ingest are required.
type Components struct {
	Store    *queue.Store
	Manager  *workflow.Manager
	Gate     *review.Gate
	Ingest   *ingest.Service
	Watcher  Watcher
	Notifier notifications.Service
}

// Daemon runs the pipeline and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	manager  *workflow.Manager
	gate     *review.Gate
	ingest   *ingest.Service
	watcher  Watcher
	notifier notifications.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool                   `json:"running"`
	PID            int                    `json:"pid"`
	WatcherRunning bool                   `json:"watcher_running"`
	Workflow       workflow.StatusSummary `json:"workflow"`
	Queue          queue.HealthSummary    `json:"queue"`
	DatabasePath   string                 `json:"database_path"`
	LockFilePath   string                 `json:"lock_file_path"`
}

// LockPath is the single-instance lock under data_dir.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "shortsfactory.lock")
}

// PIDPath is where the daemon process records its pid while running.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "shortsfactory.pid")
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, c Components) (*Daemon, error) {
	if cfg == nil || c.Store == nil || c.Manager == nil || c.Gate == nil || c.Ingest == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, review gate and ingest service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := c.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := LockPath(cfg)
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    c.Store,
		manager:  c.Manager,
		gate:     c.Gate,
		ingest:   c.Ingest,
		watcher:  c.Watcher,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the lock, then starts the workflow manager, the inbox
// watcher and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shortsfactory daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.watcher != nil && d.cfg.Ingest.Enabled {
		if err := d.watcher.Start(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "inbox watcher unavailable", "watcher_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inbox_dir permissions"),
				logging.String(logging.FieldImpact, "new inbox files are not picked up automatically"),
			)
		}
	}
	if err := d.api.start(runCtx); err != nil {
		d.stopComponents()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.appendLog(ctx, queue.ActionDaemonStarted, "pid "+fmt.Sprint(os.Getpid()))
	d.logger.Info("shortsfactory daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the lock. In-flight
// provider runs finish before it returns.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.stopComponents()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.appendLog(context.Background(), queue.ActionDaemonStopped, "")
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("shortsfactory daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) stopComponents() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.manager.Stop()
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the address the API server listens on, or "" when
// it is disabled or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Handler exposes the API router without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.router
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("queue health unavailable", logging.Error(err))
	}
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.manager.Status(ctx),
		Queue:        health,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if d.watcher != nil {
		status.WatcherRunning = d.watcher.Running()
	}
	return status
}

// TestNotification sends a test notification with the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) appendLog(ctx context.Context, action queue.Action, details string) {
	if err := d.store.AppendLog(ctx, queue.Entry{Action: action, Details: details, Success: true}); err != nil {
		d.logger.Warn("activity log write failed",
			logging.String("action", string(action)),
			logging.Error(err),
		)
	}
}
