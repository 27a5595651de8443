// Package daemonrun wires the pipeline components together and runs them as
// the shortsfactory daemon.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"shortsfactory/internal/config"
	"shortsfactory/internal/daemon"
	"shortsfactory/internal/ingest"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/media"
	"shortsfactory/internal/metrics"
	"shortsfactory/internal/notifications"
	"shortsfactory/internal/publish"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/review"
	"shortsfactory/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// Once scans the inbox, runs every lane a single time and exits.
	Once bool
}

// Runtime holds the wired pipeline components.
type Runtime struct {
	Manager  *workflow.Manager
	Gate     *review.Gate
	Ingest   *ingest.Service
	Watcher  *ingest.Watcher
	Notifier notifications.Service
}

// Build constructs providers, the workflow manager, the review gate and the
// ingest service on top of store.
func Build(cfg *config.Config, logger *slog.Logger, store *queue.Store) (*Runtime, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("build runtime: config and store are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	uploader, err := publish.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build uploader: %w", err)
	}
	tools := media.NewTools(cfg, nil)
	recorder := metrics.Recorder{}
	notifier := notifications.NewService(cfg)

	manager := workflow.NewManager(cfg, store, logger,
		workflow.WithNotifier(notifier),
		workflow.WithObserver(recorder),
	)
	if err := manager.ConfigureWorkers(workflow.WorkerSet{
		Intake:    media.NewIntake(cfg),
		Cutter:    media.NewClipExtractor(cfg, tools),
		Formatter: media.NewFormatConverter(cfg, tools),
		Captioner: media.NewCaptionGenerator(cfg, tools),
		Describer: media.NewMetadataGenerator(cfg),
		Renderer:  media.NewFinalRenderer(cfg, tools),
		Uploader:  uploader,
	}); err != nil {
		return nil, fmt.Errorf("configure workers: %w", err)
	}

	gate := review.NewGate(store,
		review.WithLogger(logger),
		review.WithRecorder(recorder),
		review.WithNotifier(manager),
	)
	svc := ingest.NewService(store, cfg, logger, ingest.WithObserver(recorder))
	return &Runtime{
		Manager:  manager,
		Gate:     gate,
		Ingest:   svc,
		Watcher:  ingest.NewWatcher(svc),
		Notifier: notifier,
	}, nil
}

// Daemon wraps the runtime in a daemon with the HTTP API and lock.
func (r *Runtime) Daemon(cfg *config.Config, logger *slog.Logger, store *queue.Store) (*daemon.Daemon, error) {
	return daemon.New(cfg, logger, daemon.Components{
		Store:    store,
		Manager:  r.Manager,
		Gate:     r.Gate,
		Ingest:   r.Ingest,
		Watcher:  r.Watcher,
		Notifier: r.Notifier,
	})
}

// Run starts the shortsfactory daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("shortsfactory-%s.log", runID))
	logger, err := logging.NewWithLogFile(cfg, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "shortsfactory-*.log", Exclude: []string{logPath}},
	)
	logDependencySnapshot(logger, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	if cfg.Metrics.Enabled {
		metrics.MustRegister()
	}

	rt, err := Build(cfg, logger, store)
	if err != nil {
		return err
	}
	if opts.Once {
		return runOnce(signalCtx, cfg, logger, rt)
	}

	d, err := rt.Daemon(cfg, logger, store)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	pidPath := daemon.PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("write pid file failed", logging.Error(err))
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("shortsfactory daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

// runOnce drains the pipeline a single time. It takes the daemon lock so a
// running daemon's live leases are never released from under it.
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, rt *Runtime) error {
	lockPath := daemon.LockPath(cfg)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("shortsfactory daemon is running; stop it before using --once")
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := rt.Manager.ReleaseOrphanedClaims(ctx); err != nil {
		return err
	}
	if cfg.Ingest.Enabled {
		if err := rt.Ingest.PrepareInbox(); err != nil {
			return fmt.Errorf("prepare inbox: %w", err)
		}
		created, err := rt.Ingest.Scan(ctx)
		if err != nil {
			return fmt.Errorf("scan inbox: %w", err)
		}
		logger.Info("inbox scanned", logging.Int("created", created))
	}
	if err := rt.Manager.RunOnce(ctx); err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.FFmpegBinary()
	ffprobe := cfg.FFprobeBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Bool("publish_enabled", cfg.Publish.Enabled),
		logging.String("publish_backend", cfg.Publish.Backend),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
