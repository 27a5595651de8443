package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"shortsfactory/internal/logging"
)

const minSettle = 50 * time.Millisecond

// Watcher ingests inbox files once they stop changing for the settle delay.
type Watcher struct {
	svc    *Service
	logger *slog.Logger
	settle time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	fsw     *fsnotify.Watcher
}

// NewWatcher builds a watcher over the service's inbox.
func NewWatcher(svc *Service) *Watcher {
	settle := time.Duration(svc.cfg.Ingest.SettleSeconds) * time.Second
	if settle < minSettle {
		settle = minSettle
	}
	return &Watcher{
		svc:     svc,
		logger:  svc.logger.With(logging.String(logging.FieldComponent, "inbox-watcher")),
		settle:  settle,
		pending: make(map[string]time.Time),
	}
}

// Start prepares the inbox, scans what is already there and begins
// watching. It returns once the watches are installed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("inbox watcher already running")
	}
	if err := w.svc.PrepareInbox(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dirs := []string{w.svc.cfg.LongVideoInbox(), w.svc.cfg.ClipInbox(), filepath.Dir(w.svc.cfg.IdeasFile())}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	if n, err := w.svc.Scan(ctx); err != nil {
		logging.WarnWithContext(w.logger, "initial inbox scan incomplete", "inbox_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "remaining files are picked up on their next change"),
		)
	} else if n > 0 {
		w.logger.Info("initial inbox scan", logging.Int("jobs_created", n))
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.loop(runCtx, fsw)

	w.logger.Info("inbox watcher started", logging.Any("dirs", dirs))
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, fsw := w.cancel, w.fsw
	w.running = false
	w.cancel = nil
	w.fsw = nil
	w.mu.Unlock()

	cancel()
	_ = fsw.Close()
	w.wg.Wait()
}

// Running reports whether the watch loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.observe(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "inbox watch error", "inbox_watch_error", logging.Error(err))
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// observe schedules path for ingestion after the settle delay. Each new
// event for the same path pushes the deadline back.
func (w *Watcher) observe(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	path := event.Name
	if IsTempFile(path) {
		return
	}
	if path != w.svc.cfg.IdeasFile() {
		if _, ok := w.svc.KindFor(path); !ok {
			return
		}
	}
	w.mu.Lock()
	w.pending[path] = time.Now().Add(w.settle)
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var due []string
	for path, deadline := range w.pending {
		if !now.Before(deadline) {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range due {
		if err := w.ingest(ctx, path); err != nil {
			logging.ErrorWithContext(w.logger, "inbox ingest failed", "ingest_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the job store; the file is retried on its next change"),
			)
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) error {
	if path == w.svc.cfg.IdeasFile() {
		n, err := w.svc.IngestIdeasFile(ctx, path)
		if n > 0 {
			w.logger.Info("ideas ingested", logging.Int("jobs_created", n))
		}
		return err
	}
	_, err := w.svc.ingestInboxFile(ctx, path)
	return err
}
