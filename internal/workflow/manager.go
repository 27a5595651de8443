package workflow

import (
	"log/slog"
	"sync"
	"time"

	"shortsfactory/internal/config"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/notifications"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/throttle"
)

// Manager coordinates the worker lanes and the release step.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	baseLogger   *slog.Logger
	pollInterval time.Duration
	batchLimit   int
	notifier     notifications.Service
	observer     Observer
	throttle     *throttle.Throttle
	clock        func() time.Time

	lanes []*lane

	mu          sync.RWMutex
	running     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
	seeded      bool
	lastErr     error
	errorCount  int
	lastJob     *queue.Job
	deferReason throttle.Reason
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notification service built from config.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithObserver attaches a metrics observer shared by every lane.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithThrottle replaces the throttle built from config.
func WithThrottle(t *throttle.Throttle) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.throttle = t
		}
	}
}

// WithClock overrides the clock used for lease cutoffs and throttle checks.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.clock = now
		}
	}
}

// NewManager constructs a new workflow manager. Workers are added with ConfigureWorkers.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		pollInterval: cfg.PollInterval(),
		batchLimit:   max(cfg.Workflow.BatchLimit, 1),
		notifier:     notifications.NewService(cfg),
		observer:     nopObserver{},
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	if m.throttle == nil {
		m.throttle = throttle.New(throttle.Options{
			MaxPerDay: cfg.Publish.MaxPerDay,
			MinDelay:  cfg.PublishMinDelay(),
			MaxDelay:  cfg.PublishMaxDelay(),
			Clock:     m.clock,
		})
	}
	m.baseLogger = logger
	return m
}
