package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"shortsfactory/internal/logging"
	"shortsfactory/internal/throttle"
)

// Start releases leases left by a previous process, seeds the throttle from
// the activity log and launches one goroutine per lane. The caller must hold
// the daemon lock: every lease found at start is assumed dead.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.lanes) == 0 {
		return errors.New("workflow workers not configured")
	}

	if _, err := m.ReleaseOrphanedClaims(ctx); err != nil {
		return err
	}
	if err := m.seedThrottleLocked(ctx); err != nil {
		return err
	}
	m.runPreflight(ctx)

	stop := make(chan struct{})
	m.stopCh = stop
	m.running = true

	workCtx := context.WithoutCancel(ctx)
	m.wg.Add(len(m.lanes))
	for _, l := range m.lanes {
		go m.runLane(ctx, workCtx, stop, l)
	}
	m.logger.Info("workflow started",
		logging.Int("lanes", len(m.lanes)),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Int("batch_limit", m.batchLimit),
	)
	return nil
}

// ReleaseOrphanedClaims clears every lease in the store. Only call it while
// holding the daemon lock, when no other process can own a live claim.
func (m *Manager) ReleaseOrphanedClaims(ctx context.Context) (int, error) {
	released, err := m.store.ReleaseClaims(ctx)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	if released > 0 {
		m.logger.Info("released stale claims",
			logging.Int("count", released),
			logging.String(logging.FieldEventType, "claims_released"),
		)
	}
	return released, nil
}

// Stop asks every lane to exit after its current step and waits for them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether lanes are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// RunOnce runs one batch on every lane, in pipeline order, on the calling
// goroutine. Store errors from all lanes are joined.
func (m *Manager) RunOnce(ctx context.Context) error {
	m.mu.Lock()
	if !m.seeded {
		if err := m.seedThrottleLocked(ctx); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	lanes := slices.Clone(m.lanes)
	m.mu.Unlock()

	if len(lanes) == 0 {
		return errors.New("workflow workers not configured")
	}
	var errs []error
	for _, l := range lanes {
		if err := m.runBatch(ctx, l, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runLane polls until stop is closed or ctx ends. workCtx is what steps run
// under, so Stop never cancels a provider mid-call.
func (m *Manager) runLane(ctx, workCtx context.Context, stop <-chan struct{}, l *lane) {
	defer m.wg.Done()
	for {
		if stopped(stop) || ctx.Err() != nil {
			return
		}
		_ = m.runBatch(workCtx, l, stop)
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *Manager) runBatch(ctx context.Context, l *lane, stop <-chan struct{}) error {
	for range m.batchLimit {
		if stopped(stop) {
			return nil
		}
		outcome, err := m.step(ctx, l)
		if err != nil {
			m.recordLaneError(l, err)
			return err
		}
		if outcome == OutcomeIdle || outcome == OutcomeDeferred {
			return nil
		}
	}
	return nil
}

func (m *Manager) step(ctx context.Context, l *lane) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	if l.release {
		outcome, err = m.releaseOne(ctx)
	} else {
		outcome, err = l.worker.ProcessOne(ctx)
	}
	if err == nil {
		m.mu.Lock()
		l.lastOutcome = outcome
		if outcome != OutcomeIdle && outcome != OutcomeDeferred {
			l.processed++
		}
		m.mu.Unlock()
	}
	return outcome, err
}

func (m *Manager) recordLaneError(l *lane, err error) {
	m.mu.Lock()
	m.lastErr = err
	m.errorCount++
	m.mu.Unlock()

	state := "release"
	if l.worker != nil {
		state = string(l.worker.State)
	}
	m.observer.ObserveWorkerOutcome(state, "error")
	logging.ErrorWithContext(m.logger, "worker step failed", "worker_error",
		logging.String("lane", l.name),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check job database access"),
	)
}

// seedThrottleLocked restores today's publish count so a restart cannot
// exceed the daily limit. Caller holds m.mu.
func (m *Manager) seedThrottleLocked(ctx context.Context) error {
	count, last, err := m.store.PublishedSince(ctx, throttle.StartOfDay(m.clock()))
	if err != nil {
		return fmt.Errorf("seed publish throttle: %w", err)
	}
	m.throttle.Seed(count, last)
	m.seeded = true
	if count > 0 {
		m.logger.Debug("publish throttle seeded",
			logging.Int("published_today", count),
			logging.String("last_publish", last.UTC().Format(time.RFC3339)),
		)
	}
	return nil
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
