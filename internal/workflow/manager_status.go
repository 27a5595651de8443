package workflow

import (
	"context"

	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
	"shortsfactory/internal/throttle"
)

// LaneStatus describes one polling lane.
type LaneStatus struct {
	Name        string      `json:"name"`
	State       queue.State `json:"state,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	Processed   int         `json:"processed"`
	LastOutcome Outcome     `json:"last_outcome,omitempty"`
}

// StatusSummary exposes the manager state for CLI and API consumers.
type StatusSummary struct {
	Running        bool                `json:"running"`
	LastError      string              `json:"last_error,omitempty"`
	ErrorCount     int                 `json:"error_count"`
	LastJob        *queue.Job          `json:"last_job,omitempty"`
	Counts         map[queue.State]int `json:"counts"`
	ProviderHealth []stage.Health      `json:"provider_health"`
	Throttle       throttle.Snapshot   `json:"throttle"`
	PublishEnabled bool                `json:"publish_enabled"`
	Lanes          []LaneStatus        `json:"lanes"`
}

// Status gathers counts from the store and asks every provider for its health.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:        m.running,
		ErrorCount:     m.errorCount,
		PublishEnabled: m.cfg.Publish.Enabled,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		job := *m.lastJob
		summary.LastJob = &job
	}
	var providers []stage.Provider
	for _, l := range m.lanes {
		status := LaneStatus{Name: l.name, Processed: l.processed, LastOutcome: l.lastOutcome}
		if l.worker != nil {
			status.State = l.worker.State
			status.Provider = l.worker.Provider.Name()
			providers = append(providers, l.worker.Provider)
		}
		summary.Lanes = append(summary.Lanes, status)
	}
	m.mu.RUnlock()

	summary.Throttle = m.throttle.Snapshot()

	counts, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("status counts unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_stats_failed"),
		)
	}
	summary.Counts = counts

	summary.ProviderHealth = make([]stage.Health, 0, len(providers))
	for _, p := range providers {
		summary.ProviderHealth = append(summary.ProviderHealth, p.HealthCheck(ctx))
	}
	return summary
}
