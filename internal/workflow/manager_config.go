package workflow

import (
	"errors"
	"fmt"

	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
)

// WorkerSet names the provider for each worker-bound state. Nil entries
// leave that state without a lane.
type WorkerSet struct {
	Intake    stage.Provider
	Cutter    stage.Provider
	Formatter stage.Provider
	Captioner stage.Provider
	Describer stage.Provider
	Renderer  stage.Provider
	Uploader  stage.Provider
}

type binding struct {
	state    queue.State
	provider stage.Provider
}

func (s WorkerSet) byState() []binding {
	return []binding{
		{queue.StateNew, s.Intake},
		{queue.StateCutting, s.Cutter},
		{queue.StateFormatting, s.Formatter},
		{queue.StateCaptioning, s.Captioner},
		{queue.StateMetadata, s.Describer},
		{queue.StateRendering, s.Renderer},
		{queue.StateUploading, s.Uploader},
	}
}

// Providers returns the configured providers in pipeline order.
func (s WorkerSet) Providers() []stage.Provider {
	var out []stage.Provider
	for _, entry := range s.byState() {
		if entry.provider != nil {
			out = append(out, entry.provider)
		}
	}
	return out
}

// lane is one polling loop: either a worker or the release step.
type lane struct {
	name    string
	worker  *Worker
	release bool

	processed   int
	lastOutcome Outcome
}

// ConfigureWorkers replaces the lanes with one per configured provider, in
// pipeline order, plus the release lane when publishing is enabled. The
// release lane sits just before the uploader so RunOnce can carry an
// approved job all the way to PUBLISHED.
func (m *Manager) ConfigureWorkers(set WorkerSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("cannot configure workers while running")
	}

	var lanes []*lane
	for _, entry := range set.byState() {
		if entry.state == queue.StateUploading && m.cfg.Publish.Enabled {
			lanes = append(lanes, &lane{name: "release", release: true})
		}
		if entry.provider == nil {
			continue
		}
		w, err := NewWorker(m.store, m.cfg, entry.state, entry.provider,
			WithWorkerLogger(m.baseLogger),
			WithWorkerObserver(m.observer),
			WithWorkerClock(m.clock),
			WithTransitionHook(m.handleTransition),
		)
		if err != nil {
			return fmt.Errorf("configure %s worker: %w", entry.state, err)
		}
		lanes = append(lanes, &lane{name: w.Name, worker: w})
	}
	m.lanes = lanes
	return nil
}
