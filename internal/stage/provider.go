package stage

import (
	"context"
	"log/slog"

	"shortsfactory/internal/queue"
)

// Provider is the capability a worker invokes for the state it is bound to.
// Implementations shell out to external tools or services and report the
// artifact they produced; they never touch the job store.
type Provider interface {
	Name() string
	Run(context.Context, Request) (Result, error)
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by providers that accept a job-scoped logger
// before each run.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Request is the snapshot of a claimed job handed to a provider.
type Request struct {
	Job *queue.Job
	// Attempt is 1-based and counts the current try within the state.
	Attempt int
}

// Artifact returns the reference stored on the job for kind.
func (r Request) Artifact(kind queue.Artifact) string {
	if r.Job == nil {
		return ""
	}
	return r.Job.Artifacts.Get(kind)
}

// Result carries what a provider produced. Only the artifact owned by the
// job's current state is accepted by the store.
type Result struct {
	Artifacts map[queue.Artifact]string
	Details   *queue.Details
	Publish   *queue.PublishRecord
	Note      string
}

// WithArtifact is a convenience for single-artifact results.
func WithArtifact(kind queue.Artifact, ref string) Result {
	return Result{Artifacts: map[queue.Artifact]string{kind: ref}}
}

// Health is a provider's answer to HealthCheck, shown in daemon status.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
