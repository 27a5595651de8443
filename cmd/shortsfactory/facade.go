package main

import (
	"context"
	"fmt"

	"shortsfactory/internal/config"
	"shortsfactory/internal/daemon"
	"shortsfactory/internal/daemonctl"
	"shortsfactory/internal/ingest"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/review"
)

type jobsAPI interface {
	Source() string
	Counts(ctx context.Context) (map[queue.State]int, error)
	List(ctx context.Context, states []queue.State) ([]daemon.JobView, error)
	// Show returns nil, nil when the job does not exist.
	Show(ctx context.Context, id string) (*daemon.JobView, error)
	History(ctx context.Context, id string) ([]queue.Entry, error)
	Pending(ctx context.Context) ([]daemon.JobView, error)
	Approve(ctx context.Context, id, reviewer, note string) (*daemon.JobView, error)
	Reject(ctx context.Context, id, reviewer, note string) (*daemon.JobView, error)
	Reprocess(ctx context.Context, id string) (*daemon.JobView, error)
	AddIdea(ctx context.Context, idea string) (*daemon.JobView, bool, error)
	AddFile(ctx context.Context, path string, kind queue.SourceKind) (*daemon.JobView, bool, error)
}

// --- daemon API adapter ---

type clientJobs struct {
	client *daemonctl.Client
}

func (a *clientJobs) Source() string { return "daemon" }

func (a *clientJobs) Counts(ctx context.Context) (map[queue.State]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.Counts, nil
}

func (a *clientJobs) List(ctx context.Context, states []queue.State) ([]daemon.JobView, error) {
	return a.client.Jobs(ctx, states...)
}

func (a *clientJobs) Show(ctx context.Context, id string) (*daemon.JobView, error) {
	job, err := a.client.Job(ctx, id)
	if daemonctl.IsNotFound(err) {
		return nil, nil
	}
	return job, err
}

func (a *clientJobs) History(ctx context.Context, id string) ([]queue.Entry, error) {
	return a.client.History(ctx, id)
}

func (a *clientJobs) Pending(ctx context.Context) ([]daemon.JobView, error) {
	return a.client.Pending(ctx)
}

func (a *clientJobs) Approve(ctx context.Context, id, reviewer, note string) (*daemon.JobView, error) {
	return a.client.Approve(ctx, id, reviewer, note)
}

func (a *clientJobs) Reject(ctx context.Context, id, reviewer, note string) (*daemon.JobView, error) {
	return a.client.Reject(ctx, id, reviewer, note)
}

func (a *clientJobs) Reprocess(ctx context.Context, id string) (*daemon.JobView, error) {
	return a.client.Reprocess(ctx, id)
}

func (a *clientJobs) AddIdea(ctx context.Context, idea string) (*daemon.JobView, bool, error) {
	return a.client.AddIdea(ctx, idea)
}

func (a *clientJobs) AddFile(ctx context.Context, path string, kind queue.SourceKind) (*daemon.JobView, bool, error) {
	return a.client.AddFile(ctx, path, kind)
}

// --- direct store adapter ---

type storeJobs struct {
	store  *queue.Store
	gate   *review.Gate
	ingest *ingest.Service
}

func newStoreJobs(cfg *config.Config, store *queue.Store) *storeJobs {
	logger := logging.NewNop()
	return &storeJobs{
		store:  store,
		gate:   review.NewGate(store, review.WithLogger(logger)),
		ingest: ingest.NewService(store, cfg, logger),
	}
}

func (a *storeJobs) Source() string { return "database" }

func (a *storeJobs) Counts(ctx context.Context) (map[queue.State]int, error) {
	return a.store.Stats(ctx)
}

func (a *storeJobs) List(ctx context.Context, states []queue.State) ([]daemon.JobView, error) {
	jobs, err := a.store.ListByState(ctx, states...)
	if err != nil {
		return nil, err
	}
	return views(jobs), nil
}

func (a *storeJobs) Show(ctx context.Context, id string) (*daemon.JobView, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	return view(job), nil
}

func (a *storeJobs) History(ctx context.Context, id string) ([]queue.Entry, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, queue.ErrNotFound)
	}
	return a.store.History(ctx, id)
}

func (a *storeJobs) Pending(ctx context.Context) ([]daemon.JobView, error) {
	jobs, err := a.gate.Pending(ctx)
	if err != nil {
		return nil, err
	}
	return views(jobs), nil
}

func (a *storeJobs) Approve(ctx context.Context, id, reviewer, note string) (*daemon.JobView, error) {
	return viewOrErr(a.gate.Approve(ctx, id, reviewer, note))
}

func (a *storeJobs) Reject(ctx context.Context, id, reviewer, note string) (*daemon.JobView, error) {
	return viewOrErr(a.gate.Reject(ctx, id, reviewer, note))
}

func (a *storeJobs) Reprocess(ctx context.Context, id string) (*daemon.JobView, error) {
	return viewOrErr(a.gate.Reprocess(ctx, id))
}

func (a *storeJobs) AddIdea(ctx context.Context, idea string) (*daemon.JobView, bool, error) {
	job, created, err := a.ingest.IngestIdea(ctx, idea)
	if err != nil {
		return nil, false, err
	}
	return view(job), created, nil
}

func (a *storeJobs) AddFile(ctx context.Context, path string, kind queue.SourceKind) (*daemon.JobView, bool, error) {
	job, created, err := a.ingest.IngestFile(ctx, path, kind)
	if err != nil {
		return nil, false, err
	}
	return view(job), created, nil
}

func view(job *queue.Job) *daemon.JobView {
	v := daemon.NewJobView(job)
	return &v
}

func views(jobs []*queue.Job) []daemon.JobView {
	out := make([]daemon.JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, daemon.NewJobView(job))
	}
	return out
}

func viewOrErr(job *queue.Job, err error) (*daemon.JobView, error) {
	if err != nil {
		return nil, err
	}
	return view(job), nil
}
