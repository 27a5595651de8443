package testsupport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shortsfactory/internal/config"
	"shortsfactory/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustIngestFile creates a raw media job whose source file lives under the
// config's inbox.
func MustIngestFile(t testing.TB, store *queue.Store, cfg *config.Config, name string) *queue.Job {
	t.Helper()

	path := filepath.Join(cfg.LongVideoInbox(), name)
	WriteFile(t, path, 1024)
	job, _, err := store.Ingest(context.Background(), queue.IngestRequest{
		Kind:       queue.SourceRawMedia,
		SourceRef:  path,
		SourcePath: path,
	})
	if err != nil {
		t.Fatalf("store.Ingest: %v", err)
	}
	return job
}

// MustIngestIdea creates a text idea job.
func MustIngestIdea(t testing.TB, store *queue.Store, idea string) *queue.Job {
	t.Helper()

	job, _, err := store.Ingest(context.Background(), queue.IngestRequest{
		Kind:      queue.SourceTextIdea,
		SourceRef: queue.IdeaRef(idea),
		Idea:      idea,
	})
	if err != nil {
		t.Fatalf("store.Ingest: %v", err)
	}
	return job
}

// Clock is a manually advanced time source safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock pinned at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set pins the clock at t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}
