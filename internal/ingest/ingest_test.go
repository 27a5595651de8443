package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shortsfactory/internal/config"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/services"
	"shortsfactory/internal/testsupport"
)

type countingObserver struct {
	mu    sync.Mutex
	kinds map[string]int
}

func (o *countingObserver) ObserveIngest(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.kinds == nil {
		o.kinds = make(map[string]int)
	}
	o.kinds[kind]++
}

func (o *countingObserver) count(kind queue.SourceKind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.kinds[string(kind)]
}

func newService(t *testing.T) (*Service, *queue.Store, *config.Config, *countingObserver) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	obs := &countingObserver{}
	return NewService(store, cfg, logging.NewNop(), WithObserver(obs)), store, cfg, obs
}

func TestFilters(t *testing.T) {
	for _, path := range []string{"a.tmp", "clip.mp4.part", "x.crdownload", ".hidden.mp4"} {
		if !IsTempFile(path) {
			t.Fatalf("expected %s to be temporary", path)
		}
	}
	if IsTempFile("holiday.mp4") {
		t.Fatal("holiday.mp4 is not temporary")
	}
	for _, path := range []string{"a.MP4", "b.mov", "c.webm", "d.mkv"} {
		if !IsVideoFile(path) {
			t.Fatalf("expected %s to be video", path)
		}
	}
	if IsVideoFile("notes.txt") {
		t.Fatal("notes.txt is not video")
	}
	ideas := ParseIdeas([]byte("# header\n\n  first idea \n#skip\nsecond\n"))
	if len(ideas) != 2 || ideas[0] != "first idea" || ideas[1] != "second" {
		t.Fatalf("unexpected ideas %q", ideas)
	}
}

func TestIngestFileIsIdempotent(t *testing.T) {
	svc, _, cfg, obs := newService(t)
	path := filepath.Join(cfg.LongVideoInbox(), "talk.mp4")
	testsupport.WriteFile(t, path, 512)

	first, created, err := svc.IngestFile(context.Background(), path, queue.SourceRawMedia)
	if err != nil || !created {
		t.Fatalf("first ingest: created=%v err=%v", created, err)
	}
	second, created, err := svc.IngestFile(context.Background(), path, queue.SourceRawMedia)
	if err != nil || created {
		t.Fatalf("second ingest: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same job, got %s and %s", first.ID, second.ID)
	}
	if obs.count(queue.SourceRawMedia) != 1 {
		t.Fatalf("expected one ingest observation, got %d", obs.count(queue.SourceRawMedia))
	}
	if first.State != queue.StateNew || first.SourceRef != path {
		t.Fatalf("unexpected job %+v", first)
	}
}

func TestIngestFileValidation(t *testing.T) {
	svc, _, cfg, _ := newService(t)
	notes := filepath.Join(cfg.LongVideoInbox(), "notes.txt")
	testsupport.WriteText(t, notes, "x")

	if _, _, err := svc.IngestFile(context.Background(), notes, queue.SourceRawMedia); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	missing := filepath.Join(cfg.LongVideoInbox(), "missing.mp4")
	if _, _, err := svc.IngestFile(context.Background(), missing, queue.SourceRawMedia); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := svc.IngestFile(context.Background(), notes, queue.SourceTextIdea); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for idea kind, got %v", err)
	}
}

func TestIngestIdeaCollapsesWhitespace(t *testing.T) {
	svc, _, _, obs := newService(t)
	first, created, err := svc.IngestIdea(context.Background(), "cats  learn\tto surf")
	if err != nil || !created {
		t.Fatalf("IngestIdea: created=%v err=%v", created, err)
	}
	second, created, err := svc.IngestIdea(context.Background(), " cats learn to surf ")
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("expected duplicate idea to map to %s, got created=%v err=%v", first.ID, created, err)
	}
	if first.SourceRef != queue.IdeaRef("cats learn to surf") || first.SourceIdea != "cats learn to surf" {
		t.Fatalf("unexpected idea job %+v", first)
	}
	if _, _, err := svc.IngestIdea(context.Background(), "   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if obs.count(queue.SourceTextIdea) != 1 {
		t.Fatalf("expected one idea observation, got %d", obs.count(queue.SourceTextIdea))
	}
}

func TestScanIngestsInbox(t *testing.T) {
	svc, store, cfg, _ := newService(t)
	if err := svc.PrepareInbox(); err != nil {
		t.Fatalf("PrepareInbox: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(cfg.LongVideoInbox(), "long.mkv"), 64)
	testsupport.WriteFile(t, filepath.Join(cfg.LongVideoInbox(), "long.mkv.part"), 64)
	testsupport.WriteFile(t, filepath.Join(cfg.ClipInbox(), "clip.mov"), 64)
	testsupport.WriteText(t, filepath.Join(cfg.ClipInbox(), "readme.txt"), "x")
	testsupport.WriteText(t, cfg.IdeasFile(), "# ideas\nsurfing cats\n\ndancing dogs\n")

	n, err := svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 jobs, got %d", n)
	}
	again, err := svc.Scan(context.Background())
	if err != nil || again != 0 {
		t.Fatalf("rescan should create nothing, got %d (%v)", again, err)
	}

	clip, err := store.FindBySourceRef(context.Background(), filepath.Join(cfg.ClipInbox(), "clip.mov"))
	if err != nil || clip == nil {
		t.Fatalf("FindBySourceRef: %v", err)
	}
	if clip.SourceKind != queue.SourcePreCutClip {
		t.Fatalf("expected pre-cut clip, got %s", clip.SourceKind)
	}
}

func TestPrepareInboxKeepsExistingIdeas(t *testing.T) {
	svc, _, cfg, _ := newService(t)
	testsupport.WriteText(t, cfg.IdeasFile(), "keep me\n")
	if err := svc.PrepareInbox(); err != nil {
		t.Fatalf("PrepareInbox: %v", err)
	}
	if got := testsupport.ReadText(t, cfg.IdeasFile()); got != "keep me\n" {
		t.Fatalf("ideas file overwritten: %q", got)
	}
	if _, err := os.Stat(cfg.ClipInbox()); err != nil {
		t.Fatalf("clip inbox missing: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcherIngestsNewFiles(t *testing.T) {
	svc, store, cfg, _ := newService(t)
	cfg.Ingest.SettleSeconds = 0
	existing := filepath.Join(cfg.LongVideoInbox(), "existing.mp4")
	testsupport.WriteFile(t, existing, 64)

	w := NewWatcher(svc)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	if !w.Running() {
		t.Fatal("expected watcher to be running")
	}

	find := func(ref string) func() bool {
		return func() bool {
			job, err := store.FindBySourceRef(context.Background(), ref)
			return err == nil && job != nil
		}
	}
	waitFor(t, "initial scan", find(existing))

	fresh := filepath.Join(cfg.ClipInbox(), "fresh.webm")
	testsupport.WriteFile(t, fresh, 64)
	waitFor(t, "new clip", find(fresh))

	testsupport.WriteText(t, cfg.IdeasFile(), "# ideas\nwatched idea\n")
	waitFor(t, "new idea", find(queue.IdeaRef("watched idea")))

	partial := filepath.Join(cfg.ClipInbox(), "partial.mp4.crdownload")
	testsupport.WriteFile(t, partial, 64)
	time.Sleep(200 * time.Millisecond)
	if job, _ := store.FindBySourceRef(context.Background(), partial); job != nil {
		t.Fatal("temporary file should not be ingested")
	}

	w.Stop()
	if w.Running() {
		t.Fatal("expected watcher to stop")
	}
}
