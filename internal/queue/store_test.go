package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"shortsfactory/internal/queue"
	"shortsfactory/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("missing tables: %v", health.MissingTables)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("unexpected schema version %d", health.SchemaVersion)
	}
	if store.Path() != cfg.DatabasePath() {
		t.Fatalf("unexpected store path %q", store.Path())
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	for _, stmt := range []string{
		"CREATE TABLE schema_version (version INTEGER NOT NULL)",
		"INSERT INTO schema_version (version) VALUES (99)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	_ = db.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestReopenKeepsJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	job := testsupport.MustIngestIdea(t, store, "cats that surf")
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	fetched, err := reopened.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.SourceIdea != "cats that surf" {
		t.Fatalf("unexpected job after reopen: %#v", fetched)
	}
}

func TestIngestCreatesJobInNew(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.MustIngestFile(t, store, cfg, "talk.mp4")
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.State != queue.StateNew || job.AttemptCount != 0 {
		t.Fatalf("unexpected initial job: %+v", job)
	}
	if len(job.Artifacts.Present()) != 0 {
		t.Fatalf("expected no artifacts, got %v", job.Artifacts.Present())
	}
	if job.CreatedAt.IsZero() || job.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC created_at, got %v", job.CreatedAt)
	}

	history, err := store.History(ctx, job.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Action != queue.ActionJobCreated || history[0].ToState != queue.StateNew {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestIngestIsIdempotentOnSourceRef(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	path := filepath.Join(cfg.ClipInbox(), "clip.mov")
	req := queue.IngestRequest{Kind: queue.SourcePreCutClip, SourceRef: path, SourcePath: path}
	first, created, err := store.Ingest(ctx, req)
	if err != nil || !created {
		t.Fatalf("first Ingest: created=%v err=%v", created, err)
	}
	second, created, err := store.Ingest(ctx, req)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if created {
		t.Fatal("expected duplicate ingest to report created=false")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing job %s, got %s", first.ID, second.ID)
	}
	history, err := store.History(ctx, first.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected a single JOB_CREATED entry, got %d", len(history))
	}
}

func TestIngestValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []queue.IngestRequest{
		{Kind: "podcast", SourceRef: "x", SourcePath: "/x"},
		{Kind: queue.SourceRawMedia, SourcePath: "/x"},
		{Kind: queue.SourceRawMedia, SourceRef: "x"},
		{Kind: queue.SourceTextIdea, SourceRef: "idea:x", Idea: "   "},
	}
	for _, req := range cases {
		if _, _, err := store.Ingest(ctx, req); err == nil {
			t.Fatalf("expected Ingest(%+v) to fail", req)
		}
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.GetByID(context.Background(), "01UNKNOWN")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %+v", job)
	}
}

func TestListByStateOrdering(t *testing.T) {
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	ctx := context.Background()

	a := testsupport.MustIngestIdea(t, store, "first")
	clock.Advance(time.Second)
	b := testsupport.MustIngestIdea(t, store, "second")
	clock.Advance(time.Second)
	c := testsupport.MustIngestIdea(t, store, "third")
	testsupport.DriveTo(t, store, b.ID, queue.StateCutting)

	fresh, err := store.ListByState(ctx, queue.StateNew)
	if err != nil {
		t.Fatalf("ListByState failed: %v", err)
	}
	if len(fresh) != 2 || fresh[0].ID != a.ID || fresh[1].ID != c.ID {
		t.Fatalf("unexpected NEW jobs: %v", jobIDs(fresh))
	}

	all, err := store.ListByState(ctx)
	if err != nil {
		t.Fatalf("ListByState failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != a.ID || all[1].ID != b.ID {
		t.Fatalf("unexpected full listing: %v", jobIDs(all))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StateNew] != 2 || stats[queue.StateCutting] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestHealthSummaryGroups(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustIngestIdea(t, store, "one")
	review := testsupport.MustIngestIdea(t, store, "two")
	published := testsupport.MustIngestIdea(t, store, "three")
	testsupport.DriveTo(t, store, review.ID, queue.StateAwaitingReview)
	testsupport.DriveTo(t, store, published.ID, queue.StatePublished)

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.InPipeline != 1 || health.AwaitingReview != 1 || health.Published != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}

func TestAppendLogRejectsTransitionEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.AppendLog(ctx, queue.Entry{Action: queue.ActionDaemonStarted, Success: true}); err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}
	err := store.AppendLog(ctx, queue.Entry{Action: queue.ActionStateChange, ToState: queue.StateApproved})
	if err == nil {
		t.Fatal("expected transition-shaped entry to be refused")
	}
	recent, err := store.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActivity failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Action != queue.ActionDaemonStarted || recent[0].JobID != "" {
		t.Fatalf("unexpected recent activity: %+v", recent)
	}
}

func TestGetByIDAfterAdvanceRoundTripsFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.MustIngestIdea(t, store, "round trip")
	job = testsupport.DriveTo(t, store, job.ID, queue.StateMetadata)

	claimed, err := store.Claim(ctx, job.ID, queue.StateMetadata, "meta-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	_, err = store.Advance(ctx, queue.Transition{
		JobID:     claimed.ID,
		From:      queue.StateMetadata,
		Event:     queue.EventComplete,
		Owner:     "meta-1",
		Artifacts: map[queue.Artifact]string{queue.ArtifactMetadata: "/m.json"},
		Details: &queue.Details{
			Title:           "Round Trip",
			Description:     "desc",
			Hashtags:        []string{"#Shorts", "#Viral"},
			DurationSeconds: 21.5,
		},
	})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Details.Title != "Round Trip" || len(fetched.Details.Hashtags) != 2 || fetched.Details.DurationSeconds != 21.5 {
		t.Fatalf("unexpected details: %+v", fetched.Details)
	}
	if fetched.Artifacts.Metadata != "/m.json" || fetched.State != queue.StateRendering {
		t.Fatalf("unexpected job after metadata: %+v", fetched)
	}
	if fetched.IsClaimed() {
		t.Fatal("expected claim to be cleared by transition")
	}
}

func jobIDs(jobs []*queue.Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids
}
