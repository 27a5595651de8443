package publish

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/minio/minio-go/v7"

	"shortsfactory/internal/config"
	"shortsfactory/internal/media"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
	"shortsfactory/internal/testsupport"
)

type fakeObjectStore struct {
	mu       sync.Mutex
	failures []error
	puts     []string
	opts     []minio.PutObjectOptions
	exists   bool
}

func (f *fakeObjectStore) FPutObject(_ context.Context, bucket, object, _ string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, bucket+"/"+object)
	f.opts = append(f.opts, opts)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return minio.UploadInfo{}, err
	}
	return minio.UploadInfo{Bucket: bucket, Key: object, VersionID: "v1"}, nil
}

func (f *fakeObjectStore) BucketExists(context.Context, string) (bool, error) {
	return f.exists, nil
}

func newTestS3(store *fakeObjectStore, cfg config.S3) *S3Backend {
	b := newS3Backend(store, cfg)
	b.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return b
}

func publishFixture(t *testing.T) (*config.Config, *queue.Job) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	final := filepath.Join(cfg.StoragePath("final"), "job1.mp4")
	testsupport.WriteFile(t, final, 4096)
	metaPath := filepath.Join(cfg.StoragePath("metadata"), "job1.json")
	testsupport.WriteText(t, metaPath, `{"job_id":"job1","title":"Cats Surfing","hashtags":["#shorts"],"privacy_status":"private","category_id":"22"}`)
	job := &queue.Job{ID: "job1", Artifacts: queue.Artifacts{Final: final, Metadata: metaPath}}
	return cfg, job
}

func TestUploaderStubBackend(t *testing.T) {
	cfg, job := publishFixture(t)
	uploader, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if h := uploader.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected healthy stub backend, got %+v", h)
	}

	res, err := uploader.Run(context.Background(), stage.Request{Job: job, Attempt: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Publish == nil || res.Publish.PlatformID != "local-job1" {
		t.Fatalf("unexpected publish record %+v", res.Publish)
	}
	published := filepath.Join(cfg.StoragePath("published"), "job1.mp4")
	if info, err := os.Stat(published); err != nil || info.Size() != 4096 {
		t.Fatalf("published copy missing: %v", err)
	}
	sidecar := testsupport.ReadText(t, filepath.Join(cfg.StoragePath("published"), "job1.json"))
	if !strings.Contains(sidecar, "Cats Surfing") {
		t.Fatalf("sidecar missing title: %s", sidecar)
	}
}

func TestUploaderMissingFinalIsPermanent(t *testing.T) {
	cfg, job := publishFixture(t)
	if err := os.Remove(job.Artifacts.Final); err != nil {
		t.Fatalf("remove: %v", err)
	}
	uploader, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = uploader.Run(context.Background(), stage.Request{Job: job, Attempt: 1})
	if !stage.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Publish.Backend = "carrier-pigeon"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestS3UploadRetriesServerErrors(t *testing.T) {
	_, job := publishFixture(t)
	store := &fakeObjectStore{failures: []error{
		minio.ErrorResponse{StatusCode: http.StatusServiceUnavailable, Code: "SlowDown"},
	}}
	backend := newTestS3(store, config.S3{Endpoint: "s3.example.invalid", Bucket: "clips", Prefix: "/shorts/", UseSSL: true})

	meta := media.MetadataPayload{Title: "Cats Surfing", PrivacyStatus: "private"}
	receipt, err := backend.Upload(context.Background(), Upload{JobID: job.ID, VideoPath: job.Artifacts.Final, Metadata: meta})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(store.puts) != 2 {
		t.Fatalf("expected one retry, got %d puts", len(store.puts))
	}
	if store.puts[1] != "clips/shorts/job1.mp4" {
		t.Fatalf("unexpected object %s", store.puts[1])
	}
	if store.opts[1].UserMetadata["title"] != "Cats Surfing" {
		t.Fatalf("title not sent as metadata: %+v", store.opts[1].UserMetadata)
	}
	if got := store.opts[1].ContentDisposition; got != `inline; filename="cats-surfing.mp4"` {
		t.Fatalf("unexpected content disposition %s", got)
	}
	if receipt.PlatformID != "s3:clips/shorts/job1.mp4@v1" {
		t.Fatalf("unexpected platform id %s", receipt.PlatformID)
	}
	if receipt.URL != "https://s3.example.invalid/clips/shorts/job1.mp4" {
		t.Fatalf("unexpected url %s", receipt.URL)
	}
}

func TestS3UploadStopsOnClientErrors(t *testing.T) {
	_, job := publishFixture(t)
	store := &fakeObjectStore{failures: []error{
		minio.ErrorResponse{StatusCode: http.StatusForbidden, Code: "AccessDenied"},
	}}
	backend := newTestS3(store, config.S3{Endpoint: "s3.example.invalid", Bucket: "clips", PublicURL: "https://cdn.example.invalid/"})

	_, err := backend.Upload(context.Background(), Upload{JobID: job.ID, VideoPath: job.Artifacts.Final})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.puts) != 1 {
		t.Fatalf("expected no retry on 403, got %d puts", len(store.puts))
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) || resp.Code != "AccessDenied" {
		t.Fatalf("expected wrapped minio error, got %v", err)
	}
}

func TestS3PublicURLAndCheck(t *testing.T) {
	store := &fakeObjectStore{}
	backend := newTestS3(store, config.S3{Endpoint: "minio:9000", Bucket: "clips", PublicURL: "https://cdn.example.invalid/"})
	if got := backend.objectURL("job.mp4"); got != "https://cdn.example.invalid/job.mp4" {
		t.Fatalf("unexpected url %s", got)
	}
	if err := backend.Check(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
	store.exists = true
	if err := backend.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
}
