package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shortsfactory/internal/config"
	"shortsfactory/internal/fileutil"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/media"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
)

// Upload is one clip handed to a backend.
type Upload struct {
	JobID     string
	VideoPath string
	Metadata  media.MetadataPayload
}

// Receipt identifies the published clip on the target platform.
type Receipt struct {
	PlatformID string
	URL        string
}

// Backend publishes a rendered clip.
type Backend interface {
	Name() string
	Upload(ctx context.Context, upload Upload) (Receipt, error)
	Check(ctx context.Context) error
}

// Uploader is the UPLOADING-state provider.
type Uploader struct {
	backend Backend
	logger  *slog.Logger
}

// NewUploader wraps backend.
func NewUploader(backend Backend) *Uploader {
	return &Uploader{backend: backend}
}

// New builds the uploader for the configured backend.
func New(cfg *config.Config) (*Uploader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Publish.Backend)) {
	case "", "stub":
		return NewUploader(NewStubBackend(cfg.StoragePath("published"))), nil
	case "s3":
		backend, err := NewS3Backend(cfg.Publish.S3)
		if err != nil {
			return nil, err
		}
		return NewUploader(backend), nil
	default:
		return nil, fmt.Errorf("unknown publish backend %q", cfg.Publish.Backend)
	}
}

// Name identifies the provider and its backend.
func (u *Uploader) Name() string { return "uploader-" + u.backend.Name() }

// SetLogger installs the job-scoped logger.
func (u *Uploader) SetLogger(logger *slog.Logger) { u.logger = logger }

// HealthCheck asks the backend whether it can accept uploads.
func (u *Uploader) HealthCheck(ctx context.Context) stage.Health {
	if err := u.backend.Check(ctx); err != nil {
		return stage.Unhealthy(u.Name(), err.Error())
	}
	return stage.Healthy(u.Name())
}

// Run publishes the final artifact.
func (u *Uploader) Run(ctx context.Context, req stage.Request) (stage.Result, error) {
	job := req.Job
	video := req.Artifact(queue.ArtifactFinal)
	if !fileutil.Exists(video) {
		return stage.Result{}, stage.Fatal(u.Name(), "upload", "final render missing: "+video, nil)
	}
	meta, err := media.ReadMetadata(req.Artifact(queue.ArtifactMetadata))
	if err != nil {
		return stage.Result{}, stage.Failed(u.Name(), "read metadata", "", err)
	}

	receipt, err := u.backend.Upload(ctx, Upload{JobID: job.ID, VideoPath: video, Metadata: meta})
	if err != nil {
		return stage.Result{}, stage.Failed(u.Name(), "upload", "", err)
	}
	if u.logger != nil {
		u.logger.Info("clip uploaded",
			logging.String(logging.FieldEventType, "clip_uploaded"),
			logging.String("platform_id", receipt.PlatformID),
			logging.String("url", receipt.URL),
		)
	}
	return stage.Result{
		Publish: &queue.PublishRecord{PlatformID: receipt.PlatformID, URL: receipt.URL},
		Note:    "published via " + u.backend.Name(),
	}, nil
}
