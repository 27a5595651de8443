package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shortsfactory/internal/config"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/services"
)

const ideasFileHeader = "# Add your video ideas here, one per line\n"

// Observer counts created jobs. metrics.Recorder satisfies it.
type Observer interface {
	ObserveIngest(kind string)
}

// Service creates jobs from inbox content.
type Service struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	observer Observer
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver attaches an ingest counter.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService constructs a Service.
func NewService(store *queue.Store, cfg *config.Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		store:  store,
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "ingest")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestFile creates a job for a media file. The absolute path is the source
// reference, so the same file is only ever ingested once.
func (s *Service) IngestFile(ctx context.Context, path string, kind queue.SourceKind) (*queue.Job, bool, error) {
	if kind != queue.SourceRawMedia && kind != queue.SourcePreCutClip {
		return nil, false, services.Wrap(services.ErrValidation, "ingest", "file", fmt.Sprintf("kind %q is not a media kind", kind), nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, services.Wrap(services.ErrValidation, "ingest", "file", "resolve path", err)
	}
	if !IsVideoFile(abs) {
		return nil, false, services.Wrap(services.ErrValidation, "ingest", "file", "unsupported extension "+filepath.Ext(abs), nil)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, services.Wrap(services.ErrNotFound, "ingest", "file", abs, err)
		}
		return nil, false, services.Wrap(services.ErrTransient, "ingest", "file", abs, err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, services.Wrap(services.ErrValidation, "ingest", "file", abs+" is not a regular file", nil)
	}

	return s.create(ctx, queue.IngestRequest{Kind: kind, SourceRef: abs, SourcePath: abs})
}

// IngestIdea creates a job for idea text. Identical ideas (after whitespace
// collapsing) map to the same job.
func (s *Service) IngestIdea(ctx context.Context, text string) (*queue.Job, bool, error) {
	idea := strings.Join(strings.Fields(text), " ")
	if idea == "" {
		return nil, false, services.Wrap(services.ErrValidation, "ingest", "idea", "idea text is empty", nil)
	}
	return s.create(ctx, queue.IngestRequest{Kind: queue.SourceTextIdea, SourceRef: queue.IdeaRef(idea), Idea: idea})
}

func (s *Service) create(ctx context.Context, req queue.IngestRequest) (*queue.Job, bool, error) {
	job, created, err := s.store.Ingest(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if created {
		if s.observer != nil {
			s.observer.ObserveIngest(string(req.Kind))
		}
		s.logger.Info("job created",
			logging.String(logging.FieldEventType, "job_created"),
			logging.JobID(job.ID),
			logging.String("source_kind", string(req.Kind)),
			logging.String("source", job.DisplayTitle()),
		)
	}
	return job, created, nil
}

// KindFor maps an inbox path to its source kind.
func (s *Service) KindFor(path string) (queue.SourceKind, bool) {
	switch filepath.Clean(filepath.Dir(path)) {
	case filepath.Clean(s.cfg.LongVideoInbox()):
		return queue.SourceRawMedia, true
	case filepath.Clean(s.cfg.ClipInbox()):
		return queue.SourcePreCutClip, true
	}
	return "", false
}

// IngestIdeasFile creates a job for every idea line in path. It returns the
// number of new jobs.
func (s *Service) IngestIdeasFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ideas: %w", err)
	}
	created := 0
	for _, idea := range ParseIdeas(data) {
		_, ok, err := s.IngestIdea(ctx, idea)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// PrepareInbox creates the inbox directories and a commented ideas file.
func (s *Service) PrepareInbox() error {
	for _, dir := range []string{s.cfg.LongVideoInbox(), s.cfg.ClipInbox()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create inbox %s: %w", dir, err)
		}
	}
	ideas := s.cfg.IdeasFile()
	if _, err := os.Stat(ideas); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(ideas, []byte(ideasFileHeader), 0o644); err != nil {
			return fmt.Errorf("create ideas file: %w", err)
		}
	}
	return nil
}

// Scan ingests everything currently in the inbox. Files that fail are
// logged and skipped; the count covers new jobs only.
func (s *Service) Scan(ctx context.Context) (int, error) {
	created := 0
	for _, dir := range []string{s.cfg.LongVideoInbox(), s.cfg.ClipInbox()} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			ok, err := s.ingestInboxFile(ctx, path)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}
	n, err := s.IngestIdeasFile(ctx, s.cfg.IdeasFile())
	return created + n, err
}

// ingestInboxFile applies the inbox filters and ingests path. Validation
// problems are logged; store errors are returned.
func (s *Service) ingestInboxFile(ctx context.Context, path string) (bool, error) {
	if IsTempFile(path) {
		return false, nil
	}
	kind, ok := s.KindFor(path)
	if !ok {
		return false, nil
	}
	if !IsVideoFile(path) {
		s.logger.Debug("skipping non-video file", logging.String("path", path))
		return false, nil
	}
	_, created, err := s.IngestFile(ctx, path, kind)
	if err != nil {
		if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound) {
			logging.WarnWithContext(s.logger, "inbox file skipped", "ingest_skipped",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "only regular video files are ingested"),
			)
			return false, nil
		}
		return false, err
	}
	return created, nil
}
