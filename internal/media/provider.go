package media

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shortsfactory/internal/config"
	"shortsfactory/internal/deps"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
)

// base carries what every media provider shares. A provider instance is
// owned by a single worker lane, so SetLogger needs no locking.
type base struct {
	name   string
	cfg    *config.Config
	tools  *Tools
	logger *slog.Logger
}

func (b *base) Name() string { return b.name }

func (b *base) SetLogger(logger *slog.Logger) { b.logger = logger }

func (b *base) log() *slog.Logger {
	if b.logger == nil {
		return logging.NewNop()
	}
	return b.logger
}

// toolHealth reports unhealthy when any of the named binaries is missing.
func (b *base) toolHealth(commands ...string) stage.Health {
	reqs := make([]deps.Requirement, 0, len(commands))
	for _, cmd := range commands {
		reqs = append(reqs, deps.Requirement{Name: cmd, Command: cmd})
	}
	if missing := deps.Missing(deps.CheckBinaries(reqs)); len(missing) > 0 {
		return stage.Unhealthy(b.name, missing[0].Detail)
	}
	return stage.Healthy(b.name)
}

// output returns storage/<kind>/<jobID><ext>, creating the directory. A
// mkdir failure surfaces when the tool writes the file.
func (b *base) output(kind, jobID, ext string) string {
	dir := b.cfg.StoragePath(kind)
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, jobID+ext)
}

func (b *base) HealthCheck(context.Context) stage.Health {
	return b.toolHealth(b.tools.FFmpeg)
}

// sourceText is the human text a job is about: the idea, the stored title,
// or the source file name with separators turned into spaces.
func sourceText(job *queue.Job) string {
	if idea := strings.TrimSpace(job.SourceIdea); idea != "" {
		return idea
	}
	if title := strings.TrimSpace(job.Details.Title); title != "" {
		return title
	}
	if job.SourcePath != "" {
		name := strings.TrimSuffix(filepath.Base(job.SourcePath), filepath.Ext(job.SourcePath))
		name = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
		if name = strings.Join(strings.Fields(name), " "); name != "" {
			return name
		}
	}
	return job.ID
}
