package media

import (
	"context"
	"path/filepath"
	"strings"

	"shortsfactory/internal/config"
	"shortsfactory/internal/fileutil"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/preflight"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
)

// Intake stages the job source under storage/originals. Media is copied with
// integrity verification; ideas are written as a text file.
type Intake struct {
	base
}

// NewIntake constructs the NEW-state provider.
func NewIntake(cfg *config.Config) *Intake {
	return &Intake{base{name: "intake", cfg: cfg}}
}

// HealthCheck verifies the originals directory is writable.
func (p *Intake) HealthCheck(context.Context) stage.Health {
	result := preflight.CheckDirectoryAccess("originals", p.cfg.StoragePath("originals"))
	if !result.Passed {
		return stage.Unhealthy(p.name, result.Detail)
	}
	return stage.Healthy(p.name)
}

// Run stages the source.
func (p *Intake) Run(_ context.Context, req stage.Request) (stage.Result, error) {
	job := req.Job
	if job.SourceKind == queue.SourceTextIdea {
		idea := strings.TrimSpace(job.SourceIdea)
		if idea == "" {
			return stage.Result{}, stage.Fatal(p.name, "stage idea", "idea text is empty", nil)
		}
		dst := p.output("originals", job.ID, ".txt")
		if err := fileutil.WriteFileAtomic(dst, []byte(idea+"\n"), 0o644); err != nil {
			return stage.Result{}, stage.Failed(p.name, "stage idea", "", err)
		}
		return stage.WithArtifact(queue.ArtifactOrigin, dst), nil
	}

	src := job.SourcePath
	if !fileutil.Exists(src) {
		return stage.Result{}, stage.Fatal(p.name, "stage media", "source file missing: "+src, nil)
	}
	dst := p.output("originals", job.ID, strings.ToLower(filepath.Ext(src)))
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return stage.Result{}, stage.Failed(p.name, "stage media", "", err)
	}
	p.log().Debug("source staged",
		logging.String("source", src),
		logging.String("origin", dst),
	)
	result := stage.WithArtifact(queue.ArtifactOrigin, dst)
	result.Note = "staged " + filepath.Base(src)
	return result, nil
}
