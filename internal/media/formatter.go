package media

import (
	"context"
	"fmt"

	"shortsfactory/internal/config"
	"shortsfactory/internal/fileutil"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
)

// FormatConverter scales and crops the cut to the configured vertical frame.
type FormatConverter struct {
	base
}

// NewFormatConverter constructs the FORMATTING-state provider.
func NewFormatConverter(cfg *config.Config, tools *Tools) *FormatConverter {
	return &FormatConverter{base{name: "format-converter", cfg: cfg, tools: tools}}
}

// Run writes storage/formatted/<id>.mp4.
func (p *FormatConverter) Run(ctx context.Context, req stage.Request) (stage.Result, error) {
	out := p.output("formatted", req.Job.ID, ".mp4")
	args := []string{"-i", req.Artifact(queue.ArtifactCut), "-vf", verticalFilter(p.cfg)}
	args = append(args, encodeArgs(p.cfg)...)
	args = append(args, out)
	if err := p.tools.Transcode(ctx, args...); err != nil {
		return stage.Result{}, stage.Failed(p.name, "format", "", err)
	}
	if !fileutil.Exists(out) {
		return stage.Result{}, stage.Failed(p.name, "format", "ffmpeg produced no output", nil)
	}
	return stage.WithArtifact(queue.ArtifactFormatted, out), nil
}

// verticalFilter fills the frame and crops the overflow, so landscape
// sources keep their centre.
func verticalFilter(cfg *config.Config) string {
	w, h := cfg.Video.Width, cfg.Video.Height
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,fps=%d", w, h, w, h, cfg.Video.FPS)
}
