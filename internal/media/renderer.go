package media

import (
	"context"
	"fmt"
	"os"
	"strings"

	"shortsfactory/internal/config"
	"shortsfactory/internal/fileutil"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
)

// durationSlack absorbs container rounding when checking the output length.
const durationSlack = 0.5

// FinalRenderer burns the captions into the formatted clip and checks that
// the result still fits the duration bounds.
type FinalRenderer struct {
	base
}

// NewFinalRenderer constructs the RENDERING-state provider.
func NewFinalRenderer(cfg *config.Config, tools *Tools) *FinalRenderer {
	return &FinalRenderer{base{name: "final-renderer", cfg: cfg, tools: tools}}
}

// HealthCheck verifies ffmpeg and ffprobe are installed.
func (p *FinalRenderer) HealthCheck(context.Context) stage.Health {
	return p.toolHealth(p.tools.FFmpeg, p.tools.FFprobe)
}

// Run writes storage/final/<id>.mp4.
func (p *FinalRenderer) Run(ctx context.Context, req stage.Request) (stage.Result, error) {
	job := req.Job
	captions, err := ReadCaptions(req.Artifact(queue.ArtifactCaptions))
	if err != nil {
		return stage.Result{}, stage.Failed(p.name, "read captions", "", err)
	}

	out := p.output("final", job.ID, ".mp4")
	args := []string{"-i", req.Artifact(queue.ArtifactFormatted), "-vf", drawtextChain(captions.Segments, p.cfg.Video.FontFile)}
	args = append(args, encodeArgs(p.cfg)...)
	args = append(args, "-movflags", "+faststart", out)
	if err := p.tools.Transcode(ctx, args...); err != nil {
		return stage.Result{}, stage.Failed(p.name, "render", "", err)
	}
	if !fileutil.Exists(out) {
		return stage.Result{}, stage.Failed(p.name, "render", "ffmpeg produced no output", nil)
	}

	probe, err := p.tools.Probe(ctx, out)
	if err != nil {
		return stage.Result{}, stage.Failed(p.name, "verify", "", err)
	}
	duration := probe.DurationSeconds()
	minDur := float64(p.cfg.Video.MinDuration) - durationSlack
	maxDur := float64(p.cfg.Video.MaxDuration) + durationSlack
	if duration < minDur || duration > maxDur {
		_ = os.Remove(out)
		return stage.Result{}, stage.Fatal(p.name, "verify",
			fmt.Sprintf("rendered duration %.1fs outside %d-%ds", duration, p.cfg.Video.MinDuration, p.cfg.Video.MaxDuration), nil)
	}
	p.log().Debug("render verified", logging.Float64("duration_seconds", duration))

	result := stage.WithArtifact(queue.ArtifactFinal, out)
	result.Details = &queue.Details{DurationSeconds: duration}
	return result, nil
}

var drawtextEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `'`, "’")

// drawtextChain builds one drawtext filter per caption, each enabled only
// during its segment.
func drawtextChain(segments []CaptionSegment, fontFile string) string {
	if len(segments) == 0 {
		return "null"
	}
	font := ""
	if strings.TrimSpace(fontFile) != "" {
		font = fmt.Sprintf("fontfile='%s':", fontFile)
	}
	filters := make([]string, 0, len(segments))
	for _, seg := range segments {
		filters = append(filters, fmt.Sprintf(
			"drawtext=%stext='%s':fontsize=64:fontcolor=white:borderw=4:bordercolor=black:x=(w-text_w)/2:y=h*0.72:enable='between(t,%s,%s)'",
			font, drawtextEscaper.Replace(seg.Text), seconds(seg.Start), seconds(seg.End),
		))
	}
	return strings.Join(filters, ",")
}
