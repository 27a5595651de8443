package media

import (
	"context"
	"fmt"

	"shortsfactory/internal/config"
	"shortsfactory/internal/fileutil"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
)

// ClipExtractor produces a clip within the configured duration bounds.
// Sources that already fit are re-encoded whole; longer sources are cut to
// max_duration around their midpoint. Ideas get a silent placeholder of
// min_duration.
type ClipExtractor struct {
	base
}

// NewClipExtractor constructs the CUTTING-state provider.
func NewClipExtractor(cfg *config.Config, tools *Tools) *ClipExtractor {
	return &ClipExtractor{base{name: "clip-extractor", cfg: cfg, tools: tools}}
}

// HealthCheck verifies ffmpeg and ffprobe are installed.
func (p *ClipExtractor) HealthCheck(context.Context) stage.Health {
	return p.toolHealth(p.tools.FFmpeg, p.tools.FFprobe)
}

// Run writes storage/cuts/<id>.mp4.
func (p *ClipExtractor) Run(ctx context.Context, req stage.Request) (stage.Result, error) {
	job := req.Job
	out := p.output("cuts", job.ID, ".mp4")
	minDur := float64(p.cfg.Video.MinDuration)
	maxDur := float64(p.cfg.Video.MaxDuration)

	var (
		args     []string
		duration float64
	)
	if job.SourceKind == queue.SourceTextIdea {
		duration = minDur
		args = []string{
			"-f", "lavfi", "-i", fmt.Sprintf("color=c=black:s=%s:r=%d:d=%s", videoSize(p.cfg), p.cfg.Video.FPS, seconds(duration)),
			"-f", "lavfi", "-i", "anullsrc=r=44100:cl=stereo",
			"-t", seconds(duration),
			"-shortest",
		}
	} else {
		origin := req.Artifact(queue.ArtifactOrigin)
		probe, err := p.tools.Probe(ctx, origin)
		if err != nil {
			return stage.Result{}, stage.Failed(p.name, "probe", "", err)
		}
		total := probe.DurationSeconds()
		switch {
		case total <= 0:
			return stage.Result{}, stage.Failed(p.name, "probe", "source reports no duration", nil)
		case total < minDur:
			return stage.Result{}, stage.Fatal(p.name, "cut", fmt.Sprintf("source is %.1fs, shorter than min_duration %ds", total, p.cfg.Video.MinDuration), nil)
		case total <= maxDur:
			duration = total
			args = []string{"-i", origin}
		default:
			duration = maxDur
			start := (total - maxDur) / 2
			args = []string{"-ss", seconds(start), "-i", origin, "-t", seconds(maxDur)}
		}
		p.log().Debug("cut window chosen",
			logging.Float64("source_seconds", total),
			logging.Float64("clip_seconds", duration),
		)
	}

	args = append(args, encodeArgs(p.cfg)...)
	args = append(args, out)
	if err := p.tools.Transcode(ctx, args...); err != nil {
		return stage.Result{}, stage.Failed(p.name, "cut", "", err)
	}
	if !fileutil.Exists(out) {
		return stage.Result{}, stage.Failed(p.name, "cut", "ffmpeg produced no output", nil)
	}

	result := stage.WithArtifact(queue.ArtifactCut, out)
	result.Details = &queue.Details{DurationSeconds: duration}
	return result, nil
}
