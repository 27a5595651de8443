package media

import (
	"context"
	"strings"

	"shortsfactory/internal/config"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
)

const wordsPerCaption = 4

// CaptionGenerator writes a caption payload derived from the job text,
// spread evenly over the clip.
type CaptionGenerator struct {
	base
}

// NewCaptionGenerator constructs the CAPTIONING-state provider.
func NewCaptionGenerator(cfg *config.Config, tools *Tools) *CaptionGenerator {
	return &CaptionGenerator{base{name: "caption-generator", cfg: cfg, tools: tools}}
}

// HealthCheck verifies ffprobe is installed; it is needed when the duration
// was not recorded by the cutter.
func (p *CaptionGenerator) HealthCheck(context.Context) stage.Health {
	return p.toolHealth(p.tools.FFprobe)
}

// Run writes storage/captions/<id>.json.
func (p *CaptionGenerator) Run(ctx context.Context, req stage.Request) (stage.Result, error) {
	job := req.Job
	duration := job.Details.DurationSeconds
	if duration <= 0 {
		probe, err := p.tools.Probe(ctx, req.Artifact(queue.ArtifactFormatted))
		if err != nil {
			return stage.Result{}, stage.Failed(p.name, "probe", "", err)
		}
		duration = probe.DurationSeconds()
	}
	if duration <= 0 {
		return stage.Result{}, stage.Failed(p.name, "caption", "clip duration unknown", nil)
	}

	payload := CaptionPayload{
		JobID:    job.ID,
		Duration: duration,
		Segments: splitCaptions(sourceText(job), duration, wordsPerCaption),
	}
	out := p.output("captions", job.ID, ".json")
	if err := writeJSON(out, payload); err != nil {
		return stage.Result{}, stage.Failed(p.name, "caption", "", err)
	}
	return stage.WithArtifact(queue.ArtifactCaptions, out), nil
}

// splitCaptions groups words into lines of at most perLine words and gives
// each line an equal share of duration.
func splitCaptions(text string, duration float64, perLine int) []CaptionSegment {
	words := strings.Fields(text)
	if len(words) == 0 || duration <= 0 {
		return nil
	}
	var lines []string
	for start := 0; start < len(words); start += perLine {
		end := min(start+perLine, len(words))
		lines = append(lines, strings.Join(words[start:end], " "))
	}
	share := duration / float64(len(lines))
	segments := make([]CaptionSegment, 0, len(lines))
	for i, line := range lines {
		end := share * float64(i+1)
		if i == len(lines)-1 {
			end = duration
		}
		segments = append(segments, CaptionSegment{Start: share * float64(i), End: end, Text: line})
	}
	return segments
}
