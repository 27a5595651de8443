package media

import (
	"context"
	"strings"

	"shortsfactory/internal/config"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/stage"
	"shortsfactory/internal/textutil"
)

const (
	maxTitleRunes = 100
	maxHashtags   = 5
)

// MetadataGenerator derives title, description and hashtags from the job text.
type MetadataGenerator struct {
	base
}

// NewMetadataGenerator constructs the METADATA-state provider.
func NewMetadataGenerator(cfg *config.Config) *MetadataGenerator {
	return &MetadataGenerator{base{name: "metadata-generator", cfg: cfg}}
}

// HealthCheck always reports ready; the generator needs no external tools.
func (p *MetadataGenerator) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(p.name)
}

// Run writes storage/metadata/<id>.json and returns the details for the job.
func (p *MetadataGenerator) Run(_ context.Context, req stage.Request) (stage.Result, error) {
	job := req.Job
	seed := sourceText(job)
	title := textutil.Truncate(textutil.Title(seed), maxTitleRunes)
	hashtags := append([]string{"#shorts"}, textutil.Hashtags(seed, maxHashtags-1)...)

	description := seed
	if job.SourceKind != queue.SourceTextIdea {
		description = "Clip: " + title
	}
	description += "\n\n" + strings.Join(hashtags, " ")

	payload := MetadataPayload{
		JobID:         job.ID,
		Title:         title,
		Description:   description,
		Hashtags:      hashtags,
		PrivacyStatus: p.cfg.Publish.PrivacyStatus,
		CategoryID:    p.cfg.Publish.CategoryID,
	}
	out := p.output("metadata", job.ID, ".json")
	if err := writeJSON(out, payload); err != nil {
		return stage.Result{}, stage.Failed(p.name, "write metadata", "", err)
	}

	result := stage.WithArtifact(queue.ArtifactMetadata, out)
	result.Details = &queue.Details{Title: title, Description: description, Hashtags: hashtags}
	return result, nil
}
