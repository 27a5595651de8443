package daemon

import (
	"time"

	"shortsfactory/internal/queue"
)

// JobView is the JSON shape of a job on the API.
type JobView struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	SourceKind   queue.SourceKind    `json:"source_kind"`
	SourceRef    string              `json:"source_ref"`
	SourcePath   string              `json:"source_path,omitempty"`
	SourceIdea   string              `json:"source_idea,omitempty"`
	State        queue.State         `json:"state"`
	AttemptCount int                 `json:"attempt_count"`
	ErrorMessage string              `json:"error_message,omitempty"`
	ClaimOwner   string              `json:"claim_owner,omitempty"`
	ClaimedAt    *time.Time          `json:"claimed_at,omitempty"`
	RetryAfter   *time.Time          `json:"retry_after,omitempty"`
	Artifacts    queue.Artifacts     `json:"artifacts"`
	Details      queue.Details       `json:"details"`
	Review       queue.Review        `json:"review"`
	Publish      queue.PublishRecord `json:"publish"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewJobView converts a job for the API.
func NewJobView(job *queue.Job) JobView {
	return JobView{
		ID:           job.ID,
		Title:        job.DisplayTitle(),
		SourceKind:   job.SourceKind,
		SourceRef:    job.SourceRef,
		SourcePath:   job.SourcePath,
		SourceIdea:   job.SourceIdea,
		State:        job.State,
		AttemptCount: job.AttemptCount,
		ErrorMessage: job.ErrorMessage,
		ClaimOwner:   job.ClaimOwner,
		ClaimedAt:    job.ClaimedAt,
		RetryAfter:   job.RetryAfter,
		Artifacts:    job.Artifacts,
		Details:      job.Details,
		Review:       job.Review,
		Publish:      job.Publish,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func jobViews(jobs []*queue.Job) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, NewJobView(job))
	}
	return out
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job     JobView `json:"job"`
	Created *bool   `json:"created,omitempty"`
}

// HistoryResponse wraps activity log entries.
type HistoryResponse struct {
	Entries []queue.Entry `json:"entries"`
}

// DecisionRequest is the body of approve and reject calls.
type DecisionRequest struct {
	Reviewer string `json:"reviewer"`
	Note     string `json:"note"`
}

// IdeaRequest is the body of POST /api/ideas.
type IdeaRequest struct {
	Idea string `json:"idea"`
}

// FileRequest is the body of POST /api/files. Kind defaults to raw_media.
type FileRequest struct {
	Path string `json:"path"`
	Kind string `json:"kind,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
