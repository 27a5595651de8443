package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"shortsfactory/internal/textutil"
)

// State represents the lifecycle position of a job.
type State string

const (
	StateNew            State = "NEW"
	StateCutting        State = "CUTTING"
	StateFormatting     State = "FORMATTING"
	StateCaptioning     State = "CAPTIONING"
	StateMetadata       State = "METADATA"
	StateRendering      State = "RENDERING"
	StateAwaitingReview State = "AWAITING_REVIEW"
	StateApproved       State = "APPROVED"
	StateRejected       State = "REJECTED"
	StateUploading      State = "UPLOADING"
	StatePublished      State = "PUBLISHED"
	StateFailed         State = "FAILED"
)

var allStates = []State{
	StateNew,
	StateCutting,
	StateFormatting,
	StateCaptioning,
	StateMetadata,
	StateRendering,
	StateAwaitingReview,
	StateApproved,
	StateRejected,
	StateUploading,
	StatePublished,
	StateFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns every known state in pipeline order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState normalizes user input into a known State.
func ParseState(value string) (State, bool) {
	state := State(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := stateSet[state]
	return state, ok
}

// Valid reports whether s is a member of the state set.
func (s State) Valid() bool {
	_, ok := stateSet[s]
	return ok
}

// Event names an input to the state machine.
type Event string

const (
	EventComplete  Event = "complete"
	EventApprove   Event = "approve"
	EventReject    Event = "reject"
	EventRelease   Event = "release"
	EventExhaust   Event = "exhaust"
	EventReprocess Event = "reprocess"
)

// SourceKind describes what a job was ingested from.
type SourceKind string

const (
	SourceRawMedia   SourceKind = "raw_media"
	SourcePreCutClip SourceKind = "pre_cut_clip"
	SourceTextIdea   SourceKind = "text_idea"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceRawMedia, SourcePreCutClip, SourceTextIdea:
		return true
	}
	return false
}

// IdeaRef returns the source reference for an idea: "idea:" followed by
// the hex SHA-256 of the whitespace-collapsed text.
func IdeaRef(text string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
	return "idea:" + hex.EncodeToString(sum[:])
}

// Artifact names one of the write-once outputs a job accumulates.
type Artifact string

const (
	ArtifactOrigin    Artifact = "origin"
	ArtifactCut       Artifact = "cut"
	ArtifactFormatted Artifact = "formatted"
	ArtifactCaptions  Artifact = "captions"
	ArtifactMetadata  Artifact = "metadata"
	ArtifactFinal     Artifact = "final"
)

var artifactOrder = []Artifact{
	ArtifactOrigin,
	ArtifactCut,
	ArtifactFormatted,
	ArtifactCaptions,
	ArtifactMetadata,
	ArtifactFinal,
}

// AllArtifacts returns the artifact kinds in pipeline order.
func AllArtifacts() []Artifact {
	return slices.Clone(artifactOrder)
}

// Artifacts holds references to the files a job produced so far.
type Artifacts struct {
	Origin    string `json:"origin,omitempty"`
	Cut       string `json:"cut,omitempty"`
	Formatted string `json:"formatted,omitempty"`
	Captions  string `json:"captions,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
	Final     string `json:"final,omitempty"`
}

// Get returns the reference stored for kind.
func (a Artifacts) Get(kind Artifact) string {
	switch kind {
	case ArtifactOrigin:
		return a.Origin
	case ArtifactCut:
		return a.Cut
	case ArtifactFormatted:
		return a.Formatted
	case ArtifactCaptions:
		return a.Captions
	case ArtifactMetadata:
		return a.Metadata
	case ArtifactFinal:
		return a.Final
	}
	return ""
}

// Set stores value for kind. It reports false for unknown kinds.
func (a *Artifacts) Set(kind Artifact, value string) bool {
	switch kind {
	case ArtifactOrigin:
		a.Origin = value
	case ArtifactCut:
		a.Cut = value
	case ArtifactFormatted:
		a.Formatted = value
	case ArtifactCaptions:
		a.Captions = value
	case ArtifactMetadata:
		a.Metadata = value
	case ArtifactFinal:
		a.Final = value
	default:
		return false
	}
	return true
}

// Present lists the kinds that hold a reference, in production order.
func (a Artifacts) Present() []Artifact {
	var out []Artifact
	for _, kind := range artifactOrder {
		if a.Get(kind) != "" {
			out = append(out, kind)
		}
	}
	return out
}

// Details carries the descriptive fields written by the cutting and metadata stages.
type Details struct {
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description,omitempty"`
	Hashtags        []string `json:"hashtags,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
}

// ReviewDecision records the human verdict at the review gate.
type ReviewDecision string

const (
	DecisionApproved ReviewDecision = "approved"
	DecisionRejected ReviewDecision = "rejected"
)

// Review captures who decided what at the review gate.
type Review struct {
	Decision  ReviewDecision `json:"decision,omitempty"`
	Reviewer  string         `json:"reviewer,omitempty"`
	Note      string         `json:"note,omitempty"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`
}

// PublishRecord captures the platform response for a published job.
type PublishRecord struct {
	PlatformID  string     `json:"platform_id,omitempty"`
	URL         string     `json:"url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Job represents a unit of content persisted in SQLite.
type Job struct {
	ID           string
	SourceKind   SourceKind
	SourceRef    string
	SourcePath   string
	SourceIdea   string
	State        State
	AttemptCount int
	ErrorMessage string
	ClaimOwner   string
	ClaimedAt    *time.Time
	RetryAfter   *time.Time
	Artifacts    Artifacts
	Details      Details
	Review       Review
	Publish      PublishRecord
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsClaimed reports whether any worker currently holds a lease on the job.
func (j *Job) IsClaimed() bool {
	return j != nil && j.ClaimOwner != ""
}

// DisplayTitle returns a short human label for the job.
func (j *Job) DisplayTitle() string {
	if j == nil {
		return ""
	}
	if t := strings.TrimSpace(j.Details.Title); t != "" {
		return t
	}
	if j.SourceIdea != "" {
		return textutil.Truncate(strings.TrimSpace(j.SourceIdea), 60)
	}
	if j.SourcePath != "" {
		return j.SourcePath
	}
	return j.ID
}

// Action classifies an activity log entry.
type Action string

const (
	ActionJobCreated      Action = "JOB_CREATED"
	ActionStateChange     Action = "STATE_CHANGE"
	ActionStageFailed     Action = "STAGE_FAILED"
	ActionClaimExpired    Action = "CLAIM_EXPIRED"
	ActionClaimReleased   Action = "CLAIM_RELEASED"
	ActionPublishDeferred Action = "PUBLISH_DEFERRED"
	ActionDaemonStarted   Action = "DAEMON_STARTED"
	ActionDaemonStopped   Action = "DAEMON_STOPPED"
)

// Entry is one append-only activity log record.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id,omitempty"`
	Action    Action    `json:"action"`
	FromState State     `json:"from_state,omitempty"`
	Event     Event     `json:"event,omitempty"`
	ToState   State     `json:"to_state,omitempty"`
	Details   string    `json:"details,omitempty"`
	Success   bool      `json:"success"`
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalJobs        int
	TotalEntries     int
	Error            string
}

// HealthSummary describes aggregated job counts per lifecycle group.
type HealthSummary struct {
	Total          int
	InPipeline     int
	AwaitingReview int
	Approved       int
	Uploading      int
	Published      int
	Rejected       int
	Failed         int
	Claimed        int
}
