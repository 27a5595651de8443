package queue

import "fmt"

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StateNew, EventComplete}:        StateCutting,
	{StateCutting, EventComplete}:    StateFormatting,
	{StateFormatting, EventComplete}: StateCaptioning,
	{StateCaptioning, EventComplete}: StateMetadata,
	{StateMetadata, EventComplete}:   StateRendering,
	{StateRendering, EventComplete}:  StateAwaitingReview,

	{StateAwaitingReview, EventApprove}: StateApproved,
	{StateAwaitingReview, EventReject}:  StateRejected,
	{StateApproved, EventRelease}:       StateUploading,
	{StateUploading, EventComplete}:     StatePublished,

	{StateNew, EventExhaust}:        StateFailed,
	{StateCutting, EventExhaust}:    StateFailed,
	{StateFormatting, EventExhaust}: StateFailed,
	{StateCaptioning, EventExhaust}: StateFailed,
	{StateMetadata, EventExhaust}:   StateFailed,
	{StateRendering, EventExhaust}:  StateFailed,
	{StateUploading, EventExhaust}:  StateFailed,

	{StateAwaitingReview, EventReprocess}: StateNew,
	{StateApproved, EventReprocess}:       StateNew,
	{StateRejected, EventReprocess}:       StateNew,
	{StateFailed, EventReprocess}:         StateNew,
}

// Next returns the destination of event applied in state from.
func Next(from State, event Event) (State, error) {
	to, ok := transitions[transitionKey{from: from, event: event}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// Allowed reports whether the triple is present in the transition table.
func Allowed(from State, event Event, to State) bool {
	dest, ok := transitions[transitionKey{from: from, event: event}]
	return ok && dest == to
}

// workerStates are the states a Worker may claim, in pipeline order.
var workerStates = []State{
	StateNew,
	StateCutting,
	StateFormatting,
	StateCaptioning,
	StateMetadata,
	StateRendering,
	StateUploading,
}

// WorkerStates returns the states that have an automated worker.
func WorkerStates() []State {
	out := make([]State, len(workerStates))
	copy(out, workerStates)
	return out
}

// WorkerBound reports whether jobs in s are processed by a worker.
func WorkerBound(s State) bool {
	for _, candidate := range workerStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automated path leaves s.
func (s State) IsTerminal() bool {
	switch s {
	case StatePublished, StateRejected, StateFailed:
		return true
	}
	return false
}

// producedBy maps each artifact to the state whose worker writes it.
var producedBy = map[Artifact]State{
	ArtifactOrigin:    StateNew,
	ArtifactCut:       StateCutting,
	ArtifactFormatted: StateFormatting,
	ArtifactCaptions:  StateCaptioning,
	ArtifactMetadata:  StateMetadata,
	ArtifactFinal:     StateRendering,
}

// ArtifactFor returns the artifact a worker in state s must produce.
func ArtifactFor(s State) (Artifact, bool) {
	for kind, state := range producedBy {
		if state == s {
			return kind, true
		}
	}
	return "", false
}

// pipelineRank orders the states along the happy path. FAILED has no rank:
// a job may fail with any prefix of artifacts.
var pipelineRank = map[State]int{
	StateNew:            0,
	StateCutting:        1,
	StateFormatting:     2,
	StateCaptioning:     3,
	StateMetadata:       4,
	StateRendering:      5,
	StateAwaitingReview: 6,
	StateApproved:       7,
	StateRejected:       7,
	StateUploading:      8,
	StatePublished:      9,
}

// CheckArtifacts verifies that artifacts holds nothing produced by state or
// a later stage, and that everything produced earlier is present.
func CheckArtifacts(state State, artifacts Artifacts) error {
	rank, ok := pipelineRank[state]
	if !ok {
		return nil
	}
	for _, kind := range artifactOrder {
		producer := pipelineRank[producedBy[kind]]
		present := artifacts.Get(kind) != ""
		switch {
		case producer >= rank && present:
			return fmt.Errorf("%w: %s artifact present in %s", ErrArtifactOrder, kind, state)
		case producer < rank && !present:
			return fmt.Errorf("%w: %s artifact missing in %s", ErrArtifactOrder, kind, state)
		}
	}
	return nil
}
