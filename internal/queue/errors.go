package queue

import "errors"

var (
	// ErrConflict reports that a conditional update matched no row because the
	// job changed state or ownership since it was read.
	ErrConflict = errors.New("job conflict")

	// ErrInvalidTransition reports an event that the state machine does not
	// allow from the job's current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound reports an unknown job identifier.
	ErrNotFound = errors.New("job not found")

	// ErrArtifactOrder reports an artifact write that would break the
	// produced-before-current-state rule.
	ErrArtifactOrder = errors.New("artifact order violation")
)
