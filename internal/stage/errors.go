package stage

import (
	"errors"
	"fmt"
	"strings"

	"shortsfactory/internal/services"
)

// ProviderError describes a failed provider run. It matches
// services.ErrProviderFailure and whatever cause it wraps.
type ProviderError struct {
	Provider  string
	Operation string
	Message   string
	// Permanent marks failures that retrying cannot fix, such as a missing
	// source file. Workers exhaust the job immediately.
	Permanent bool
	Err       error
}

func (e *ProviderError) Error() string {
	parts := make([]string, 0, 3)
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Operation != "" {
		parts = append(parts, e.Operation)
	}
	msg := strings.Join(parts, " ")
	if e.Message != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Message
	}
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if msg == "" {
		return services.ErrProviderFailure.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrProviderFailure}
	}
	return []error{services.ErrProviderFailure, e.Err}
}

// Failed builds a retryable ProviderError.
func Failed(provider, operation, message string, err error) error {
	return &ProviderError{Provider: provider, Operation: operation, Message: message, Err: err}
}

// Fatal builds a ProviderError that should not be retried.
func Fatal(provider, operation, message string, err error) error {
	return &ProviderError{Provider: provider, Operation: operation, Message: message, Permanent: true, Err: err}
}

// IsPermanent reports whether err carries a ProviderError marked permanent.
func IsPermanent(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Permanent
	}
	return false
}

// Describe returns the message stored on the job when a run fails.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return fmt.Sprintf("provider error: %v", err)
}
