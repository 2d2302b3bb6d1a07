package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the session store contract.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSectionNotFound = errors.New("knowledge base section not found")

	// ErrStaleCheckpoint means a conditional write lost the race. The caller
	// must reload the session and re-apply the transition; it is never
	// retried automatically.
	ErrStaleCheckpoint = errors.New("stale checkpoint version")
)

// PreconditionError rejects input that is not valid for the session's
// current state. Never retried; surfaced to the caller immediately.
type PreconditionError struct {
	Status Status
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed in status %q: %s", e.Status, e.Reason)
}

// UpstreamError wraps a delegated-service failure. Retryable failures
// (timeouts, transient 5xx) are absorbed by the stage runner's retry policy;
// terminal ones propagate to the state machine.
type UpstreamError struct {
	Stage     string
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s upstream failure in stage %q: %v", kind, e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether the stage runner may retry after err.
// Deadline expiry counts as retryable per the timeout policy.
func Retryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// SchemaError means the assembly output failed structural validation.
// Terminal for the stage: retrying an unchanged input against a
// deterministic validator is pointless.
type SchemaError struct {
	Stage      string
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation in stage %q: %v", e.Stage, e.Violations)
}
