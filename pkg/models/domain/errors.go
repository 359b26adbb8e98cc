package domain

import (
	"errors"
	"fmt"
)

// ErrRateLimited rejects a submission whose repo bucket is depleted. The
// caller should back off and retry; no Run is created.
var ErrRateLimited = errors.New("rate limited")

// ErrRunNotFound is returned by read paths for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// ErrStorageUnavailable wraps transient storage failures. Callers retry
// with the same idempotency key; dedup makes the retry safe.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ValidationError marks a malformed envelope, rejected before any side
// effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid envelope: %s: %s", e.Field, e.Reason)
}

// PolicyConfigError marks a malformed severity policy. It is raised at
// policy load, never at decision time.
type PolicyConfigError struct {
	Reason string
}

func (e *PolicyConfigError) Error() string {
	return fmt.Sprintf("invalid severity policy: %s", e.Reason)
}
