package domain

import (
	"fmt"
	"strings"
)

// ValidationError rejects a malformed catalog publish before anything
// becomes visible. It names the offending requirement ids so refusals are
// auditable, never a bare failure code.
type ValidationError struct {
	RequirementIDs []string
	Reason         string
}

func (e *ValidationError) Error() string {
	if len(e.RequirementIDs) == 0 {
		return fmt.Sprintf("catalog validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("catalog validation failed for requirements [%s]: %s",
		strings.Join(e.RequirementIDs, ", "), e.Reason)
}

// NotFoundError reports a missing resource, e.g. no active regulation
// version for a jurisdiction at a requested time.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// ThresholdNotMetError is the refusal to attest a non-compliant profile.
// It carries the requirement ids and outcomes responsible.
type ThresholdNotMetError struct {
	ProfileID    string
	Score        float64
	Threshold    float64
	Undetermined bool
	Failing      []RequirementOutcome
}

func (e *ThresholdNotMetError) Error() string {
	if e.Undetermined {
		return fmt.Sprintf("attestation refused for profile %s: evaluation is undetermined (no requirement applied)", e.ProfileID)
	}
	parts := make([]string, len(e.Failing))
	for i, f := range e.Failing {
		parts[i] = fmt.Sprintf("%s=%s", f.RequirementID, f.Outcome)
	}
	return fmt.Sprintf("attestation refused for profile %s: score %.2f below threshold %.2f; failing requirements [%s]",
		e.ProfileID, e.Score, e.Threshold, strings.Join(parts, ", "))
}

// SchedulingError reports worker-pool exhaustion or cancellation during
// bulk scoring. Retryable by the caller with backoff; never raised for an
// individual predicate outcome.
type SchedulingError struct {
	Cause error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scoring could not be scheduled: %v", e.Cause)
}

func (e *SchedulingError) Unwrap() error {
	return e.Cause
}
