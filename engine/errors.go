// Package engine implements the issue lifecycle and geospatial assignment
// engine: deadline policy, overdue evaluation, duplicate detection,
// nearest-authority assignment and the state machine tying them together.
// Persistence is consumed through the store interfaces in store.go.
package engine

import "fmt"

// ValidationError rejects malformed input (bad coordinates, unknown
// category/priority/status). It never mutates state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictCode identifies why a request was rejected so callers can show
// an actionable message.
type ConflictCode string

const (
	CodeAlreadyUpvoted    ConflictCode = "already_upvoted"
	CodeNotUpvoted        ConflictCode = "not_upvoted"
	CodeInvalidTransition ConflictCode = "invalid_transition"
	CodeNotTerminal       ConflictCode = "not_terminal"
	CodeNotReporter       ConflictCode = "not_reporter"
)

// ConflictError rejects a request that is well-formed but not permitted in
// the issue's current state. It never mutates state.
type ConflictError struct {
	Code   ConflictCode
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// DependencyError wraps a store failure. Retryable marks lost optimistic
// writes and timeouts the caller may retry; the engine never retries
// internally.
type DependencyError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
