package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across components
var (
	// ErrConcurrencyConflict is returned by the event store when the expected
	// sequence number does not match the current stream head. The caller
	// decides whether to reload and retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrUnknownEventType is returned when no payload type is registered for
	// an event type.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrUnknownCommandType is returned for commands with no registered
	// decision function.
	ErrUnknownCommandType = errors.New("unknown command type")

	// ErrCommandTimeout means the caller's deadline expired during conflict
	// retries. The command may or may not have succeeded.
	ErrCommandTimeout = errors.New("command outcome unknown: deadline exceeded")

	// ErrAggregateNotFound is returned when a command targets an aggregate
	// with an empty event stream.
	ErrAggregateNotFound = errors.New("aggregate not found")
)

// Stable error codes surfaced to callers and written to error records
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeBusinessRule        = "BUSINESS_RULE_VIOLATION"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeCommandTimeout      = "COMMAND_TIMEOUT"
	CodeNotFound            = "AGGREGATE_NOT_FOUND"
	CodeUnknownCommand      = "UNKNOWN_COMMAND_TYPE"
	CodeUnknownEvent        = "UNKNOWN_EVENT_TYPE"
	CodeConsumerFailure     = "CONSUMER_PROCESSING_FAILURE"
	CodeCompensationFailed  = "COMPENSATION_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

// ValidationError indicates a structurally malformed command. Not retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// BusinessRuleViolation indicates a well-formed command that is inapplicable
// to the aggregate's current state. Not retried.
type BusinessRuleViolation struct {
	Rule   string
	Reason string
}

func (e *BusinessRuleViolation) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Reason)
}

// IsRetryable reports whether a command error is safe to retry locally
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// ErrorCode maps a command error to its stable code
func ErrorCode(err error) string {
	var validationErr *ValidationError
	var ruleErr *BusinessRuleViolation

	switch {
	case errors.As(err, &validationErr):
		return CodeValidation
	case errors.As(err, &ruleErr):
		return CodeBusinessRule
	case errors.Is(err, ErrConcurrencyConflict):
		return CodeConcurrencyConflict
	case errors.Is(err, ErrCommandTimeout):
		return CodeCommandTimeout
	case errors.Is(err, ErrAggregateNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnknownCommandType):
		return CodeUnknownCommand
	case errors.Is(err, ErrUnknownEventType):
		return CodeUnknownEvent
	default:
		return CodeInternal
	}
}
