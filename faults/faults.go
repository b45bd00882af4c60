package faults

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity levels for error records
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// Source component names used across the core
const (
	ComponentCommandProcessor = "command-processor"
	ComponentEventStore       = "event-store"
	ComponentProjection       = "projection-engine"
	ComponentSaga             = "saga-orchestrator"
	ComponentBus              = "event-bus"
)

// ErrorRecord is a write-once structured failure record, keyed by correlation
// id. Business logic never reads these; they exist for operator visibility
// and postmortem correlation.
type ErrorRecord struct {
	ErrorID         string            `json:"error_id"`
	CorrelationID   string            `json:"correlation_id"`
	SourceComponent string            `json:"source_component"`
	Severity        string            `json:"severity"`
	Code            string            `json:"code"`
	Message         string            `json:"message"`
	Context         map[string]string `json:"context,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
	Retryable       bool              `json:"retryable"`
}

// NewRecord builds an error record with generated id and timestamp
func NewRecord(component, correlationID, code, message string, retryable bool) ErrorRecord {
	severity := SeverityError
	if retryable {
		severity = SeverityWarning
	}

	return ErrorRecord{
		ErrorID:         uuid.New().String(),
		CorrelationID:   correlationID,
		SourceComponent: component,
		Severity:        severity,
		Code:            code,
		Message:         message,
		OccurredAt:      time.Now().UTC(),
		Retryable:       retryable,
	}
}

// WithContext attaches a context key/value pair
func (r ErrorRecord) WithContext(key, value string) ErrorRecord {
	if r.Context == nil {
		r.Context = make(map[string]string)
	}
	r.Context[key] = value
	return r
}

// WithSeverity overrides the severity derived from retryable
func (r ErrorRecord) WithSeverity(severity string) ErrorRecord {
	r.Severity = severity
	return r
}

// Recorder accepts error records fire-and-forget: Record never fails the
// caller's operation
type Recorder interface {
	Record(ctx context.Context, rec ErrorRecord)
}

// Filter narrows time-window queries
type Filter struct {
	SourceComponent string
	Severity        string
	Code            string
	Retryable       *bool
}

// Store is a queryable Recorder
type Store interface {
	Recorder
	QueryByCorrelation(ctx context.Context, correlationID string) ([]ErrorRecord, error)
	QueryByWindow(ctx context.Context, start, end time.Time, filter Filter) ([]ErrorRecord, error)
}
