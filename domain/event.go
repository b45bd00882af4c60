package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var payloadCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Aggregate type names
const (
	AggregateProject  = "project"
	AggregateTemplate = "template"
)

// EventType constants
const (
	// Project events
	ProjectCreated             = "V1_PROJECT_CREATED"
	ProjectUpdated             = "V1_PROJECT_UPDATED"
	TemplateSelected           = "V1_PROJECT_TEMPLATE_SELECTED"
	TemplateSelectionCancelled = "V1_PROJECT_TEMPLATE_SELECTION_CANCELLED"
	RepositoryCreated          = "V1_PROJECT_REPOSITORY_CREATED"
	RepositoryCreationFailed   = "V1_PROJECT_REPOSITORY_CREATION_FAILED"
	AnalysisRequested          = "V1_PROJECT_ANALYSIS_REQUESTED"
	AnalysisCompleted          = "V1_PROJECT_ANALYSIS_COMPLETED"
	ProjectReady               = "V1_PROJECT_READY"
	ProjectArchived            = "V1_PROJECT_ARCHIVED"

	// Template events
	TemplateRegistered = "V1_TEMPLATE_REGISTERED"
	TemplateUpdated    = "V1_TEMPLATE_UPDATED"
	TemplatePublished  = "V1_TEMPLATE_PUBLISHED"
	TemplateDeprecated = "V1_TEMPLATE_DEPRECATED"
)

// Event is an immutable domain fact. SequenceNumber is zero until the event
// store commits it; within one aggregate stream sequence numbers are
// contiguous starting at 1.
type Event struct {
	EventID        string            `json:"event_id"`
	AggregateID    string            `json:"aggregate_id"`
	AggregateType  string            `json:"aggregate_type"`
	EventType      string            `json:"event_type"`
	SequenceNumber int64             `json:"sequence_number"`
	OccurredAt     time.Time         `json:"occurred_at"`
	CorrelationID  string            `json:"correlation_id"`
	CausationID    string            `json:"causation_id"`
	SchemaVersion  int               `json:"schema_version"`
	Payload        any               `json:"payload"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an uncommitted event for the given aggregate
func NewEvent(aggregateType, aggregateID, eventType string, payload any, correlationID, causationID string) Event {
	return Event{
		EventID:       uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
		CausationID:   causationID,
		SchemaVersion: 1,
		Payload:       payload,
	}
}

// Project event payloads

type ProjectCreatedPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
}

type ProjectUpdatedPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type TemplateSelectedPayload struct {
	TemplateID      string `json:"template_id"`
	TemplateVersion string `json:"template_version"`
}

type TemplateSelectionCancelledPayload struct {
	TemplateID string `json:"template_id"`
	Reason     string `json:"reason"`
}

type RepositoryCreatedPayload struct {
	Provider      string `json:"provider"`
	RepoURL       string `json:"repo_url"`
	DefaultBranch string `json:"default_branch"`
}

type RepositoryCreationFailedPayload struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

type AnalysisRequestedPayload struct {
	AnalysisID string `json:"analysis_id"`
	Model      string `json:"model"`
}

type AnalysisCompletedPayload struct {
	AnalysisID string  `json:"analysis_id"`
	Summary    string  `json:"summary"`
	Score      float64 `json:"score"`
}

type ProjectReadyPayload struct {
	Notes string `json:"notes"`
}

type ProjectArchivedPayload struct {
	Reason string `json:"reason"`
}

// Template event payloads

type TemplateRegisteredPayload struct {
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
	Framework string `json:"framework"`
}

type TemplateUpdatedPayload struct {
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
	Framework string `json:"framework"`
}

type TemplatePublishedPayload struct {
	Version string `json:"version"`
}

type TemplateDeprecatedPayload struct {
	Reason string `json:"reason"`
}

// payloadFactories is the static registration table from event type to payload
// constructor, built once at startup. Unregistered types are an explicit error.
var payloadFactories = map[string]func() any{
	ProjectCreated:             func() any { return &ProjectCreatedPayload{} },
	ProjectUpdated:             func() any { return &ProjectUpdatedPayload{} },
	TemplateSelected:           func() any { return &TemplateSelectedPayload{} },
	TemplateSelectionCancelled: func() any { return &TemplateSelectionCancelledPayload{} },
	RepositoryCreated:          func() any { return &RepositoryCreatedPayload{} },
	RepositoryCreationFailed:   func() any { return &RepositoryCreationFailedPayload{} },
	AnalysisRequested:          func() any { return &AnalysisRequestedPayload{} },
	AnalysisCompleted:          func() any { return &AnalysisCompletedPayload{} },
	ProjectReady:               func() any { return &ProjectReadyPayload{} },
	ProjectArchived:            func() any { return &ProjectArchivedPayload{} },
	TemplateRegistered:         func() any { return &TemplateRegisteredPayload{} },
	TemplateUpdated:            func() any { return &TemplateUpdatedPayload{} },
	TemplatePublished:          func() any { return &TemplatePublishedPayload{} },
	TemplateDeprecated:         func() any { return &TemplateDeprecatedPayload{} },
}

// KnownEventType reports whether an event type has a registered payload
func KnownEventType(eventType string) bool {
	_, ok := payloadFactories[eventType]
	return ok
}

// DecodePayload unmarshals raw payload bytes into the typed payload struct
// registered for the event type
func DecodePayload(eventType string, data []byte) (any, error) {
	factory, ok := payloadFactories[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	payload := factory()
	if len(data) > 0 {
		if err := payloadCodec.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", eventType, err)
		}
	}

	return payload, nil
}

// EncodePayload marshals a typed payload for storage or transport
func EncodePayload(payload any) ([]byte, error) {
	data, err := payloadCodec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}
