package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bikxs/skafu-core/domain"
)

// EventEnvelope is the wire shape of a committed event on the bus
type EventEnvelope struct {
	EventID        string            `json:"event_id"`
	AggregateID    string            `json:"aggregate_id"`
	AggregateType  string            `json:"aggregate_type"`
	EventType      string            `json:"event_type"`
	SequenceNumber int64             `json:"sequence_number"`
	OccurredAt     time.Time         `json:"occurred_at"`
	CorrelationID  string            `json:"correlation_id"`
	CausationID    string            `json:"causation_id"`
	SchemaVersion  int               `json:"schema_version"`
	Payload        json.RawMessage   `json:"payload"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Wrap converts a committed domain event to its wire envelope
func Wrap(event domain.Event) (EventEnvelope, error) {
	payload, err := domain.EncodePayload(event.Payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("failed to wrap event %s: %w", event.EventID, err)
	}

	return EventEnvelope{
		EventID:        event.EventID,
		AggregateID:    event.AggregateID,
		AggregateType:  event.AggregateType,
		EventType:      event.EventType,
		SequenceNumber: event.SequenceNumber,
		OccurredAt:     event.OccurredAt,
		CorrelationID:  event.CorrelationID,
		CausationID:    event.CausationID,
		SchemaVersion:  event.SchemaVersion,
		Payload:        payload,
		Metadata:       event.Metadata,
	}, nil
}

// Unwrap converts a wire envelope back to a typed domain event
func Unwrap(env EventEnvelope) (domain.Event, error) {
	payload, err := domain.DecodePayload(env.EventType, env.Payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to unwrap event %s: %w", env.EventID, err)
	}

	return domain.Event{
		EventID:        env.EventID,
		AggregateID:    env.AggregateID,
		AggregateType:  env.AggregateType,
		EventType:      env.EventType,
		SequenceNumber: env.SequenceNumber,
		OccurredAt:     env.OccurredAt,
		CorrelationID:  env.CorrelationID,
		CausationID:    env.CausationID,
		SchemaVersion:  env.SchemaVersion,
		Payload:        payload,
		Metadata:       env.Metadata,
	}, nil
}

// Publisher fans committed events out to independent consumers. Delivery is
// at-least-once; consumers are responsible for idempotent consumption.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// Consumer processes delivered events. Returning an error leaves the event
// redeliverable.
type Consumer interface {
	ConsumerID() string
	HandleEvent(ctx context.Context, event domain.Event) error
}

// CommandHandler is the command intake contract shared by the API boundary
// and the command queue consumer
type CommandHandler interface {
	Handle(ctx context.Context, cmd domain.Command) (*domain.CommandResult, error)
}
