package projections

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/ledger"
	"github.com/Bikxs/skafu-core/metrics"
	"github.com/Bikxs/skafu-core/utils"
)

// Engine drives one consumer's handlers with exactly-once effects on top of
// at-least-once delivery. Every event passes through the idempotency ledger
// before and after its handler runs.
type Engine struct {
	consumerID string
	registry   *Registry
	ledger     ledger.Ledger
	faults     faults.Recorder
}

// NewEngine wires a registry to the idempotency ledger under a stable
// consumer id
func NewEngine(consumerID string, registry *Registry, ldg ledger.Ledger, recorder faults.Recorder) *Engine {
	return &Engine{
		consumerID: consumerID,
		registry:   registry,
		ledger:     ldg,
		faults:     recorder,
	}
}

// ConsumerID returns the stable consumer identity used in the ledger
func (e *Engine) ConsumerID() string {
	return e.consumerID
}

// HandleEvent processes one delivered event. Duplicates of completed events
// are acknowledged without side effects; in-flight duplicates are left
// redeliverable.
func (e *Engine) HandleEvent(ctx context.Context, event domain.Event) error {
	result, err := e.ledger.TryBegin(ctx, event.EventID, e.consumerID)
	if err != nil {
		return fmt.Errorf("failed to begin %s for %s: %w", event.EventID, e.consumerID, err)
	}

	switch result {
	case ledger.AlreadyCompleted:
		log.Debug().
			Str("consumer", e.consumerID).
			Str("eventId", event.EventID).
			Msg("Skipping already processed event")
		metrics.ProjectionEvent(e.consumerID, "duplicate")
		return nil

	case ledger.InProgressElsewhere:
		return fmt.Errorf("event %s is in progress for %s", event.EventID, e.consumerID)
	}

	handler, err := e.registry.HandlerFor(event.EventType)
	if err != nil {
		e.fail(ctx, event, err)
		return err
	}

	if err := handler(ctx, event); err != nil {
		e.fail(ctx, event, err)
		return fmt.Errorf("consumer %s failed on event %s: %w", e.consumerID, event.EventID, err)
	}

	hash, err := utils.ResultHash(event.EventID, e.consumerID, event.SequenceNumber)
	if err != nil {
		hash = ""
	}
	if err := e.ledger.Complete(ctx, event.EventID, e.consumerID, hash); err != nil {
		// The handler effects landed; returning the error would replay them.
		// Idempotent handlers make the replay safe, so surface it for retry.
		e.fail(ctx, event, err)
		return fmt.Errorf("failed to complete %s for %s: %w", event.EventID, e.consumerID, err)
	}

	metrics.ProjectionEvent(e.consumerID, "processed")
	return nil
}

func (e *Engine) fail(ctx context.Context, event domain.Event, cause error) {
	if err := e.ledger.Fail(ctx, event.EventID, e.consumerID, cause.Error()); err != nil {
		log.Warn().Err(err).
			Str("consumer", e.consumerID).
			Str("eventId", event.EventID).
			Msg("Failed to mark ledger entry failed")
	}

	metrics.ProjectionEvent(e.consumerID, "failed")

	if e.faults != nil {
		rec := faults.NewRecord(faults.ComponentProjection, event.CorrelationID,
			domain.CodeConsumerFailure, cause.Error(), true).
			WithContext("consumer_id", e.consumerID).
			WithContext("event_id", event.EventID).
			WithContext("event_type", event.EventType)
		e.faults.Record(ctx, rec)
	}
}
