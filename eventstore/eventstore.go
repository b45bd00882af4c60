package eventstore

import (
	"context"

	"github.com/Bikxs/skafu-core/domain"
)

// EventStore is the interface for the append-only event log. Each aggregate
// stream is its own consistency boundary; cross-aggregate appends are never
// batched atomically.
type EventStore interface {
	// Append atomically writes the batch to the aggregate's stream with
	// contiguous sequence numbers starting at expectedSequence+1. Returns
	// domain.ErrConcurrencyConflict when expectedSequence does not match the
	// current stream head; no events are written in that case.
	Append(ctx context.Context, aggregateID string, expectedSequence int64, events []domain.Event) ([]domain.Event, error)

	// ReadStream returns the ordered events of one aggregate from
	// fromSequence (inclusive). Re-reading from the same position yields the
	// same events.
	ReadStream(ctx context.Context, aggregateID string, fromSequence int64) ([]domain.Event, error)

	// Exists checks whether the aggregate has at least one event
	Exists(ctx context.Context, aggregateID string) (bool, error)
}
