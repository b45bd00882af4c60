package domain

import "fmt"

// Aggregate is the interface for all event-sourced aggregates. State is fully
// determined by folding the ordered event stream through Apply.
type Aggregate interface {
	AggregateID() string
	AggregateType() string
	Sequence() int64
	Apply(event Event) error
}

// AggregateBase provides common aggregate bookkeeping
type AggregateBase struct {
	id            string
	aggregateType string
	sequence      int64
}

// NewAggregateBase creates a new aggregate base
func NewAggregateBase(aggregateType, id string) *AggregateBase {
	return &AggregateBase{
		id:            id,
		aggregateType: aggregateType,
	}
}

// AggregateID returns the aggregate ID
func (b *AggregateBase) AggregateID() string {
	return b.id
}

// AggregateType returns the aggregate type
func (b *AggregateBase) AggregateType() string {
	return b.aggregateType
}

// Sequence returns the sequence number of the last applied event
func (b *AggregateBase) Sequence() int64 {
	return b.sequence
}

// SetSequence restores the sequence position when rehydrating from a snapshot
func (b *AggregateBase) SetSequence(seq int64) {
	b.sequence = seq
}

func (b *AggregateBase) advance(e Event) {
	b.sequence = e.SequenceNumber
}

// Replay folds committed events through the aggregate's reducer in stream
// order. Replaying the same stream from the same position is deterministic.
func Replay(agg Aggregate, events []Event) error {
	for _, e := range events {
		if e.AggregateID != agg.AggregateID() {
			return fmt.Errorf("event %s belongs to aggregate %s, not %s",
				e.EventID, e.AggregateID, agg.AggregateID())
		}
		if err := agg.Apply(e); err != nil {
			return fmt.Errorf("failed to apply event %s (%s): %w", e.EventID, e.EventType, err)
		}
	}
	return nil
}
