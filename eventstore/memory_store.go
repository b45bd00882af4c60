package eventstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/Bikxs/skafu-core/domain"
)

// MemoryEventStore is an in-memory EventStore with the same optimistic
// concurrency semantics as the Postgres store. Used for tests and for
// single-node local runs.
type MemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]domain.Event
}

// NewMemoryEventStore creates an empty in-memory event store
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams: make(map[string][]domain.Event),
	}
}

// Append atomically writes the batch or rejects it on a sequence mismatch
func (s *MemoryEventStore) Append(ctx context.Context, aggregateID string, expectedSequence int64, events []domain.Event) ([]domain.Event, error) {
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate ID is empty")
	}
	if len(events) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	head := int64(len(stream))
	if head != expectedSequence {
		return nil, fmt.Errorf("%w: aggregate %s at sequence %d, expected %d",
			domain.ErrConcurrencyConflict, aggregateID, head, expectedSequence)
	}

	committed := make([]domain.Event, len(events))
	for i, event := range events {
		committed[i] = event
		committed[i].AggregateID = aggregateID
		committed[i].SequenceNumber = expectedSequence + int64(i) + 1
	}

	s.streams[aggregateID] = append(stream, committed...)

	return committed, nil
}

// ReadStream returns the ordered events for an aggregate from fromSequence
func (s *MemoryEventStore) ReadStream(ctx context.Context, aggregateID string, fromSequence int64) ([]domain.Event, error) {
	if fromSequence < 1 {
		fromSequence = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	if fromSequence > int64(len(stream)) {
		return nil, nil
	}

	out := make([]domain.Event, len(stream)-int(fromSequence)+1)
	copy(out, stream[fromSequence-1:])

	return out, nil
}

// Exists checks if an aggregate has any events
func (s *MemoryEventStore) Exists(ctx context.Context, aggregateID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.streams[aggregateID]) > 0, nil
}
