package eventstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bikxs/skafu-core/domain"
)

func newProjectEvent(aggregateID string) domain.Event {
	return domain.NewEvent(domain.AggregateProject, aggregateID, domain.ProjectCreated,
		&domain.ProjectCreatedPayload{Name: "a", OwnerID: "u"}, "corr-1", "")
}

func TestMemoryStoreAppendAssignsContiguousSequences(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	committed, err := store.Append(ctx, "proj-1", 0, []domain.Event{
		newProjectEvent("proj-1"),
		newProjectEvent("proj-1"),
	})
	require.NoError(t, err)
	require.Len(t, committed, 2)
	require.Equal(t, int64(1), committed[0].SequenceNumber)
	require.Equal(t, int64(2), committed[1].SequenceNumber)

	committed, err = store.Append(ctx, "proj-1", 2, []domain.Event{newProjectEvent("proj-1")})
	require.NoError(t, err)
	require.Equal(t, int64(3), committed[0].SequenceNumber)
}

func TestMemoryStoreAppendRejectsStaleExpectedSequence(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	_, err := store.Append(ctx, "proj-1", 0, []domain.Event{newProjectEvent("proj-1")})
	require.NoError(t, err)

	// A writer that read the stream before the first append expects head 0.
	_, err = store.Append(ctx, "proj-1", 0, []domain.Event{newProjectEvent("proj-1")})
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// Nothing was written by the rejected append.
	events, err := store.ReadStream(ctx, "proj-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestMemoryStoreAppendRejectsFutureExpectedSequence(t *testing.T) {
	store := NewMemoryEventStore()

	_, err := store.Append(context.Background(), "proj-1", 5, []domain.Event{newProjectEvent("proj-1")})
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestMemoryStoreReadStreamFromSequence(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	_, err := store.Append(ctx, "proj-1", 0, []domain.Event{
		newProjectEvent("proj-1"),
		newProjectEvent("proj-1"),
		newProjectEvent("proj-1"),
	})
	require.NoError(t, err)

	events, err := store.ReadStream(ctx, "proj-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(2), events[0].SequenceNumber)
	require.Equal(t, int64(3), events[1].SequenceNumber)

	events, err = store.ReadStream(ctx, "proj-1", 7)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestMemoryStoreStreamsAreIndependent(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	_, err := store.Append(ctx, "proj-1", 0, []domain.Event{newProjectEvent("proj-1")})
	require.NoError(t, err)

	// proj-2 still starts at sequence 1.
	committed, err := store.Append(ctx, "proj-2", 0, []domain.Event{newProjectEvent("proj-2")})
	require.NoError(t, err)
	require.Equal(t, int64(1), committed[0].SequenceNumber)

	exists, err := store.Exists(ctx, "proj-1")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists(ctx, "proj-3")
	require.NoError(t, err)
	require.False(t, exists)
}
