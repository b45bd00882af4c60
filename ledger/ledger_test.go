package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryBeginAcquiresNewPair(t *testing.T) {
	l := NewMemoryLedger(5 * time.Minute)

	result, err := l.TryBegin(context.Background(), "evt-1", "project-view")
	require.NoError(t, err)
	require.Equal(t, Acquired, result)
}

func TestTryBeginBlocksFreshInFlightPair(t *testing.T) {
	l := NewMemoryLedger(5 * time.Minute)
	ctx := context.Background()

	_, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)

	result, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)
	require.Equal(t, InProgressElsewhere, result)
}

func TestTryBeginSkipsCompletedPair(t *testing.T) {
	l := NewMemoryLedger(5 * time.Minute)
	ctx := context.Background()

	_, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, "evt-1", "project-view", "hash"))

	result, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)
	require.Equal(t, AlreadyCompleted, result)
}

func TestTryBeginReclaimsFailedPair(t *testing.T) {
	l := NewMemoryLedger(5 * time.Minute)
	ctx := context.Background()

	_, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)
	require.NoError(t, l.Fail(ctx, "evt-1", "project-view", "handler blew up"))

	result, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)
	require.Equal(t, Acquired, result)
}

func TestTryBeginReclaimsStalePendingPair(t *testing.T) {
	l := NewMemoryLedger(10 * time.Millisecond)
	ctx := context.Background()

	_, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// The original worker died mid-processing; the pending claim is stale.
	result, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)
	require.Equal(t, Acquired, result)
}

func TestConsumersAreIndependent(t *testing.T) {
	l := NewMemoryLedger(5 * time.Minute)
	ctx := context.Background()

	_, err := l.TryBegin(ctx, "evt-1", "project-view")
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, "evt-1", "project-view", ""))

	result, err := l.TryBegin(ctx, "evt-1", "template-view")
	require.NoError(t, err)
	require.Equal(t, Acquired, result)
}

func TestPurgeRemovesOldCompletedEntries(t *testing.T) {
	l := NewMemoryLedger(5 * time.Minute)
	ctx := context.Background()

	_, err := l.TryBegin(ctx, "evt-old", "project-view")
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, "evt-old", "project-view", ""))

	_, err = l.TryBegin(ctx, "evt-pending", "project-view")
	require.NoError(t, err)

	purged, err := l.Purge(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	// Pending entries survive the purge.
	result, err := l.TryBegin(ctx, "evt-pending", "project-view")
	require.NoError(t, err)
	require.Equal(t, InProgressElsewhere, result)

	// The purged pair can be processed again after retention.
	result, err = l.TryBegin(ctx, "evt-old", "project-view")
	require.NoError(t, err)
	require.Equal(t, Acquired, result)
}
