package faults

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRecordSeverityFollowsRetryable(t *testing.T) {
	retryable := NewRecord(ComponentEventStore, "corr-1", "CONCURRENCY_CONFLICT", "lost append race", true)
	require.Equal(t, SeverityWarning, retryable.Severity)
	require.NotEmpty(t, retryable.ErrorID)
	require.False(t, retryable.OccurredAt.IsZero())

	terminal := NewRecord(ComponentCommandProcessor, "corr-1", "VALIDATION_ERROR", "name required", false)
	require.Equal(t, SeverityError, terminal.Severity)

	escalated := terminal.WithSeverity(SeverityCritical).WithContext("saga_type", "project-onboarding")
	require.Equal(t, SeverityCritical, escalated.Severity)
	require.Equal(t, "project-onboarding", escalated.Context["saga_type"])
}

func TestQueryByCorrelation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Record(ctx, NewRecord(ComponentCommandProcessor, "corr-1", "VALIDATION_ERROR", "bad name", false))
	store.Record(ctx, NewRecord(ComponentProjection, "corr-1", "CONSUMER_PROCESSING_FAILURE", "db down", true))
	store.Record(ctx, NewRecord(ComponentSaga, "corr-2", "COMPENSATION_FAILED", "gave up", false))

	records, err := store.QueryByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = store.QueryByCorrelation(ctx, "corr-404")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestQueryByWindowFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Record(ctx, NewRecord(ComponentCommandProcessor, "corr-1", "VALIDATION_ERROR", "bad name", false))
	store.Record(ctx, NewRecord(ComponentBus, "corr-2", "INTERNAL_ERROR", "publish failed", true))

	old := NewRecord(ComponentBus, "corr-3", "INTERNAL_ERROR", "ancient", true)
	old.OccurredAt = time.Now().UTC().Add(-48 * time.Hour)
	store.Record(ctx, old)

	start := time.Now().UTC().Add(-time.Hour)
	end := time.Now().UTC().Add(time.Hour)

	records, err := store.QueryByWindow(ctx, start, end, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = store.QueryByWindow(ctx, start, end, Filter{SourceComponent: ComponentBus})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "corr-2", records[0].CorrelationID)

	retryable := false
	records, err = store.QueryByWindow(ctx, start, end, Filter{Retryable: &retryable})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "corr-1", records[0].CorrelationID)
}
