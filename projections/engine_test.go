package projections

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/ledger"
)

func testEvent() domain.Event {
	return domain.NewEvent(domain.AggregateProject, "proj-1", domain.ProjectCreated,
		&domain.ProjectCreatedPayload{Name: "a", OwnerID: "u"}, "corr-1", "")
}

func TestEngineProcessesEventOnce(t *testing.T) {
	calls := 0
	registry := NewRegistry().Register(domain.ProjectCreated, func(ctx context.Context, event domain.Event) error {
		calls++
		return nil
	})

	engine := NewEngine("project-view", registry,
		ledger.NewMemoryLedger(5*time.Minute), faults.NewMemoryStore())

	event := testEvent()
	ctx := context.Background()

	require.NoError(t, engine.HandleEvent(ctx, event))

	// Redelivery of the same event is acknowledged without side effects.
	require.NoError(t, engine.HandleEvent(ctx, event))
	require.Equal(t, 1, calls)
}

func TestEngineRetriesAfterHandlerFailure(t *testing.T) {
	calls := 0
	registry := NewRegistry().Register(domain.ProjectCreated, func(ctx context.Context, event domain.Event) error {
		calls++
		if calls == 1 {
			return errors.New("view database unavailable")
		}
		return nil
	})

	errorStore := faults.NewMemoryStore()
	engine := NewEngine("project-view", registry,
		ledger.NewMemoryLedger(5*time.Minute), errorStore)

	event := testEvent()
	ctx := context.Background()

	require.Error(t, engine.HandleEvent(ctx, event))

	// The failure landed on the error channel.
	records, err := errorStore.QueryByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, domain.CodeConsumerFailure, records[0].Code)
	require.True(t, records[0].Retryable)

	// Redelivery reclaims the failed entry and succeeds.
	require.NoError(t, engine.HandleEvent(ctx, event))
	require.Equal(t, 2, calls)

	// A further redelivery is now a duplicate.
	require.NoError(t, engine.HandleEvent(ctx, event))
	require.Equal(t, 2, calls)
}

func TestEngineRejectsUnregisteredEventType(t *testing.T) {
	engine := NewEngine("project-view", NewRegistry(),
		ledger.NewMemoryLedger(5*time.Minute), faults.NewMemoryStore())

	err := engine.HandleEvent(context.Background(), testEvent())
	require.ErrorIs(t, err, domain.ErrUnknownEventType)
}

func TestRegistryDefaultCatchesAll(t *testing.T) {
	var seen []string
	registry := NewRegistry()
	registry.Default = func(ctx context.Context, event domain.Event) error {
		seen = append(seen, event.EventType)
		return nil
	}

	engine := NewEngine("event-timeline", registry,
		ledger.NewMemoryLedger(5*time.Minute), faults.NewMemoryStore())

	ctx := context.Background()
	require.NoError(t, engine.HandleEvent(ctx, testEvent()))

	other := domain.NewEvent(domain.AggregateTemplate, "tmpl-1", domain.TemplateRegistered,
		&domain.TemplateRegisteredPayload{Name: "t", SourceURL: "https://x", Framework: "gin"}, "corr-2", "")
	require.NoError(t, engine.HandleEvent(ctx, other))

	require.Equal(t, []string{domain.ProjectCreated, domain.TemplateRegistered}, seen)
}

func TestEngineKeepsConsumersIndependent(t *testing.T) {
	ldg := ledger.NewMemoryLedger(5 * time.Minute)
	errorStore := faults.NewMemoryStore()

	firstCalls, secondCalls := 0, 0
	first := NewEngine("project-view", NewRegistry().Register(domain.ProjectCreated,
		func(ctx context.Context, event domain.Event) error { firstCalls++; return nil }), ldg, errorStore)
	second := NewEngine("event-timeline", NewRegistry().Register(domain.ProjectCreated,
		func(ctx context.Context, event domain.Event) error { secondCalls++; return nil }), ldg, errorStore)

	event := testEvent()
	ctx := context.Background()

	require.NoError(t, first.HandleEvent(ctx, event))
	require.NoError(t, second.HandleEvent(ctx, event))
	require.Equal(t, 1, firstCalls)
	require.Equal(t, 1, secondCalls)
}
