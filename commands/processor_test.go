package commands

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bikxs/skafu-core/cache"
	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/eventstore"
	"github.com/Bikxs/skafu-core/faults"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturePublisher) Publish(ctx context.Context, events ...domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

// conflictingStore injects concurrency conflicts before delegating, to
// exercise the reload-and-retry loop
type conflictingStore struct {
	eventstore.EventStore
	conflicts int
}

func (s *conflictingStore) Append(ctx context.Context, aggregateID string, expectedSequence int64, events []domain.Event) ([]domain.Event, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return nil, domain.ErrConcurrencyConflict
	}
	return s.EventStore.Append(ctx, aggregateID, expectedSequence, events)
}

// expiringStore fails the append itself with an expired context, as a slow
// database would
type expiringStore struct {
	eventstore.EventStore
}

func (s *expiringStore) Append(ctx context.Context, aggregateID string, expectedSequence int64, events []domain.Event) ([]domain.Event, error) {
	return nil, fmt.Errorf("failed to append events: %w", context.DeadlineExceeded)
}

func newTestProcessor(t *testing.T, store eventstore.EventStore) (*Processor, *capturePublisher, *faults.MemoryStore) {
	t.Helper()

	bus := &capturePublisher{}
	errorStore := faults.NewMemoryStore()
	snapshots, err := cache.NewSnapshotCache(cache.Options{Enabled: false})
	require.NoError(t, err)

	return NewProcessor(store, bus, snapshots, errorStore, Options{MaxAttempts: 3}), bus, errorStore
}

func mustCommand(t *testing.T, aggregateID, commandType string, payload any) domain.Command {
	t.Helper()
	cmd, err := domain.NewCommand(aggregateID, commandType, payload, "corr-1", "")
	require.NoError(t, err)
	return cmd
}

func TestCreateProjectOnEmptyStream(t *testing.T) {
	p, bus, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())

	cmd := mustCommand(t, "proj-1", domain.CreateProject, CreateProjectPayload{
		Name: "billing", Description: "billing service", OwnerID: "user-1",
	})

	result, err := p.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.Len(t, result.ProducedEvents, 1)

	event := result.ProducedEvents[0]
	require.Equal(t, domain.ProjectCreated, event.EventType)
	require.Equal(t, int64(1), event.SequenceNumber)
	require.Equal(t, "corr-1", event.CorrelationID)
	require.Equal(t, cmd.CommandID, event.CausationID)

	// Committed events reach the bus.
	require.Len(t, bus.events, 1)
}

func TestCreateProjectTwiceViolatesUniqueness(t *testing.T) {
	p, _, errorStore := newTestProcessor(t, eventstore.NewMemoryEventStore())
	ctx := context.Background()

	_, err := p.Handle(ctx, mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))
	require.NoError(t, err)

	_, err = p.Handle(ctx, mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))

	var violation *domain.BusinessRuleViolation
	require.ErrorAs(t, err, &violation)

	records, err := errorStore.QueryByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Equal(t, domain.CodeBusinessRule, records[0].Code)
}

func TestCommandOnMissingAggregate(t *testing.T) {
	p, _, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())

	_, err := p.Handle(context.Background(), mustCommand(t, "proj-404", domain.UpdateProject,
		UpdateProjectPayload{Name: "renamed"}))
	require.ErrorIs(t, err, domain.ErrAggregateNotFound)
}

func TestStructurallyInvalidCommand(t *testing.T) {
	p, bus, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())

	_, err := p.Handle(context.Background(), mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Description: "no name, no owner"}))

	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Empty(t, bus.events)
}

func TestUnknownCommandType(t *testing.T) {
	p, _, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())

	_, err := p.Handle(context.Background(), mustCommand(t, "proj-1", "TransmogrifyProject", nil))
	require.ErrorIs(t, err, domain.ErrUnknownCommandType)
}

func TestMarkProjectReadyRequiresProvisioning(t *testing.T) {
	p, _, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())
	ctx := context.Background()

	_, err := p.Handle(ctx, mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))
	require.NoError(t, err)

	_, err = p.Handle(ctx, mustCommand(t, "proj-1", domain.SelectTemplate,
		SelectTemplatePayload{TemplateID: "tmpl-1", TemplateVersion: "1.0.0"}))
	require.NoError(t, err)

	// Template selected but no repository yet.
	_, err = p.Handle(ctx, mustCommand(t, "proj-1", domain.MarkProjectReady, MarkProjectReadyPayload{}))
	var violation *domain.BusinessRuleViolation
	require.ErrorAs(t, err, &violation)

	_, err = p.Handle(ctx, mustCommand(t, "proj-1", domain.AttachRepository,
		AttachRepositoryPayload{Provider: "github", RepoURL: "https://github.com/acme/a", DefaultBranch: "main"}))
	require.NoError(t, err)

	result, err := p.Handle(ctx, mustCommand(t, "proj-1", domain.MarkProjectReady, MarkProjectReadyPayload{}))
	require.NoError(t, err)
	require.Len(t, result.ProducedEvents, 1)
	require.Equal(t, domain.ProjectReady, result.ProducedEvents[0].EventType)
}

func TestCancelTemplateSelectionIsIdempotent(t *testing.T) {
	p, bus, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())
	ctx := context.Background()

	_, err := p.Handle(ctx, mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))
	require.NoError(t, err)

	published := len(bus.events)

	// Nothing selected yet, so cancelling produces no events and succeeds.
	result, err := p.Handle(ctx, mustCommand(t, "proj-1", domain.CancelTemplateSelection,
		CancelTemplateSelectionPayload{Reason: "compensation replay"}))
	require.NoError(t, err)
	require.Empty(t, result.ProducedEvents)
	require.Len(t, bus.events, published)
}

func TestArchivedProjectRejectsMutation(t *testing.T) {
	p, _, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())
	ctx := context.Background()

	_, err := p.Handle(ctx, mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))
	require.NoError(t, err)

	_, err = p.Handle(ctx, mustCommand(t, "proj-1", domain.ArchiveProject, ArchiveProjectPayload{}))
	require.NoError(t, err)

	_, err = p.Handle(ctx, mustCommand(t, "proj-1", domain.UpdateProject,
		UpdateProjectPayload{Name: "renamed"}))
	var violation *domain.BusinessRuleViolation
	require.ErrorAs(t, err, &violation)
}

func TestConflictRetrySucceedsWithinBound(t *testing.T) {
	store := &conflictingStore{EventStore: eventstore.NewMemoryEventStore(), conflicts: 2}
	p, _, _ := newTestProcessor(t, store)

	result, err := p.Handle(context.Background(), mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))
	require.NoError(t, err)
	require.Len(t, result.ProducedEvents, 1)
}

func TestConflictRetryExhaustionSurfacesConflict(t *testing.T) {
	store := &conflictingStore{EventStore: eventstore.NewMemoryEventStore(), conflicts: 10}
	p, _, _ := newTestProcessor(t, store)

	_, err := p.Handle(context.Background(), mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestCancelledContextReportsUnknownOutcome(t *testing.T) {
	p, _, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Handle(ctx, mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))
	require.ErrorIs(t, err, domain.ErrCommandTimeout)
}

func TestDeadlineInsideAppendReportsUnknownOutcome(t *testing.T) {
	store := &expiringStore{EventStore: eventstore.NewMemoryEventStore()}
	p, bus, _ := newTestProcessor(t, store)

	// The deadline expired inside the store, not between attempts; the
	// caller still sees the unknown-outcome timeout, not an internal error.
	_, err := p.Handle(context.Background(), mustCommand(t, "proj-1", domain.CreateProject,
		CreateProjectPayload{Name: "a", OwnerID: "u"}))
	require.ErrorIs(t, err, domain.ErrCommandTimeout)
	require.Empty(t, bus.events)
}

func TestTemplateLifecycle(t *testing.T) {
	p, _, _ := newTestProcessor(t, eventstore.NewMemoryEventStore())
	ctx := context.Background()

	_, err := p.Handle(ctx, mustCommand(t, "tmpl-1", domain.RegisterTemplate,
		RegisterTemplatePayload{Name: "go-service", SourceURL: "https://github.com/acme/tmpl", Framework: "gin"}))
	require.NoError(t, err)

	result, err := p.Handle(ctx, mustCommand(t, "tmpl-1", domain.PublishTemplate,
		PublishTemplatePayload{Version: "1.0.0"}))
	require.NoError(t, err)
	require.Equal(t, domain.TemplatePublished, result.ProducedEvents[0].EventType)

	// Publishing the same version again is a no-op.
	result, err = p.Handle(ctx, mustCommand(t, "tmpl-1", domain.PublishTemplate,
		PublishTemplatePayload{Version: "1.0.0"}))
	require.NoError(t, err)
	require.Empty(t, result.ProducedEvents)

	_, err = p.Handle(ctx, mustCommand(t, "tmpl-1", domain.DeprecateTemplate,
		DeprecateTemplatePayload{Reason: "superseded"}))
	require.NoError(t, err)

	_, err = p.Handle(ctx, mustCommand(t, "tmpl-1", domain.PublishTemplate,
		PublishTemplatePayload{Version: "2.0.0"}))
	var violation *domain.BusinessRuleViolation
	require.ErrorAs(t, err, &violation)
}
