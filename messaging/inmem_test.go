package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bikxs/skafu-core/domain"
)

type recordingConsumer struct {
	id   string
	mu   sync.Mutex
	seen []domain.Event
	fail int
}

func (c *recordingConsumer) ConsumerID() string { return c.id }

func (c *recordingConsumer) HandleEvent(ctx context.Context, event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail > 0 {
		c.fail--
		return errors.New("transient failure")
	}
	c.seen = append(c.seen, event)
	return nil
}

func (c *recordingConsumer) events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.seen))
	copy(out, c.seen)
	return out
}

func publishProjectEvents(t *testing.T, bus *InMemoryBus, n int) []domain.Event {
	t.Helper()
	events := make([]domain.Event, n)
	for i := range events {
		events[i] = domain.NewEvent(domain.AggregateProject, "proj-1", domain.ProjectUpdated,
			&domain.ProjectUpdatedPayload{Name: "a"}, "corr-1", "")
		events[i].SequenceNumber = int64(i + 1)
	}
	require.NoError(t, bus.Publish(context.Background(), events...))
	return events
}

func TestInMemoryBusPreservesOrderPerSubscription(t *testing.T) {
	bus := NewInMemoryBus(16, 3)
	consumer := &recordingConsumer{id: "project-view"}
	bus.Subscribe(consumer, domain.AggregateProject)

	published := publishProjectEvents(t, bus, 5)
	bus.Close()

	seen := consumer.events()
	require.Len(t, seen, 5)
	for i, event := range seen {
		require.Equal(t, published[i].SequenceNumber, event.SequenceNumber)
	}
}

func TestInMemoryBusFiltersByAggregateType(t *testing.T) {
	bus := NewInMemoryBus(16, 3)
	projects := &recordingConsumer{id: "project-view"}
	templates := &recordingConsumer{id: "template-view"}
	everything := &recordingConsumer{id: "event-timeline"}

	bus.Subscribe(projects, domain.AggregateProject)
	bus.Subscribe(templates, domain.AggregateTemplate)
	bus.Subscribe(everything)

	projectEvent := domain.NewEvent(domain.AggregateProject, "proj-1", domain.ProjectCreated,
		&domain.ProjectCreatedPayload{Name: "a", OwnerID: "u"}, "corr-1", "")
	templateEvent := domain.NewEvent(domain.AggregateTemplate, "tmpl-1", domain.TemplateRegistered,
		&domain.TemplateRegisteredPayload{Name: "t", SourceURL: "https://x", Framework: "gin"}, "corr-2", "")

	require.NoError(t, bus.Publish(context.Background(), projectEvent, templateEvent))
	bus.Close()

	require.Len(t, projects.events(), 1)
	require.Len(t, templates.events(), 1)
	require.Len(t, everything.events(), 2)
}

func TestInMemoryBusRedeliversAfterTransientFailure(t *testing.T) {
	bus := NewInMemoryBus(16, 5)
	consumer := &recordingConsumer{id: "project-view", fail: 2}
	bus.Subscribe(consumer, domain.AggregateProject)

	publishProjectEvents(t, bus, 1)

	require.Eventually(t, func() bool {
		return len(consumer.events()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.Close()
}

func TestEnvelopeRoundTrip(t *testing.T) {
	event := domain.NewEvent(domain.AggregateProject, "proj-1", domain.AnalysisCompleted,
		&domain.AnalysisCompletedPayload{AnalysisID: "an-1", Summary: "looks good", Score: 0.92}, "corr-1", "cause-1")
	event.SequenceNumber = 7

	env, err := Wrap(event)
	require.NoError(t, err)
	require.Equal(t, event.EventID, env.EventID)

	restored, err := Unwrap(env)
	require.NoError(t, err)
	require.Equal(t, event.SequenceNumber, restored.SequenceNumber)
	require.Equal(t, event.CorrelationID, restored.CorrelationID)

	payload, ok := restored.Payload.(*domain.AnalysisCompletedPayload)
	require.True(t, ok)
	require.Equal(t, "an-1", payload.AnalysisID)
	require.InDelta(t, 0.92, payload.Score, 0.0001)
}

func TestUnwrapRejectsUnknownEventType(t *testing.T) {
	_, err := Unwrap(EventEnvelope{EventID: "evt-1", EventType: "V9_NOT_A_THING", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, domain.ErrUnknownEventType)
}
