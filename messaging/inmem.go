package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Bikxs/skafu-core/domain"
)

type subscription struct {
	consumer       Consumer
	aggregateTypes map[string]bool // empty means all
	queue          chan domain.Event
	done           chan struct{}
}

// InMemoryBus is a single-process Publisher with one delivery goroutine per
// subscription, preserving per-aggregate order. Failed deliveries are retried
// up to maxRedeliveries with backoff, mirroring the broker's redelivery
// policy in local runs and tests.
type InMemoryBus struct {
	mu              sync.Mutex
	subscriptions   []*subscription
	bufferSize      int
	maxRedeliveries int
	backoff         time.Duration
	wg              sync.WaitGroup
	closed          bool
}

// NewInMemoryBus creates an in-memory event bus
func NewInMemoryBus(bufferSize, maxRedeliveries int) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxRedeliveries <= 0 {
		maxRedeliveries = 5
	}

	return &InMemoryBus{
		bufferSize:      bufferSize,
		maxRedeliveries: maxRedeliveries,
		backoff:         50 * time.Millisecond,
	}
}

// Subscribe registers a consumer. aggregateTypes filters delivery; an empty
// list subscribes to every event.
func (b *InMemoryBus) Subscribe(consumer Consumer, aggregateTypes ...string) {
	sub := &subscription{
		consumer: consumer,
		queue:    make(chan domain.Event, b.bufferSize),
		done:     make(chan struct{}),
	}

	if len(aggregateTypes) > 0 {
		sub.aggregateTypes = make(map[string]bool, len(aggregateTypes))
		for _, t := range aggregateTypes {
			sub.aggregateTypes[t] = true
		}
	}

	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.deliver(sub)
}

// Publish fans events out to all matching subscriptions
func (b *InMemoryBus) Publish(ctx context.Context, events ...domain.Event) error {
	b.mu.Lock()
	subs := make([]*subscription, len(b.subscriptions))
	copy(subs, b.subscriptions)
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return nil
	}

	for _, event := range events {
		for _, sub := range subs {
			if sub.aggregateTypes != nil && !sub.aggregateTypes[event.AggregateType] {
				continue
			}
			select {
			case sub.queue <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

func (b *InMemoryBus) deliver(sub *subscription) {
	defer b.wg.Done()

	for {
		select {
		case event := <-sub.queue:
			b.deliverOne(sub, event)
		case <-sub.done:
			// Drain remaining events before shutting down.
			for {
				select {
				case event := <-sub.queue:
					b.deliverOne(sub, event)
				default:
					return
				}
			}
		}
	}
}

func (b *InMemoryBus) deliverOne(sub *subscription, event domain.Event) {
	ctx := context.Background()

	var err error
	for attempt := 0; attempt < b.maxRedeliveries; attempt++ {
		if attempt > 0 {
			time.Sleep(b.backoff * time.Duration(attempt))
		}

		if err = sub.consumer.HandleEvent(ctx, event); err == nil {
			return
		}

		log.Warn().
			Err(err).
			Str("consumer", sub.consumer.ConsumerID()).
			Str("eventID", event.EventID).
			Int("attempt", attempt+1).
			Msg("Event delivery failed, will redeliver")
	}

	log.Error().
		Err(err).
		Str("consumer", sub.consumer.ConsumerID()).
		Str("eventID", event.EventID).
		Str("eventType", event.EventType).
		Msg("Event delivery exhausted redeliveries")
}

// Close stops delivery after draining queued events
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subscriptions
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
}
