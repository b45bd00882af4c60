package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"github.com/Bikxs/skafu-core/domain"
)

// AzureBus publishes committed events to a Service Bus topic and consumes
// them through per-consumer subscriptions. Sessions are keyed by aggregate id
// so same-aggregate events are processed in order.
type AzureBus struct {
	client *azservicebus.Client
	topic  string
	sender *azservicebus.Sender
}

// NewAzureBus creates a Service Bus backed event bus
func NewAzureBus(connStr, topic string) (*AzureBus, error) {
	client, err := azservicebus.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(topic, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &AzureBus{client: client, topic: topic, sender: sender}, nil
}

// Publish sends committed events to the topic, one message per event
func (a *AzureBus) Publish(ctx context.Context, events ...domain.Event) error {
	for _, event := range events {
		env, err := Wrap(event)
		if err != nil {
			return err
		}

		body, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("failed to marshal event envelope: %w", err)
		}

		sessionID := event.AggregateID
		msg := &azservicebus.Message{
			MessageID: &event.EventID,
			Body:      body,
			SessionID: &sessionID,
		}

		if err := a.sender.SendMessage(ctx, msg, nil); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.EventID, err)
		}
	}

	return nil
}

// StartConsumer receives events for one consumer from its topic subscription.
// Blocks until the context is cancelled.
func (a *AzureBus) StartConsumer(ctx context.Context, subscription string, consumer Consumer) error {
	log.Info().
		Str("subscription", subscription).
		Str("consumer", consumer.ConsumerID()).
		Msg("Starting event consumer")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sessionReceiver, err := a.client.AcceptNextSessionForSubscription(ctx, a.topic, subscription, nil)
		if err != nil {
			var sbErr *azservicebus.Error
			if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout {
				time.Sleep(2 * time.Second)
				continue
			}
			return err
		}

		go a.handleSession(ctx, sessionReceiver, consumer)
	}
}

func (a *AzureBus) handleSession(ctx context.Context, receiver *azservicebus.SessionReceiver, consumer Consumer) {
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msgf("Error closing session '%s'", receiver.SessionID())
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			log.Error().Err(err).Msgf("Error receiving messages from session '%s'", receiver.SessionID())
			return
		}

		if len(messages) == 0 {
			return
		}

		for _, message := range messages {
			if err := a.processMessage(ctx, message, consumer); err != nil {
				log.Error().Err(err).Msgf("Error processing message '%s'", message.MessageID)
				// Return the message to the subscription for redelivery.
				if err := receiver.AbandonMessage(ctx, message, nil); err != nil {
					log.Error().Err(err).Msgf("(AbandonMessage) err: %v", err)
				}
				continue
			}

			if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
				log.Error().Err(err).Msgf("(CompleteMessage) err: %v", err)
			}
		}
	}
}

func (a *AzureBus) processMessage(ctx context.Context, message *azservicebus.ReceivedMessage, consumer Consumer) error {
	var env EventEnvelope
	if err := json.Unmarshal(message.Body, &env); err != nil {
		return fmt.Errorf("error unmarshalling event envelope: %w", err)
	}

	event, err := Unwrap(env)
	if err != nil {
		return err
	}

	return consumer.HandleEvent(ctx, event)
}

// Close releases the sender
func (a *AzureBus) Close(ctx context.Context) error {
	return a.sender.Close(ctx)
}
