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

// CommandQueueConsumer pulls command messages from a Service Bus queue and
// dispatches them to the command handler. Commands arriving over the queue
// use the same envelope as the API boundary.
type CommandQueueConsumer struct {
	client  *azservicebus.Client
	queue   string
	handler CommandHandler
}

// NewCommandQueueConsumer creates a command queue consumer
func NewCommandQueueConsumer(connStr, queue string, handler CommandHandler) (*CommandQueueConsumer, error) {
	client, err := azservicebus.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	return &CommandQueueConsumer{client: client, queue: queue, handler: handler}, nil
}

// Start consumes the command queue until the context is cancelled
func (c *CommandQueueConsumer) Start(ctx context.Context) error {
	log.Info().Msgf("Starting command consumer for queue %s", c.queue)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sessionReceiver, err := c.client.AcceptNextSessionForQueue(ctx, c.queue, nil)
		if err != nil {
			var sbErr *azservicebus.Error
			if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout {
				time.Sleep(2 * time.Second)
				continue
			}
			return err
		}

		go c.handleSession(ctx, sessionReceiver)
	}
}

func (c *CommandQueueConsumer) handleSession(ctx context.Context, receiver *azservicebus.SessionReceiver) {
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
			if err := c.processMessage(ctx, message); err != nil {
				log.Error().Err(err).Msgf("Error processing command '%s'", message.MessageID)
				if abandonErr := receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Msgf("(AbandonMessage) err: %v", abandonErr)
				}
				continue
			}

			if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
				log.Error().Err(err).Msgf("(CompleteMessage) err: %v", err)
			}
		}
	}
}

func (c *CommandQueueConsumer) processMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var cmd domain.Command
	if err := json.Unmarshal(message.Body, &cmd); err != nil {
		return fmt.Errorf("error unmarshalling command: %w", err)
	}

	log.Info().
		Str("commandType", cmd.CommandType).
		Str("aggregateID", cmd.AggregateID).
		Msg("Processing queued command")

	_, err := c.handler.Handle(ctx, cmd)
	if err != nil && !domain.IsRetryable(err) {
		// Validation and business-rule failures are terminal for a queued
		// command; they are already on the error channel, so complete the
		// message instead of poisoning the queue.
		log.Warn().
			Err(err).
			Str("commandID", cmd.CommandID).
			Str("correlationID", cmd.CorrelationID).
			Msg("Queued command rejected")
		return nil
	}

	return err
}
