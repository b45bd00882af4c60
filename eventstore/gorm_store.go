package eventstore

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GormEventStore implements EventStore on Postgres via GORM. Optimistic
// concurrency is checked inside the append transaction and backed by the
// unique (aggregate_id, sequence_number) index for racing writers.
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// Append atomically writes the batch with contiguous sequence numbers
func (s *GormEventStore) Append(ctx context.Context, aggregateID string, expectedSequence int64, events []domain.Event) ([]domain.Event, error) {
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate ID is empty")
	}
	if len(events) == 0 {
		return nil, nil
	}

	committed := make([]domain.Event, len(events))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var head int64
		if err := tx.Model(&models.Event{}).
			Where("aggregate_id = ?", aggregateID).
			Select("COALESCE(MAX(sequence_number), 0)").
			Scan(&head).Error; err != nil {
			return fmt.Errorf("failed to read stream head: %w", err)
		}

		if head != expectedSequence {
			return fmt.Errorf("%w: aggregate %s at sequence %d, expected %d",
				domain.ErrConcurrencyConflict, aggregateID, head, expectedSequence)
		}

		rows := make([]models.Event, len(events))
		for i, event := range events {
			payload, err := json.Marshal(event.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal event payload: %w", err)
			}

			var metadata []byte
			if len(event.Metadata) > 0 {
				if metadata, err = json.Marshal(event.Metadata); err != nil {
					return fmt.Errorf("failed to marshal event metadata: %w", err)
				}
			}

			committed[i] = event
			committed[i].SequenceNumber = expectedSequence + int64(i) + 1

			rows[i] = models.Event{
				EventID:        event.EventID,
				AggregateID:    aggregateID,
				AggregateType:  event.AggregateType,
				EventType:      event.EventType,
				SequenceNumber: committed[i].SequenceNumber,
				CorrelationID:  event.CorrelationID,
				CausationID:    event.CausationID,
				SchemaVersion:  event.SchemaVersion,
				Payload:        payload,
				Metadata:       metadata,
				OccurredAt:     event.OccurredAt,
			}
		}

		if err := tx.Create(&rows).Error; err != nil {
			// A racing writer appended between the head check and the insert.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: aggregate %s lost append race at sequence %d",
					domain.ErrConcurrencyConflict, aggregateID, expectedSequence)
			}
			return fmt.Errorf("failed to save events: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("aggregateID", aggregateID).
		Int("eventCount", len(committed)).
		Int64("headSequence", committed[len(committed)-1].SequenceNumber).
		Msg("Events appended")

	return committed, nil
}

// ReadStream returns the ordered events for an aggregate from fromSequence
func (s *GormEventStore) ReadStream(ctx context.Context, aggregateID string, fromSequence int64) ([]domain.Event, error) {
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate ID is empty")
	}
	if fromSequence < 1 {
		fromSequence = 1
	}

	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ? AND sequence_number >= ?", aggregateID, fromSequence).
		Order("sequence_number ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := make([]domain.Event, len(rows))
	for i, row := range rows {
		event, err := ToDomainEvent(row)
		if err != nil {
			return nil, err
		}
		events[i] = event
	}

	return events, nil
}

// Exists checks if an aggregate has any events
func (s *GormEventStore) Exists(ctx context.Context, aggregateID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("aggregate_id = ?", aggregateID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check if aggregate exists: %w", err)
	}

	return count > 0, nil
}

// ReadBatch returns committed events across all aggregates ordered by insert
// id, used by the republish command to rebuild read models
func (s *GormEventStore) ReadBatch(ctx context.Context, afterID uint, limit int) ([]models.Event, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read event batch: %w", err)
	}

	return rows, nil
}

// ToDomainEvent converts a stored event row back to a typed domain event
func ToDomainEvent(row models.Event) (domain.Event, error) {
	payload, err := domain.DecodePayload(row.EventType, row.Payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %s: %w", row.EventID, err)
	}

	var metadata map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return domain.Event{}, fmt.Errorf("failed to unmarshal metadata for event %s: %w", row.EventID, err)
		}
	}

	return domain.Event{
		EventID:        row.EventID,
		AggregateID:    row.AggregateID,
		AggregateType:  row.AggregateType,
		EventType:      row.EventType,
		SequenceNumber: row.SequenceNumber,
		OccurredAt:     row.OccurredAt,
		CorrelationID:  row.CorrelationID,
		CausationID:    row.CausationID,
		SchemaVersion:  row.SchemaVersion,
		Payload:        payload,
		Metadata:       metadata,
	}, nil
}
