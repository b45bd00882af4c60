package models

import "time"

// Event is the persisted event log row. The unique index on
// (aggregate_id, sequence_number) enforces contiguous, gap-free streams and
// backs optimistic concurrency on append.
type Event struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	EventID        string `gorm:"uniqueIndex" json:"event_id"`
	AggregateID    string `gorm:"uniqueIndex:idx_stream_sequence,priority:1" json:"aggregate_id"`
	AggregateType  string `gorm:"index" json:"aggregate_type"`
	EventType      string `json:"event_type"`
	SequenceNumber int64  `gorm:"uniqueIndex:idx_stream_sequence,priority:2" json:"sequence_number"`
	CorrelationID  string `gorm:"index" json:"correlation_id"`
	CausationID    string `json:"causation_id"`
	SchemaVersion  int    `json:"schema_version"`
	Payload        []byte `json:"payload"`
	Metadata       []byte `json:"metadata"`
	OccurredAt     time.Time `json:"occurred_at"`
	CreatedAt      time.Time `json:"created_at"`
}
