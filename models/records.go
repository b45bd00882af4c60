package models

import "time"

// IdempotencyRecord tracks consumption of one event by one consumer. The
// unique index on (event_id, consumer_id) is the linearization point for
// at-least-once redelivery.
type IdempotencyRecord struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	EventID     string     `gorm:"uniqueIndex:idx_event_consumer,priority:1" json:"event_id"`
	ConsumerID  string     `gorm:"uniqueIndex:idx_event_consumer,priority:2" json:"consumer_id"`
	Status      string     `json:"status"`
	ResultHash  string     `json:"result_hash"`
	Reason      string     `json:"reason"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `gorm:"index" json:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SagaInstance is the persisted state of one saga execution, keyed by
// correlation id. AwaitedEvents, IssuedCommands and Context are JSON.
type SagaInstance struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	CorrelationID        string     `gorm:"uniqueIndex" json:"correlation_id"`
	SagaType             string     `gorm:"index" json:"saga_type"`
	CurrentState         string     `json:"current_state"`
	AwaitedEvents        []byte     `json:"awaited_events"`
	IssuedCommands       []byte     `json:"issued_commands"`
	Context              []byte     `json:"context"`
	CompensationAttempts int        `json:"compensation_attempts"`
	DeadlineAt           *time.Time `gorm:"index" json:"deadline_at"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at"`
	FailedAt             *time.Time `json:"failed_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// ErrorRecord is a write-once failure record on the error correlation
// channel, queryable by correlation id or time window
type ErrorRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ErrorID         string    `gorm:"uniqueIndex" json:"error_id"`
	CorrelationID   string    `gorm:"index" json:"correlation_id"`
	SourceComponent string    `gorm:"index" json:"source_component"`
	Severity        string    `json:"severity"`
	Code            string    `json:"code"`
	Message         string    `json:"message"`
	Context         []byte    `json:"context"`
	Retryable       bool      `json:"retryable"`
	OccurredAt      time.Time `gorm:"index" json:"occurred_at"`
	CreatedAt       time.Time `json:"created_at"`
}
