package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommandType constants
const (
	// Project commands
	CreateProject           = "CreateProject"
	UpdateProject           = "UpdateProject"
	SelectTemplate          = "SelectTemplate"
	CancelTemplateSelection = "CancelTemplateSelection"
	AttachRepository        = "AttachRepository"
	FailRepository          = "FailRepository"
	RequestAnalysis         = "RequestAnalysis"
	CompleteAnalysis        = "CompleteAnalysis"
	MarkProjectReady        = "MarkProjectReady"
	ArchiveProject          = "ArchiveProject"

	// Template commands
	RegisterTemplate  = "RegisterTemplate"
	UpdateTemplate    = "UpdateTemplate"
	PublishTemplate   = "PublishTemplate"
	DeprecateTemplate = "DeprecateTemplate"
)

// Command is the intake message shape shared by the API boundary, the command
// queue and saga-issued follow-ups
type Command struct {
	CommandID     string          `json:"command_id"`
	AggregateID   string          `json:"aggregate_id"`
	CommandType   string          `json:"command_type"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id"`
	IssuedAt      time.Time       `json:"issued_at"`
}

// CommandResult is returned to the caller on successful command execution
type CommandResult struct {
	CommandID      string  `json:"command_id"`
	CorrelationID  string  `json:"correlation_id"`
	ProducedEvents []Event `json:"produced_events"`
}

// NewCommand builds a command envelope with a fresh command id. An empty
// correlation id starts a new correlation chain.
func NewCommand(aggregateID, commandType string, payload any, correlationID, causationID string) (Command, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("failed to marshal command payload: %w", err)
	}

	cmd := Command{
		CommandID:     uuid.New().String(),
		AggregateID:   aggregateID,
		CommandType:   commandType,
		Payload:       data,
		CorrelationID: correlationID,
		CausationID:   causationID,
		IssuedAt:      time.Now().UTC(),
	}

	if cmd.CorrelationID == "" {
		cmd.CorrelationID = uuid.New().String()
	}

	return cmd, nil
}

// Normalize fills in the fields optional for external callers
func (c *Command) Normalize() {
	if c.CommandID == "" {
		c.CommandID = uuid.New().String()
	}
	if c.CorrelationID == "" {
		c.CorrelationID = uuid.New().String()
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now().UTC()
	}
}
