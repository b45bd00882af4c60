package saga

import (
	"time"

	"github.com/Bikxs/skafu-core/domain"
)

// Terminal saga states
const (
	StateCompleted   = "COMPLETED"
	StateCompensated = "COMPENSATED"
	StateFailed      = "FAILED"
)

// Instance is the live state of one saga execution, keyed by correlation id
type Instance struct {
	CorrelationID        string
	SagaType             string
	CurrentState         string
	AwaitedEvents        map[string]bool
	IssuedCommands       []string
	Context              map[string]string
	CompensationAttempts int
	DeadlineAt           *time.Time
	StartedAt            time.Time
	CompletedAt          *time.Time
	FailedAt             *time.Time
}

// Terminal reports whether the instance reached a final state
func (i *Instance) Terminal() bool {
	switch i.CurrentState {
	case StateCompleted, StateCompensated, StateFailed:
		return true
	}
	return false
}

// CommandFactory builds a follow-up command from the instance and the event
// that triggered the transition
type CommandFactory func(inst *Instance, event domain.Event) (domain.Command, error)

// TransitionKey addresses one edge of the saga state machine
type TransitionKey struct {
	State     string
	EventType string
}

// Transition is the target state and follow-up commands for one edge
type Transition struct {
	Next     string
	Commands []CommandFactory
}

// Definition is a declarative saga state machine. One definition serves all
// instances of its saga type; per-instance data lives in Instance.
type Definition struct {
	SagaType string

	// InitiatingEvents start a new instance when no instance exists for the
	// event's correlation id
	InitiatingEvents map[string]bool
	InitialState     string

	// AwaitedEvents is the set of event types the saga waits for; an event
	// type is crossed off when it arrives
	AwaitedEvents []string

	Transitions map[TransitionKey]Transition

	// FailureEvents trigger compensation from any non-terminal state
	FailureEvents map[string]bool

	// Compensations lists the undo commands per state the saga may be in
	// when a failure or timeout strikes
	Compensations map[string][]CommandFactory

	// StateDeadline bounds how long an instance may sit in one state before
	// the timeout sweep compensates it
	StateDeadline time.Duration

	// SeedContext extracts per-instance context from the initiating event
	SeedContext func(event domain.Event) map[string]string
}

// EventTypes returns every event type the definition reacts to
func (d *Definition) EventTypes() []string {
	seen := make(map[string]bool)
	for eventType := range d.InitiatingEvents {
		seen[eventType] = true
	}
	for eventType := range d.FailureEvents {
		seen[eventType] = true
	}
	for key := range d.Transitions {
		seen[key.EventType] = true
	}

	types := make([]string, 0, len(seen))
	for eventType := range seen {
		types = append(types, eventType)
	}
	return types
}

// newInstance starts an instance from an initiating event
func (d *Definition) newInstance(event domain.Event, now time.Time) *Instance {
	awaited := make(map[string]bool, len(d.AwaitedEvents))
	for _, eventType := range d.AwaitedEvents {
		awaited[eventType] = true
	}

	var context map[string]string
	if d.SeedContext != nil {
		context = d.SeedContext(event)
	}
	if context == nil {
		context = make(map[string]string)
	}

	deadline := now.Add(d.StateDeadline)
	return &Instance{
		CorrelationID: event.CorrelationID,
		SagaType:      d.SagaType,
		CurrentState:  d.InitialState,
		AwaitedEvents: awaited,
		Context:       context,
		DeadlineAt:    &deadline,
		StartedAt:     now,
	}
}
