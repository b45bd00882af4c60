package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/messaging"
	"github.com/Bikxs/skafu-core/metrics"
	"github.com/Bikxs/skafu-core/projections"
)

// Options tunes orchestrator behavior
type Options struct {
	CompensationMaxRetries int
	SweepBatchSize         int
}

// Orchestrator runs one saga definition. It reacts to events, advances
// persisted instances through the definition's state machine, and issues
// follow-up or compensating commands through the command processor.
type Orchestrator struct {
	def    *Definition
	store  Store
	issuer messaging.CommandHandler
	faults faults.Recorder

	compensationMaxRetries int
	sweepBatchSize         int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator wires a definition to its instance store and command issuer
func NewOrchestrator(def *Definition, store Store, issuer messaging.CommandHandler, recorder faults.Recorder, opts Options) *Orchestrator {
	if opts.CompensationMaxRetries <= 0 {
		opts.CompensationMaxRetries = 3
	}
	if opts.SweepBatchSize <= 0 {
		opts.SweepBatchSize = 100
	}

	return &Orchestrator{
		def:                    def,
		store:                  store,
		issuer:                 issuer,
		faults:                 recorder,
		compensationMaxRetries: opts.CompensationMaxRetries,
		sweepBatchSize:         opts.SweepBatchSize,
		locks:                  make(map[string]*sync.Mutex),
	}
}

// Registry returns the handlers for every event type the saga reacts to.
// Registering it in a projection engine gives the orchestrator idempotent
// consumption for free. The catch-all routes the aggregate's remaining event
// types through HandleEvent too, which ignores them, so deliveries outside
// the definition are acknowledged instead of failed.
func (o *Orchestrator) Registry() *projections.Registry {
	r := projections.NewRegistry()
	for _, eventType := range o.def.EventTypes() {
		r.Register(eventType, o.HandleEvent)
	}
	r.Default = o.HandleEvent
	return r
}

// HandleEvent advances the saga instance correlated with the event. Events
// for terminal instances or states with no matching transition are ignored.
func (o *Orchestrator) HandleEvent(ctx context.Context, event domain.Event) error {
	unlock := o.lock(event.CorrelationID)
	defer unlock()

	inst, err := o.store.Get(ctx, event.CorrelationID)
	if err != nil {
		return err
	}

	if inst == nil {
		if !o.def.InitiatingEvents[event.EventType] {
			return nil
		}
		return o.start(ctx, event)
	}

	if inst.Terminal() {
		return nil
	}

	if o.def.FailureEvents[event.EventType] {
		log.Warn().
			Str("sagaType", o.def.SagaType).
			Str("correlationId", inst.CorrelationID).
			Str("eventType", event.EventType).
			Msg("Failure event received, compensating saga")
		return o.compensate(ctx, inst, event)
	}

	transition, ok := o.def.Transitions[TransitionKey{State: inst.CurrentState, EventType: event.EventType}]
	if !ok {
		log.Debug().
			Str("sagaType", o.def.SagaType).
			Str("correlationId", inst.CorrelationID).
			Str("state", inst.CurrentState).
			Str("eventType", event.EventType).
			Msg("No transition for event in current state")
		return nil
	}

	delete(inst.AwaitedEvents, event.EventType)
	inst.CurrentState = transition.Next

	now := time.Now().UTC()
	if inst.Terminal() {
		inst.DeadlineAt = nil
		inst.CompletedAt = &now
	} else {
		deadline := now.Add(o.def.StateDeadline)
		inst.DeadlineAt = &deadline
	}

	if err := o.issue(ctx, inst, event, transition.Commands); err != nil {
		return err
	}

	if err := o.store.Save(ctx, inst); err != nil {
		return err
	}

	metrics.SagaTransition(o.def.SagaType, inst.CurrentState)
	log.Info().
		Str("sagaType", o.def.SagaType).
		Str("correlationId", inst.CorrelationID).
		Str("state", inst.CurrentState).
		Str("eventType", event.EventType).
		Msg("Saga transitioned")

	if inst.Terminal() {
		o.forget(inst.CorrelationID)
	}
	return nil
}

// SweepTimeouts compensates every non-terminal instance whose state deadline
// passed. Intended to be called on a schedule.
func (o *Orchestrator) SweepTimeouts(ctx context.Context) error {
	expired, err := o.store.ListExpired(ctx, time.Now().UTC(), o.sweepBatchSize)
	if err != nil {
		return err
	}

	for _, stale := range expired {
		if stale.SagaType != o.def.SagaType {
			continue
		}

		err := func() error {
			unlock := o.lock(stale.CorrelationID)
			defer unlock()

			inst, err := o.store.Get(ctx, stale.CorrelationID)
			if err != nil {
				return err
			}
			if inst == nil || inst.Terminal() {
				return nil
			}
			if inst.DeadlineAt == nil || inst.DeadlineAt.After(time.Now().UTC()) {
				return nil
			}

			log.Warn().
				Str("sagaType", o.def.SagaType).
				Str("correlationId", inst.CorrelationID).
				Str("state", inst.CurrentState).
				Msg("Saga state deadline exceeded, compensating")

			timeout := domain.Event{
				CorrelationID: inst.CorrelationID,
				EventType:     "TIMEOUT",
			}
			return o.compensate(ctx, inst, timeout)
		}()
		if err != nil {
			log.Error().Err(err).
				Str("correlationId", stale.CorrelationID).
				Msg("Failed to compensate timed out saga")
		}
	}

	return nil
}

func (o *Orchestrator) start(ctx context.Context, event domain.Event) error {
	inst := o.def.newInstance(event, time.Now().UTC())

	if err := o.store.Save(ctx, inst); err != nil {
		return err
	}

	metrics.SagaTransition(o.def.SagaType, inst.CurrentState)
	log.Info().
		Str("sagaType", o.def.SagaType).
		Str("correlationId", inst.CorrelationID).
		Str("state", inst.CurrentState).
		Msg("Saga started")

	return nil
}

// compensate issues the undo commands for the instance's current state. The
// attempt counter survives across retries; exhausting it parks the instance
// in FAILED with a critical error record.
func (o *Orchestrator) compensate(ctx context.Context, inst *Instance, event domain.Event) error {
	factories := o.def.Compensations[inst.CurrentState]
	now := time.Now().UTC()

	if err := o.issue(ctx, inst, event, factories); err != nil {
		inst.CompensationAttempts++
		if inst.CompensationAttempts >= o.compensationMaxRetries {
			inst.CurrentState = StateFailed
			inst.DeadlineAt = nil
			inst.FailedAt = &now

			if o.faults != nil {
				rec := faults.NewRecord(faults.ComponentSaga, inst.CorrelationID,
					domain.CodeCompensationFailed,
					fmt.Sprintf("compensation exhausted after %d attempts: %v", inst.CompensationAttempts, err),
					false).
					WithSeverity(faults.SeverityCritical).
					WithContext("saga_type", inst.SagaType)
				o.faults.Record(ctx, rec)
			}

			if saveErr := o.store.Save(ctx, inst); saveErr != nil {
				return saveErr
			}
			metrics.SagaTransition(o.def.SagaType, StateFailed)
			o.forget(inst.CorrelationID)
			return nil
		}

		if saveErr := o.store.Save(ctx, inst); saveErr != nil {
			return saveErr
		}
		return fmt.Errorf("compensation attempt %d for saga %s failed: %w",
			inst.CompensationAttempts, inst.CorrelationID, err)
	}

	inst.CurrentState = StateCompensated
	inst.DeadlineAt = nil
	inst.FailedAt = &now

	if err := o.store.Save(ctx, inst); err != nil {
		return err
	}

	metrics.SagaTransition(o.def.SagaType, StateCompensated)
	log.Info().
		Str("sagaType", o.def.SagaType).
		Str("correlationId", inst.CorrelationID).
		Msg("Saga compensated")

	o.forget(inst.CorrelationID)
	return nil
}

func (o *Orchestrator) issue(ctx context.Context, inst *Instance, event domain.Event, factories []CommandFactory) error {
	for _, factory := range factories {
		cmd, err := factory(inst, event)
		if err != nil {
			return fmt.Errorf("failed to build saga command: %w", err)
		}

		if _, err := o.issuer.Handle(ctx, cmd); err != nil {
			if o.faults != nil {
				rec := faults.NewRecord(faults.ComponentSaga, inst.CorrelationID,
					domain.ErrorCode(err), err.Error(), domain.IsRetryable(err)).
					WithContext("saga_type", inst.SagaType).
					WithContext("command_type", cmd.CommandType)
				o.faults.Record(ctx, rec)
			}
			return fmt.Errorf("saga command %s failed: %w", cmd.CommandType, err)
		}

		inst.IssuedCommands = append(inst.IssuedCommands, cmd.CommandID)
	}

	return nil
}

func (o *Orchestrator) lock(correlationID string) func() {
	o.mu.Lock()
	m, ok := o.locks[correlationID]
	if !ok {
		m = &sync.Mutex{}
		o.locks[correlationID] = m
	}
	o.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// forget drops the per-correlation mutex once the instance is terminal. A
// racing delivery recreates the entry, loads the terminal instance, and
// ignores it.
func (o *Orchestrator) forget(correlationID string) {
	o.mu.Lock()
	delete(o.locks, correlationID)
	o.mu.Unlock()
}
