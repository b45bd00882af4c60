package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Bikxs/skafu-core/cache"
	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/eventstore"
	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/messaging"
	"github.com/Bikxs/skafu-core/metrics"
)

// staged is an event computed by a decision function, before the store
// assigns its sequence number
type staged struct {
	eventType string
	payload   any
}

// Options bound the conflict retry loop and snapshot refresh cadence. No
// authoritative values exist for these, so they come from configuration.
type Options struct {
	MaxAttempts       int
	SnapshotFrequency int
}

// Processor validates and executes commands against current aggregate state.
// State is always rehydrated by folding the event stream; the snapshot cache
// is an accelerator only and is invalidated on every append.
type Processor struct {
	store             eventstore.EventStore
	bus               messaging.Publisher
	snapshots         *cache.SnapshotCache
	faults            faults.Recorder
	maxAttempts       int
	snapshotFrequency int
}

// NewProcessor creates a command processor
func NewProcessor(store eventstore.EventStore, bus messaging.Publisher, snapshots *cache.SnapshotCache, recorder faults.Recorder, opts Options) *Processor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.SnapshotFrequency <= 0 {
		opts.SnapshotFrequency = 100
	}

	return &Processor{
		store:             store,
		bus:               bus,
		snapshots:         snapshots,
		faults:            recorder,
		maxAttempts:       opts.MaxAttempts,
		snapshotFrequency: opts.SnapshotFrequency,
	}
}

// Handle executes one command: rehydrate, validate, decide, append. On a
// concurrency conflict the command is re-validated against the reloaded state
// up to the configured bound, then the conflict is surfaced to the caller.
func (p *Processor) Handle(ctx context.Context, cmd domain.Command) (*domain.CommandResult, error) {
	start := time.Now()
	cmd.Normalize()

	log.Info().
		Str("commandType", cmd.CommandType).
		Str("aggregateID", cmd.AggregateID).
		Str("correlationID", cmd.CorrelationID).
		Msg("Handling command")

	result, err := p.process(ctx, cmd)

	outcome := "ok"
	if err != nil {
		outcome = domain.ErrorCode(err)
		p.recordFailure(ctx, cmd, err)
	}
	metrics.CommandProcessed(cmd.CommandType, outcome, time.Since(start))

	return result, err
}

func (p *Processor) process(ctx context.Context, cmd domain.Command) (*domain.CommandResult, error) {
	if cmd.AggregateID == "" {
		return nil, &domain.ValidationError{Field: "aggregate_id", Reason: "required"}
	}

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w (after %d attempts)", domain.ErrCommandTimeout, attempt)
		}
		if attempt > 0 {
			metrics.CommandConflictRetry()
		}

		committed, err := p.attempt(ctx, cmd)
		if err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				// A concurrent writer won sequence ownership; reload and
				// re-validate rather than blindly retrying the same events.
				lastErr = err
				continue
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				// Expired mid-append: the store may or may not have committed,
				// so report an unknown outcome rather than an internal error.
				return nil, fmt.Errorf("%w: %v", domain.ErrCommandTimeout, err)
			}
			return nil, err
		}

		p.afterCommit(ctx, cmd, committed)

		return &domain.CommandResult{
			CommandID:      cmd.CommandID,
			CorrelationID:  cmd.CorrelationID,
			ProducedEvents: committed,
		}, nil
	}

	return nil, fmt.Errorf("command %s gave up after %d attempts: %w",
		cmd.CommandType, p.maxAttempts, lastErr)
}

func (p *Processor) attempt(ctx context.Context, cmd domain.Command) ([]domain.Event, error) {
	switch cmd.CommandType {
	case domain.CreateProject, domain.UpdateProject, domain.SelectTemplate,
		domain.CancelTemplateSelection, domain.AttachRepository, domain.FailRepository,
		domain.RequestAnalysis, domain.CompleteAnalysis, domain.MarkProjectReady,
		domain.ArchiveProject:
		return p.attemptProject(ctx, cmd)

	case domain.RegisterTemplate, domain.UpdateTemplate, domain.PublishTemplate,
		domain.DeprecateTemplate:
		return p.attemptTemplate(ctx, cmd)

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCommandType, cmd.CommandType)
	}
}

func (p *Processor) attemptProject(ctx context.Context, cmd domain.Command) ([]domain.Event, error) {
	agg, err := p.loadProject(ctx, cmd.AggregateID)
	if err != nil {
		return nil, err
	}

	stagedEvents, err := decideProject(agg, cmd)
	if err != nil {
		return nil, err
	}

	return p.append(ctx, domain.AggregateProject, agg.AggregateID(), agg.Sequence(), cmd, stagedEvents)
}

func (p *Processor) attemptTemplate(ctx context.Context, cmd domain.Command) ([]domain.Event, error) {
	agg, err := p.loadTemplate(ctx, cmd.AggregateID)
	if err != nil {
		return nil, err
	}

	stagedEvents, err := decideTemplate(agg, cmd)
	if err != nil {
		return nil, err
	}

	return p.append(ctx, domain.AggregateTemplate, agg.AggregateID(), agg.Sequence(), cmd, stagedEvents)
}

func (p *Processor) append(ctx context.Context, aggregateType, aggregateID string, expectedSequence int64, cmd domain.Command, stagedEvents []staged) ([]domain.Event, error) {
	if len(stagedEvents) == 0 {
		return nil, nil
	}

	events := make([]domain.Event, len(stagedEvents))
	for i, s := range stagedEvents {
		events[i] = domain.NewEvent(aggregateType, aggregateID, s.eventType, s.payload, cmd.CorrelationID, cmd.CommandID)
	}

	committed, err := p.store.Append(ctx, aggregateID, expectedSequence, events)
	if err != nil {
		return nil, err
	}

	metrics.EventsAppended(aggregateType, len(committed))

	return committed, nil
}

// afterCommit handles the non-authoritative follow-ups of a successful
// append: snapshot invalidation and bus publication. The events are durable
// at this point; a failed publish is recorded and recovered by republish.
func (p *Processor) afterCommit(ctx context.Context, cmd domain.Command, committed []domain.Event) {
	if len(committed) == 0 {
		return
	}

	if p.snapshots != nil {
		p.snapshots.Invalidate(ctx, cmd.AggregateID)
	}

	if err := p.bus.Publish(ctx, committed...); err != nil {
		log.Error().
			Err(err).
			Str("aggregateID", cmd.AggregateID).
			Int("eventCount", len(committed)).
			Msg("Failed to publish committed events")

		rec := faults.NewRecord(faults.ComponentBus, cmd.CorrelationID, domain.CodeInternal,
			fmt.Sprintf("failed to publish %d committed events: %v", len(committed), err), true).
			WithContext("aggregate_id", cmd.AggregateID).
			WithContext("command_id", cmd.CommandID)
		p.faults.Record(ctx, rec)
		metrics.ErrorRecorded(rec.SourceComponent, rec.Severity)
	}
}

func (p *Processor) loadProject(ctx context.Context, aggregateID string) (*domain.ProjectAggregate, error) {
	agg := domain.NewProjectAggregate(aggregateID)
	if err := p.rehydrate(ctx, agg, &agg.State); err != nil {
		return nil, err
	}
	return agg, nil
}

func (p *Processor) loadTemplate(ctx context.Context, aggregateID string) (*domain.TemplateAggregate, error) {
	agg := domain.NewTemplateAggregate(aggregateID)
	if err := p.rehydrate(ctx, agg, &agg.State); err != nil {
		return nil, err
	}
	return agg, nil
}

// rehydrate folds the aggregate's stream, starting from a cached snapshot
// when one is available. state must point at the aggregate's state struct.
func (p *Processor) rehydrate(ctx context.Context, agg interface {
	domain.Aggregate
	SetSequence(int64)
}, state interface{}) error {
	fromSequence := int64(1)

	if p.snapshots != nil {
		if snap := p.snapshots.Get(ctx, agg.AggregateID()); snap != nil {
			if err := unmarshalState(snap.State, state); err == nil {
				agg.SetSequence(snap.Sequence)
				fromSequence = snap.Sequence + 1
			} else {
				log.Warn().Err(err).Str("aggregateID", agg.AggregateID()).Msg("Discarding unreadable snapshot")
			}
		}
	}

	events, err := p.store.ReadStream(ctx, agg.AggregateID(), fromSequence)
	if err != nil {
		return err
	}

	if err := domain.Replay(agg, events); err != nil {
		return err
	}

	// Refresh the snapshot when rehydration had to replay a long tail.
	if p.snapshots != nil && len(events) >= p.snapshotFrequency {
		if err := p.snapshots.Set(ctx, agg.AggregateID(), agg.Sequence(), state); err != nil {
			log.Warn().Err(err).Str("aggregateID", agg.AggregateID()).Msg("Failed to refresh snapshot")
		}
	}

	return nil
}

func (p *Processor) recordFailure(ctx context.Context, cmd domain.Command, err error) {
	code := domain.ErrorCode(err)
	rec := faults.NewRecord(faults.ComponentCommandProcessor, cmd.CorrelationID, code, err.Error(), domain.IsRetryable(err)).
		WithContext("command_id", cmd.CommandID).
		WithContext("command_type", cmd.CommandType).
		WithContext("aggregate_id", cmd.AggregateID)

	if code == domain.CodeCommandTimeout {
		// Timeout means unknown outcome, not failure.
		rec = rec.WithSeverity(faults.SeverityWarning)
	}

	p.faults.Record(ctx, rec)
	metrics.ErrorRecorded(rec.SourceComponent, rec.Severity)
}
