package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/models"
)

// Store persists saga instances keyed by correlation id
type Store interface {
	// Get returns nil when no instance exists for the correlation id
	Get(ctx context.Context, correlationID string) (*Instance, error)
	Save(ctx context.Context, inst *Instance) error

	// ListExpired returns non-terminal instances whose deadline passed
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Instance, error)
}

// GormStore persists saga instances in the relational database
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a saga store over the given database
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, correlationID string) (*Instance, error) {
	var row models.SagaInstance
	err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load saga %s: %w", correlationID, err)
	}

	return fromModel(&row)
}

func (s *GormStore) Save(ctx context.Context, inst *Instance) error {
	row, err := toModel(inst)
	if err != nil {
		return err
	}

	var existing models.SagaInstance
	err = s.db.WithContext(ctx).
		Where("correlation_id = ?", inst.CorrelationID).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load saga %s: %w", inst.CorrelationID, err)
		}
		if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
			return fmt.Errorf("failed to create saga %s: %w", inst.CorrelationID, err)
		}
		return nil
	}

	row.ID = existing.ID
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("failed to save saga %s: %w", inst.CorrelationID, err)
	}
	return nil
}

func (s *GormStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Instance, error) {
	var rows []models.SagaInstance
	err := s.db.WithContext(ctx).
		Where("deadline_at <= ?", now).
		Where("current_state NOT IN ?", []string{StateCompleted, StateCompensated, StateFailed}).
		Order("deadline_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sagas: %w", err)
	}

	instances := make([]*Instance, 0, len(rows))
	for i := range rows {
		inst, err := fromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func toModel(inst *Instance) (*models.SagaInstance, error) {
	awaited, err := json.Marshal(inst.AwaitedEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal awaited events: %w", err)
	}
	issued, err := json.Marshal(inst.IssuedCommands)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issued commands: %w", err)
	}
	context, err := json.Marshal(inst.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal saga context: %w", err)
	}

	return &models.SagaInstance{
		CorrelationID:        inst.CorrelationID,
		SagaType:             inst.SagaType,
		CurrentState:         inst.CurrentState,
		AwaitedEvents:        awaited,
		IssuedCommands:       issued,
		Context:              context,
		CompensationAttempts: inst.CompensationAttempts,
		DeadlineAt:           inst.DeadlineAt,
		StartedAt:            inst.StartedAt,
		CompletedAt:          inst.CompletedAt,
		FailedAt:             inst.FailedAt,
	}, nil
}

func fromModel(row *models.SagaInstance) (*Instance, error) {
	inst := &Instance{
		CorrelationID:        row.CorrelationID,
		SagaType:             row.SagaType,
		CurrentState:         row.CurrentState,
		AwaitedEvents:        make(map[string]bool),
		Context:              make(map[string]string),
		CompensationAttempts: row.CompensationAttempts,
		DeadlineAt:           row.DeadlineAt,
		StartedAt:            row.StartedAt,
		CompletedAt:          row.CompletedAt,
		FailedAt:             row.FailedAt,
	}

	if len(row.AwaitedEvents) > 0 {
		if err := json.Unmarshal(row.AwaitedEvents, &inst.AwaitedEvents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal awaited events for %s: %w", row.CorrelationID, err)
		}
	}
	if len(row.IssuedCommands) > 0 {
		if err := json.Unmarshal(row.IssuedCommands, &inst.IssuedCommands); err != nil {
			return nil, fmt.Errorf("failed to unmarshal issued commands for %s: %w", row.CorrelationID, err)
		}
	}
	if len(row.Context) > 0 {
		if err := json.Unmarshal(row.Context, &inst.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal saga context for %s: %w", row.CorrelationID, err)
		}
	}

	return inst, nil
}

// MemoryStore is an in-memory saga store for tests and single-node runs
type MemoryStore struct {
	mu        sync.Mutex
	instances map[string]*Instance
}

// NewMemoryStore creates an empty in-memory saga store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*Instance),
	}
}

func (s *MemoryStore) Get(ctx context.Context, correlationID string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[correlationID]
	if !ok {
		return nil, nil
	}
	return cloneInstance(inst), nil
}

func (s *MemoryStore) Save(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.CorrelationID] = cloneInstance(inst)
	return nil
}

func (s *MemoryStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*Instance
	for _, inst := range s.instances {
		if inst.Terminal() || inst.DeadlineAt == nil || inst.DeadlineAt.After(now) {
			continue
		}
		expired = append(expired, cloneInstance(inst))
		if len(expired) == limit {
			break
		}
	}
	return expired, nil
}

func cloneInstance(inst *Instance) *Instance {
	clone := *inst
	clone.AwaitedEvents = make(map[string]bool, len(inst.AwaitedEvents))
	for k, v := range inst.AwaitedEvents {
		clone.AwaitedEvents[k] = v
	}
	clone.Context = make(map[string]string, len(inst.Context))
	for k, v := range inst.Context {
		clone.Context[k] = v
	}
	clone.IssuedCommands = append([]string(nil), inst.IssuedCommands...)
	return &clone
}
