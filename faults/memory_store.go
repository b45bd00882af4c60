package faults

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used for tests and single-node local runs
type MemoryStore struct {
	mu      sync.RWMutex
	records []ErrorRecord
}

// NewMemoryStore creates an empty in-memory error record store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an error record
func (s *MemoryStore) Record(ctx context.Context, rec ErrorRecord) {
	if rec.ErrorID == "" || rec.OccurredAt.IsZero() {
		filled := NewRecord(rec.SourceComponent, rec.CorrelationID, rec.Code, rec.Message, rec.Retryable)
		if rec.ErrorID == "" {
			rec.ErrorID = filled.ErrorID
		}
		if rec.OccurredAt.IsZero() {
			rec.OccurredAt = filled.OccurredAt
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// QueryByCorrelation returns all error records for a correlation id
func (s *MemoryStore) QueryByCorrelation(ctx context.Context, correlationID string) ([]ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ErrorRecord
	for _, rec := range s.records {
		if rec.CorrelationID == correlationID {
			out = append(out, rec)
		}
	}

	return out, nil
}

// QueryByWindow returns error records in [start, end) matching the filter
func (s *MemoryStore) QueryByWindow(ctx context.Context, start, end time.Time, filter Filter) ([]ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ErrorRecord
	for _, rec := range s.records {
		if rec.OccurredAt.Before(start) || !rec.OccurredAt.Before(end) {
			continue
		}
		if filter.SourceComponent != "" && rec.SourceComponent != filter.SourceComponent {
			continue
		}
		if filter.Severity != "" && rec.Severity != filter.Severity {
			continue
		}
		if filter.Code != "" && rec.Code != filter.Code {
			continue
		}
		if filter.Retryable != nil && rec.Retryable != *filter.Retryable {
			continue
		}
		out = append(out, rec)
	}

	return out, nil
}
