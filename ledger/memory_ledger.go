package ledger

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	status      string
	resultHash  string
	reason      string
	startedAt   time.Time
	completedAt time.Time
}

// MemoryLedger is an in-memory Ledger with the same TryBegin semantics as the
// GORM implementation. Used for tests and single-node local runs.
type MemoryLedger struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	staleAfter time.Duration
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger(staleAfter time.Duration) *MemoryLedger {
	return &MemoryLedger{
		entries:    make(map[string]*memoryEntry),
		staleAfter: staleAfter,
	}
}

func ledgerKey(eventID, consumerID string) string {
	return eventID + "|" + consumerID
}

// TryBegin claims processing of an event for a consumer
func (l *MemoryLedger) TryBegin(ctx context.Context, eventID, consumerID string) (BeginResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	key := ledgerKey(eventID, consumerID)

	entry, ok := l.entries[key]
	if !ok {
		l.entries[key] = &memoryEntry{status: StatusPending, startedAt: now}
		return Acquired, nil
	}

	switch entry.status {
	case StatusCompleted:
		return AlreadyCompleted, nil
	case StatusFailed:
		entry.status = StatusPending
		entry.startedAt = now
		entry.reason = ""
		return Acquired, nil
	default:
		if now.Sub(entry.startedAt) > l.staleAfter {
			entry.startedAt = now
			return Acquired, nil
		}
		return InProgressElsewhere, nil
	}
}

// Complete marks the pair as done
func (l *MemoryLedger) Complete(ctx context.Context, eventID, consumerID, resultHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ledgerKey(eventID, consumerID)]
	if !ok || entry.status == StatusCompleted {
		return nil
	}

	entry.status = StatusCompleted
	entry.resultHash = resultHash
	entry.completedAt = time.Now().UTC()

	return nil
}

// Fail marks the pair as failed, leaving it redeliverable
func (l *MemoryLedger) Fail(ctx context.Context, eventID, consumerID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ledgerKey(eventID, consumerID)]
	if !ok || entry.status != StatusPending {
		return nil
	}

	entry.status = StatusFailed
	entry.reason = reason

	return nil
}

// Purge deletes completed entries past the retention window
func (l *MemoryLedger) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var purged int64
	for key, entry := range l.entries {
		if entry.status == StatusCompleted && entry.completedAt.Before(olderThan) {
			delete(l.entries, key)
			purged++
		}
	}

	return purged, nil
}
