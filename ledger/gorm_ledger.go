package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/models"
)

// GormLedger implements Ledger on Postgres. The unique
// (event_id, consumer_id) index makes the pending insert in TryBegin the
// linearization point; conditional updates reclaim failed or stale entries.
type GormLedger struct {
	db         *gorm.DB
	staleAfter time.Duration
}

// NewGormLedger creates a new GORM idempotency ledger. staleAfter bounds how
// long a pending entry blocks other workers before it is presumed orphaned
// by a crash and reclaimed.
func NewGormLedger(db *gorm.DB, staleAfter time.Duration) *GormLedger {
	return &GormLedger{db: db, staleAfter: staleAfter}
}

// TryBegin claims processing of an event for a consumer
func (l *GormLedger) TryBegin(ctx context.Context, eventID, consumerID string) (BeginResult, error) {
	now := time.Now().UTC()

	record := models.IdempotencyRecord{
		EventID:    eventID,
		ConsumerID: consumerID,
		Status:     StatusPending,
		StartedAt:  now,
	}

	err := l.db.WithContext(ctx).Create(&record).Error
	if err == nil {
		return Acquired, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return InProgressElsewhere, fmt.Errorf("failed to create idempotency record: %w", err)
	}

	var existing models.IdempotencyRecord
	if err := l.db.WithContext(ctx).
		Where("event_id = ? AND consumer_id = ?", eventID, consumerID).
		First(&existing).Error; err != nil {
		return InProgressElsewhere, fmt.Errorf("failed to load idempotency record: %w", err)
	}

	switch existing.Status {
	case StatusCompleted:
		return AlreadyCompleted, nil

	case StatusFailed:
		return l.reclaim(ctx, existing.ID, StatusFailed, time.Time{}, now)

	case StatusPending:
		staleBefore := now.Add(-l.staleAfter)
		if existing.StartedAt.After(staleBefore) {
			return InProgressElsewhere, nil
		}
		// The owning worker presumably crashed; take over.
		return l.reclaim(ctx, existing.ID, StatusPending, staleBefore, now)

	default:
		return InProgressElsewhere, fmt.Errorf("unexpected idempotency status %q", existing.Status)
	}
}

// reclaim conditionally flips an entry back to pending under this caller's
// ownership. The WHERE clause guarantees only one of the racing callers wins.
func (l *GormLedger) reclaim(ctx context.Context, id uint, fromStatus string, startedBefore, now time.Time) (BeginResult, error) {
	tx := l.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("id = ? AND status = ?", id, fromStatus)

	if !startedBefore.IsZero() {
		tx = tx.Where("started_at <= ?", startedBefore)
	}

	res := tx.Updates(map[string]interface{}{
		"status":     StatusPending,
		"started_at": now,
		"reason":     "",
	})
	if res.Error != nil {
		return InProgressElsewhere, fmt.Errorf("failed to reclaim idempotency record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return InProgressElsewhere, nil
	}

	return Acquired, nil
}

// Complete marks the pair as done. A pair transitions to completed at most
// once; repeat calls are no-ops.
func (l *GormLedger) Complete(ctx context.Context, eventID, consumerID, resultHash string) error {
	now := time.Now().UTC()

	if err := l.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("event_id = ? AND consumer_id = ? AND status <> ?", eventID, consumerID, StatusCompleted).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"result_hash":  resultHash,
			"completed_at": now,
		}).Error; err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}

	return nil
}

// Fail marks the pair as failed, leaving it redeliverable
func (l *GormLedger) Fail(ctx context.Context, eventID, consumerID, reason string) error {
	if err := l.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("event_id = ? AND consumer_id = ? AND status = ?", eventID, consumerID, StatusPending).
		Updates(map[string]interface{}{
			"status": StatusFailed,
			"reason": reason,
		}).Error; err != nil {
		return fmt.Errorf("failed to mark idempotency record failed: %w", err)
	}

	return nil
}

// Purge deletes completed entries past the retention window
func (l *GormLedger) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", StatusCompleted, olderThan).
		Delete(&models.IdempotencyRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge idempotency records: %w", res.Error)
	}

	return res.RowsAffected, nil
}
