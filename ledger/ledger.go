package ledger

import (
	"context"
	"time"
)

// Idempotency record statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// BeginResult is the outcome of TryBegin
type BeginResult int

const (
	// Acquired means the caller owns processing of this (event, consumer) pair
	Acquired BeginResult = iota
	// AlreadyCompleted means a prior delivery finished; perform no side effects
	AlreadyCompleted
	// InProgressElsewhere means another worker holds the pair; back off and
	// let the bus redeliver
	InProgressElsewhere
)

func (r BeginResult) String() string {
	switch r {
	case Acquired:
		return "acquired"
	case AlreadyCompleted:
		return "already_completed"
	case InProgressElsewhere:
		return "in_progress_elsewhere"
	default:
		return "unknown"
	}
}

// Ledger records which (event, consumer) pairs have completed so that
// at-least-once redelivery is safe. TryBegin is the linearization point: at
// most one caller receives Acquired for a given key.
type Ledger interface {
	TryBegin(ctx context.Context, eventID, consumerID string) (BeginResult, error)
	Complete(ctx context.Context, eventID, consumerID, resultHash string) error
	Fail(ctx context.Context, eventID, consumerID, reason string) error

	// Purge garbage-collects completed entries older than the cutoff.
	// Redelivery beyond the retention window is assumed impossible given
	// upstream retry limits.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}
