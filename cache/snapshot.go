package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Snapshot is a cached aggregate state at a known sequence position. It is
// purely an accelerator for rehydration; the event log stays authoritative
// and the cache is invalidated on every append.
type Snapshot struct {
	AggregateID string          `json:"aggregate_id"`
	Sequence    int64           `json:"sequence"`
	State       json.RawMessage `json:"state"`
	TakenAt     time.Time       `json:"taken_at"`
}

// SnapshotCache caches aggregate snapshots in Redis. A disabled cache is a
// valid no-op implementation so callers never need nil checks.
type SnapshotCache struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
}

// Options configures the snapshot cache connection
type Options struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// NewSnapshotCache creates a Redis-backed snapshot cache
func NewSnapshotCache(opts Options) (*SnapshotCache, error) {
	if !opts.Enabled {
		return &SnapshotCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &SnapshotCache{
		client:  client,
		enabled: true,
		ttl:     opts.TTL,
	}, nil
}

// Enabled reports whether the cache is active
func (c *SnapshotCache) Enabled() bool {
	return c.enabled
}

func snapshotKey(aggregateID string) string {
	return fmt.Sprintf("snapshot:%s", aggregateID)
}

// Get returns the cached snapshot for an aggregate, or nil on a miss. Cache
// failures are logged and treated as misses.
func (c *SnapshotCache) Get(ctx context.Context, aggregateID string) *Snapshot {
	if !c.enabled {
		return nil
	}

	data, err := c.client.Get(ctx, snapshotKey(aggregateID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("aggregateID", aggregateID).Msg("Snapshot cache read failed")
		}
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("aggregateID", aggregateID).Msg("Failed to unmarshal cached snapshot")
		return nil
	}

	return &snap
}

// Set stores a snapshot of an aggregate's state
func (c *SnapshotCache) Set(ctx context.Context, aggregateID string, sequence int64, state interface{}) error {
	if !c.enabled {
		return nil
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot state")
	}

	snap := Snapshot{
		AggregateID: aggregateID,
		Sequence:    sequence,
		State:       stateJSON,
		TakenAt:     time.Now().UTC(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot")
	}

	if err := c.client.Set(ctx, snapshotKey(aggregateID), data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to store snapshot in Redis")
	}

	return nil
}

// Invalidate drops the cached snapshot after an append
func (c *SnapshotCache) Invalidate(ctx context.Context, aggregateID string) {
	if !c.enabled {
		return
	}

	if err := c.client.Del(ctx, snapshotKey(aggregateID)).Err(); err != nil {
		log.Warn().Err(err).Str("aggregateID", aggregateID).Msg("Failed to invalidate snapshot")
	}
}
