// Package statscache keeps short-lived redis snapshots of session stats
// for dashboards. Snapshots may lag the store; authoritative stats are
// always recomputed by the attendance service.
package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"presence/internal/attendance"
)

const keyPrefix = "presence:stats:"

// DefaultTTL applies when the cache is built with a zero ttl.
const DefaultTTL = 5 * time.Minute

// ErrMiss is returned when no snapshot exists for a session.
var ErrMiss = errors.New("no stats snapshot")

// Snapshot is cached stats plus the time they were computed.
type Snapshot struct {
	attendance.SessionStats
	RefreshedAt time.Time `json:"refreshedAt"`
}

// Cache stores snapshots in redis.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// New creates a snapshot cache.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Put stores stats for their session, replacing any earlier snapshot.
func (c *Cache) Put(ctx context.Context, stats attendance.SessionStats) (Snapshot, error) {
	snap := Snapshot{SessionStats: stats, RefreshedAt: c.now()}
	raw, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, err
	}
	if err := c.rdb.Set(ctx, keyPrefix+stats.SessionID, raw, c.ttl).Err(); err != nil {
		return Snapshot{}, fmt.Errorf("store snapshot: %w", err)
	}
	return snap, nil
}

// Get returns the snapshot for sessionID or ErrMiss.
func (c *Cache) Get(ctx context.Context, sessionID string) (Snapshot, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrMiss
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Drop removes a session's snapshot.
func (c *Cache) Drop(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, keyPrefix+sessionID).Err()
}
