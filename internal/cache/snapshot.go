// Package cache keeps the latest session snapshot in Redis so dashboard
// reloads do not wait for the next tick.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/fitsession/internal/session"
)

// ErrNoSnapshot is returned when no snapshot has been stored yet.
var ErrNoSnapshot = errors.New("no snapshot cached")

const (
	latestKey  = "fitsession:latest"
	defaultTTL = time.Hour
)

// Connect returns a Redis client for addr, or nil when addr is empty.
// A nil client disables caching; callers treat that as a valid setup.
func Connect(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// SnapshotCache stores the most recent session summary.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache wraps client. A nil client yields a cache whose
// writes are no-ops and whose reads report ErrNoSnapshot.
func NewSnapshotCache(client *redis.Client) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: defaultTTL}
}

// StoreLatest overwrites the cached snapshot.
func (c *SnapshotCache) StoreLatest(ctx context.Context, summary session.Summary) error {
	if c.client == nil {
		return nil
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, latestKey, body, c.ttl).Err()
}

// Latest returns the cached snapshot.
func (c *SnapshotCache) Latest(ctx context.Context) (session.Summary, error) {
	if c.client == nil {
		return session.Summary{}, ErrNoSnapshot
	}
	body, err := c.client.Get(ctx, latestKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.Summary{}, ErrNoSnapshot
		}
		return session.Summary{}, err
	}
	var summary session.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return session.Summary{}, err
	}
	return summary, nil
}

// Clear drops the cached snapshot.
func (c *SnapshotCache) Clear(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, latestKey).Err()
}
