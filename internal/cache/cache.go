// Package cache implements the session-scoped metrics cache.
//
// Two invalidation mechanisms are layered: a schema version stamped into
// every entry (a mismatch is an unconditional miss and purges the whole
// cache, never a partial migration) and a TTL on the write timestamp.
// Better to refetch than to serve mis-shaped data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"offerboard_backend/platform/logger"
)

// Slice names the five independently keyed payloads written together in
// one refresh cycle.
type Slice string

const (
	SliceMetrics     Slice = "metrics"
	SliceOperators   Slice = "operators"
	SliceStatuses    Slice = "statuses"
	SliceAssignments Slice = "assignments"
	SliceMappings    Slice = "mappings"
)

// Slices lists every cache slice, used for wholesale purges.
var Slices = []Slice{SliceMetrics, SliceOperators, SliceStatuses, SliceAssignments, SliceMappings}

// Store is the key/value backend. Get reports a plain miss with found
// set to false and no error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// entry is the stored envelope around every payload.
type entry struct {
	Version   int             `json:"version"`
	WrittenAt int64           `json:"writtenAt"`
	Payload   json.RawMessage `json:"payload"`
}

// Manager validates entries against the running build's expected version
// and TTL. Reads never surface backend or corruption errors to the
// caller; anything suspect is a miss.
type Manager struct {
	store   Store
	version int
	ttl     time.Duration
	now     func() time.Time
	log     *logger.Logger
}

// NewManager creates a cache manager.
func NewManager(store Store, version int, ttl time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		store:   store,
		version: version,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// WithClock overrides the clock, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Write stores one slice stamped with the current version and timestamp.
// Slices are keyed independently, so one slice failing to serialize
// never corrupts the others already written.
func (m *Manager) Write(ctx context.Context, slice Slice, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache slice %s: %w", slice, err)
	}

	data, err := json.Marshal(entry{
		Version:   m.version,
		WrittenAt: m.now().UnixMilli(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", slice, err)
	}

	if err := m.store.Set(ctx, string(slice), data); err != nil {
		return fmt.Errorf("write cache slice %s: %w", slice, err)
	}
	m.log.CacheEvent("write", string(slice))
	return nil
}

// Read loads one slice into out. It reports a miss for absent keys,
// backend errors, corruption, stale versions (which also purge the whole
// cache), and expired TTLs. A hit fully unmarshals into out.
func (m *Manager) Read(ctx context.Context, slice Slice, out any) bool {
	data, found, err := m.store.Get(ctx, string(slice))
	if err != nil {
		m.log.CacheEvent("backend_error", string(slice))
		return false
	}
	if !found {
		m.log.CacheEvent("miss", string(slice))
		return false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		m.log.CacheEvent("corrupt", string(slice))
		m.Clear(ctx)
		return false
	}

	if e.Version != m.version {
		m.log.CacheEvent("version_mismatch", string(slice))
		m.Clear(ctx)
		return false
	}

	age := m.now().Sub(time.UnixMilli(e.WrittenAt))
	if age >= m.ttl {
		m.log.CacheEvent("expired", string(slice))
		return false
	}

	if err := json.Unmarshal(e.Payload, out); err != nil {
		m.log.CacheEvent("corrupt", string(slice))
		m.Clear(ctx)
		return false
	}

	m.log.CacheEvent("hit", string(slice))
	return true
}

// Clear purges every slice wholesale. Stale entries are never migrated.
func (m *Manager) Clear(ctx context.Context) {
	keys := make([]string, len(Slices))
	for i, s := range Slices {
		keys[i] = string(s)
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		m.log.CacheEvent("purge_failed", "all")
		return
	}
	m.log.CacheEvent("purge", "all")
}

// RedisStore is the Redis-backed Store, scoped by a session prefix.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a Redis store scoped to the given session key.
func NewRedisStore(rdb *redis.Client, sessionKey string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "cache:" + sessionKey + ":"}
}

// Get returns the value for key, reporting absence as a plain miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores the value for key.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, s.prefix+key, value, 0).Err()
}

// Delete removes the given keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	return s.rdb.Del(ctx, prefixed...).Err()
}

var _ Store = (*RedisStore)(nil)
