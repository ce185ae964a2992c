package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sats-staker/internal/types"
)

// SnapshotKeyPrefix namespaces stored snapshots
const SnapshotKeyPrefix = "snapshot"

// SnapshotStore keeps the last good snapshot per address across restarts.
// Load returns (nil, nil) when nothing is stored.
type SnapshotStore interface {
	Save(ctx context.Context, snap *types.StakeSnapshot) error
	Load(ctx context.Context, address string) (*types.StakeSnapshot, error)
	Delete(ctx context.Context, address string) error
}

// GenerateSnapshotKey generates the cache key for an address
// Format: snapshot:<address>
func GenerateSnapshotKey(address string) string {
	return strings.Join([]string{SnapshotKeyPrefix, strings.ToLower(strings.TrimSpace(address))}, ":")
}

// RedisSnapshotStore stores JSON encoded snapshots in Redis
type RedisSnapshotStore struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewRedisSnapshotStore creates a snapshot store. A zero ttl keeps entries forever.
func NewRedisSnapshotStore(redis *RedisCache, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		redis: redis,
		ttl:   ttl,
	}
}

// Save stores a snapshot with the configured TTL
func (s *RedisSnapshotStore) Save(ctx context.Context, snap *types.StakeSnapshot) error {
	if snap == nil || snap.Address == "" {
		return fmt.Errorf("snapshot without address")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.redis.Set(ctx, GenerateSnapshotKey(snap.Address), data, s.ttl); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Load retrieves the stored snapshot for an address
func (s *RedisSnapshotStore) Load(ctx context.Context, address string) (*types.StakeSnapshot, error) {
	data, err := s.redis.Get(ctx, GenerateSnapshotKey(address))
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap types.StakeSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the stored snapshot for an address
func (s *RedisSnapshotStore) Delete(ctx context.Context, address string) error {
	return s.redis.Del(ctx, GenerateSnapshotKey(address))
}

// MemorySnapshotStore is a process-local store used when Redis is disabled
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]types.StakeSnapshot
}

// NewMemorySnapshotStore creates an empty in-memory store
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: make(map[string]types.StakeSnapshot)}
}

// Save stores a copy of the snapshot
func (s *MemorySnapshotStore) Save(ctx context.Context, snap *types.StakeSnapshot) error {
	if snap == nil || snap.Address == "" {
		return fmt.Errorf("snapshot without address")
	}
	cp := *snap
	cp.DefaultedFields = append([]string(nil), snap.DefaultedFields...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[GenerateSnapshotKey(snap.Address)] = cp
	return nil
}

// Load returns a copy of the stored snapshot
func (s *MemorySnapshotStore) Load(ctx context.Context, address string) (*types.StakeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[GenerateSnapshotKey(address)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// Delete removes the stored snapshot
func (s *MemorySnapshotStore) Delete(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, GenerateSnapshotKey(address))
	return nil
}
