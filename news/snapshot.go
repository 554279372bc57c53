package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot is a matched feed shared between engine instances.
type Snapshot struct {
	FetchedAt time.Time            `json:"fetchedAt"`
	Entries   map[string][]Article `json:"entries"`
}

// SnapshotStore persists the latest snapshot. Load returns nil, nil when
// nothing is stored.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot, ttl time.Duration) error
}

// MemoryStore keeps the snapshot in process.
type MemoryStore struct {
	mu      sync.Mutex
	snap    *Snapshot
	expires time.Time
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Load implements SnapshotStore.
func (m *MemoryStore) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil || (!m.expires.IsZero() && !m.now().Before(m.expires)) {
		return nil, nil
	}
	cp := *m.snap
	return &cp, nil
}

// Save implements SnapshotStore.
func (m *MemoryStore) Save(_ context.Context, snap *Snapshot, ttl time.Duration) error {
	if snap == nil {
		return errors.New("news: nil snapshot")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.snap = &cp
	m.expires = time.Time{}
	if ttl > 0 {
		m.expires = m.now().Add(ttl)
	}
	return nil
}

// DefaultRedisKey is where RedisStore keeps the snapshot.
const DefaultRedisKey = "globeview:news:snapshot"

// RedisStore shares the snapshot through Redis so every engine instance
// serves the same feed with one upstream fetch per TTL.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore wraps an existing client. An empty key uses
// DefaultRedisKey.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Load implements SnapshotStore.
func (r *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("news: redis get %s: %w", r.key, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("news: decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save implements SnapshotStore.
func (r *RedisStore) Save(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("news: encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("news: redis set %s: %w", r.key, err)
	}
	return nil
}
