package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotifiedStore remembers which runs already produced a notice.
type NotifiedStore interface {
	// MarkNotified records runID and reports whether this call set the mark.
	MarkNotified(ctx context.Context, runID string) (bool, error)
	// Unmark clears the mark.
	Unmark(ctx context.Context, runID string) error
	IsNotified(ctx context.Context, runID string) (bool, error)
}

// MemoryStore is a process-local NotifiedStore.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[string]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]struct{})}
}

func (m *MemoryStore) MarkNotified(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; ok {
		return false, nil
	}
	m.runs[runID] = struct{}{}
	return true, nil
}

func (m *MemoryStore) Unmark(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	return nil
}

func (m *MemoryStore) IsNotified(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[runID]
	return ok, nil
}

// RedisStore keeps marks in Redis so restarts and replicas do not post a
// notice twice.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store using keys "<prefix><runID>". A zero ttl
// keeps marks forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "raidbot:notified:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(runID string) string { return r.prefix + runID }

func (r *RedisStore) MarkNotified(ctx context.Context, runID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(runID), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("notify: mark %s: %w", runID, err)
	}
	return ok, nil
}

func (r *RedisStore) Unmark(ctx context.Context, runID string) error {
	if err := r.client.Del(ctx, r.key(runID)).Err(); err != nil {
		return fmt.Errorf("notify: unmark %s: %w", runID, err)
	}
	return nil
}

func (r *RedisStore) IsNotified(ctx context.Context, runID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(runID)).Result()
	if err != nil {
		return false, fmt.Errorf("notify: check %s: %w", runID, err)
	}
	return n > 0, nil
}

// Ping reports Redis reachability for health checks.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
