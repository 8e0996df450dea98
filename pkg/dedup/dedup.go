// Package dedup tracks which match identifiers have already been scheduled
// for fetch. A claim succeeds exactly once per identifier for the life of
// the store.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	dedupClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_dedup_claims_total",
		Help: "Match id claim attempts by result (claimed, duplicate)",
	}, []string{"result"})
)

// Store is the seen-match set.
type Store interface {
	// TryClaim tests membership and inserts matchID if absent. It returns
	// true exactly once per distinct matchID.
	TryClaim(ctx context.Context, matchID string) (bool, error)

	// Count returns how many identifiers have been claimed.
	Count(ctx context.Context) (int64, error)
}

// Compile-time interface checks.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// MemoryStore is a process-lifetime Store guarded by a single mutex.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

// TryClaim holds the lock only for the test-and-insert.
func (m *MemoryStore) TryClaim(_ context.Context, matchID string) (bool, error) {
	m.mu.Lock()
	_, dup := m.seen[matchID]
	if !dup {
		m.seen[matchID] = struct{}{}
	}
	m.mu.Unlock()

	recordClaim(!dup)
	return !dup, nil
}

// Count returns the number of claimed identifiers.
func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.seen)), nil
}

// RedisStore keeps the seen set in a Redis set. Runs that use the same
// namespace share claims, so a namespace outliving one run must be chosen
// explicitly.
type RedisStore struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisStore creates a store using the set at namespace. Collectors for
// different regions should use different namespaces. A positive ttl expires
// the set that long after its last claim.
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	return &RedisStore{redis: client, key: "collector:dedup:" + namespace, ttl: ttl}, nil
}

// TryClaim relies on SADD reporting whether the member was added.
func (r *RedisStore) TryClaim(ctx context.Context, matchID string) (bool, error) {
	var added *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, r.key, matchID)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim match id: %w", err)
	}
	claimed := added.Val() == 1
	recordClaim(claimed)
	return claimed, nil
}

// Count returns the cardinality of the seen set.
func (r *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := r.redis.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count claimed match ids: %w", err)
	}
	return n, nil
}

// Key returns the Redis key backing the store.
func (r *RedisStore) Key() string {
	return r.key
}

func recordClaim(claimed bool) {
	if claimed {
		dedupClaimsTotal.WithLabelValues("claimed").Inc()
		return
	}
	dedupClaimsTotal.WithLabelValues("duplicate").Inc()
}
