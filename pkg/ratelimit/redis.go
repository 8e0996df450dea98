package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces budget entries in Redis.
const RedisKeyPrefix = "collector:budget:"

// reserveScript checks every key against its interval and, only if all are
// eligible, stores now on each key. Timestamps are Unix microseconds.
//
// KEYS[i]   = budget key for class i
// ARGV[1]   = now
// ARGV[i+1] = interval for class i
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
for i, key in ipairs(KEYS) do
    local last = redis.call("GET", key)
    if last and (now - tonumber(last)) < tonumber(ARGV[i + 1]) then
        return 0
    end
end
for i, key in ipairs(KEYS) do
    local ttl = math.floor(tonumber(ARGV[i + 1]) / 1000) * 2 + 1000
    redis.call("SET", key, ARGV[1], "PX", ttl)
end
return 1
`)

// Compile-time interface check.
var _ Table = (*RedisTable)(nil)

// RedisTable is a Table shared by every collector process pointed at the same
// Redis. Reservations run as a single Lua script, so check-then-reserve stays
// atomic across processes.
type RedisTable struct {
	redis  *redis.Client
	limits Limits
}

// NewRedisTable creates a Redis-backed table.
func NewRedisTable(client *redis.Client, limits Limits) (*RedisTable, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &RedisTable{redis: client, limits: limits.Clone()}, nil
}

// IsEligible reads the last reservation for (cred, class).
func (t *RedisTable) IsEligible(ctx context.Context, cred riot.Credential, class EndpointClass, now time.Time) (bool, error) {
	interval, err := t.limits.Interval(class)
	if err != nil {
		return false, err
	}

	last, err := t.redis.Get(ctx, budgetRedisKey(cred, class)).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get budget entry: %w", err)
	}
	return now.UnixMicro()-last >= interval.Microseconds(), nil
}

// TryReserve reserves every class or none of them.
func (t *RedisTable) TryReserve(ctx context.Context, cred riot.Credential, now time.Time, classes ...EndpointClass) (bool, error) {
	if len(classes) == 0 {
		return true, nil
	}

	keys := make([]string, len(classes))
	args := make([]interface{}, 0, len(classes)+1)
	args = append(args, strconv.FormatInt(now.UnixMicro(), 10))
	for i, class := range classes {
		interval, err := t.limits.Interval(class)
		if err != nil {
			return false, err
		}
		keys[i] = budgetRedisKey(cred, class)
		args = append(args, strconv.FormatInt(interval.Microseconds(), 10))
	}

	ok, err := reserveScript.Run(ctx, t.redis, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("reserve budget: %w", err)
	}

	result := "denied"
	if ok == 1 {
		result = "reserved"
	}
	for _, class := range classes {
		budgetReservationsTotal.WithLabelValues(string(class), result).Inc()
	}
	return ok == 1, nil
}

// budgetRedisKey keys entries by a digest so raw API keys never reach Redis.
func budgetRedisKey(cred riot.Credential, class EndpointClass) string {
	sum := sha256.Sum256([]byte(cred))
	return RedisKeyPrefix + hex.EncodeToString(sum[:8]) + ":" + string(class)
}
