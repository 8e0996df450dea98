//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return client, cleanup
}

func TestRedisTable_Integration_SharedAcrossTables(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	// Two tables model two collector processes sharing one credential.
	a, err := NewRedisTable(client, testLimits(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRedisTable(client, testLimits(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	now := time.Now()

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		table := a
		if i%2 == 1 {
			table = b
		}
		wg.Add(1)
		go func(table *RedisTable) {
			defer wg.Done()
			ok, err := table.TryReserve(ctx, "shared-key", now, ClassIdentity, ClassMatchHistory)
			if err != nil {
				t.Errorf("TryReserve() error = %v", err)
				return
			}
			if ok {
				granted.Add(1)
			}
		}(table)
	}
	wg.Wait()

	if granted.Load() != 1 {
		t.Errorf("granted %d reservations across processes, want 1", granted.Load())
	}

	ttl, err := client.PTTL(ctx, budgetRedisKey("shared-key", ClassIdentity)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= time.Hour {
		t.Errorf("budget key TTL = %s, want more than one interval", ttl)
	}
}
