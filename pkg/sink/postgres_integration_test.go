//go:build integration

package sink

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a Postgres container and returns its DSN.
func setupPostgres(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "collector",
			"POSTGRES_PASSWORD": "collector",
			"POSTGRES_DB":       "matches",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Postgres endpoint: %v", err)
	}

	dsn := fmt.Sprintf("postgres://collector:collector@%s/matches?sslmode=disable", endpoint)
	return dsn, func() { container.Terminate(ctx) }
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}

	w := NewWriter(store, 0)
	w.Start()
	for _, id := range []string{"EUW1_1", "EUW1_2", "EUW1_1"} {
		w.Accept(decodedMatch(t, id, "p1", "p2", "p3"))
	}

	// Close also closes the pool, so count through a second store first.
	check, err := NewPostgresStore(ctx, dsn, 1)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer check.Close()

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c := w.Counts(); c.Written != 2 || c.Duplicates != 1 {
		t.Errorf("Counts() = %+v, want 2 written, 1 duplicate", c)
	}

	n, err := check.CountMatches(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountMatches() = %d, %v; want 2", n, err)
	}

	var participants int
	if err := check.pool.QueryRow(ctx, `SELECT COUNT(*) FROM game_participants`).Scan(&participants); err != nil {
		t.Fatalf("count participants: %v", err)
	}
	if participants != 6 {
		t.Errorf("participants = %d, want 6", participants)
	}

	if err := check.Write(ctx, decodedMatch(t, "EUW1_2", "p1")); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Write() = %v, want ErrDuplicate", err)
	}
}
