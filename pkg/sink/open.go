package sink

import (
	"context"
	"fmt"
	"strings"
)

// Kind selects a Store implementation.
type Kind string

// Store kinds.
const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
	KindNDJSON   Kind = "ndjson"
)

// Options configures Open.
type Options struct {
	Kind Kind

	// Path is the database or output file for sqlite and ndjson.
	Path string

	// DSN is the connection string for postgres.
	DSN string

	// MaxConns caps the postgres pool.
	MaxConns int
}

// Open creates the Store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch Kind(strings.ToLower(string(opts.Kind))) {
	case KindSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite sink requires a path")
		}
		return NewSQLiteStore(opts.Path)
	case KindPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres sink requires a dsn")
		}
		return NewPostgresStore(ctx, opts.DSN, opts.MaxConns)
	case KindNDJSON:
		if opts.Path == "" {
			return nil, fmt.Errorf("ndjson sink requires a path")
		}
		return NewNDJSONStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown sink kind %q", opts.Kind)
	}
}
