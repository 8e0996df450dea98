package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/Sternrassler/match-collector/pkg/sink"
)

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if _, err := riot.ParseRegion(c.Region); err != nil {
		errs = append(errs, fmt.Errorf("region: %w", err))
	}
	if len(c.Credentials) == 0 {
		errs = append(errs, fmt.Errorf("%w: set credentials or credentials_file", ErrNoCredentials))
	}
	seen := make(map[string]bool, len(c.Credentials))
	for i, cred := range c.Credentials {
		if len(strings.TrimSpace(cred)) < minCredentialLength {
			errs = append(errs, fmt.Errorf("credentials[%d] is too short", i))
		}
		if seen[cred] {
			errs = append(errs, fmt.Errorf("credentials[%d] %s is listed twice", i, riot.Credential(cred).Masked()))
		}
		seen[cred] = true
	}
	if _, err := c.StartTime(); err != nil {
		errs = append(errs, err)
	}
	for _, q := range c.Queues {
		switch riot.RankedQueue(q) {
		case riot.QueueRankedSolo, riot.QueueRankedFlex:
		default:
			errs = append(errs, fmt.Errorf("queues: unknown queue %q", q))
		}
	}

	if c.MatchList.Count < 1 || c.MatchList.Count > 100 {
		errs = append(errs, fmt.Errorf("match_list.count must be in [1, 100] (got %d)", c.MatchList.Count))
	}

	if c.Scheduler.TickMS <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.tick_ms must be > 0 (got %d)", c.Scheduler.TickMS))
	}
	if c.Scheduler.MaxInFlightPerCredential < 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_in_flight_per_credential must be >= 0 (got %d)", c.Scheduler.MaxInFlightPerCredential))
	}

	for name, v := range map[string]float64{
		"league_seconds":        c.RateLimit.LeagueSeconds,
		"identity_seconds":      c.RateLimit.IdentitySeconds,
		"match_history_seconds": c.RateLimit.MatchHistorySeconds,
		"match_record_seconds":  c.RateLimit.MatchRecordSeconds,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s must be >= 0 (got %g)", name, v))
		}
	}

	if c.Client.HostFormat != "" && strings.Count(c.Client.HostFormat, "%s") != 1 {
		errs = append(errs, fmt.Errorf("client.host_format must contain exactly one %%s (got %q)", c.Client.HostFormat))
	}
	if c.Client.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("client.timeout_seconds must be > 0 (got %d)", c.Client.TimeoutSeconds))
	}
	if c.Client.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("client.retry_attempts must be >= 1 (got %d)", c.Client.RetryAttempts))
	}
	if c.Redis.DedupTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("redis.dedup_ttl_seconds must be >= 0 (got %d)", c.Redis.DedupTTLSeconds))
	}
	for i, p := range c.Client.Proxies {
		if u, err := url.Parse(p); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("client.proxies[%d] %q is not a URL", i, p))
		}
	}

	switch sink.Kind(strings.ToLower(c.Sink.Kind)) {
	case sink.KindSQLite, sink.KindNDJSON:
		if c.Sink.Path == "" {
			errs = append(errs, fmt.Errorf("sink.path must be set for kind %q", c.Sink.Kind))
		}
	case sink.KindPostgres:
		if c.Sink.DSN == "" {
			errs = append(errs, fmt.Errorf("sink.dsn must be set for kind postgres (or %s)", EnvSinkDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("sink.kind must be sqlite, postgres or ndjson (got %q)", c.Sink.Kind))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be auto, json or console (got %q)", c.Logging.Format))
	}

	return errors.Join(errs...)
}
