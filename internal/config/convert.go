package config

import (
	"math"
	"strings"
	"time"

	"github.com/Sternrassler/match-collector/pkg/client"
	"github.com/Sternrassler/match-collector/pkg/logging"
	"github.com/Sternrassler/match-collector/pkg/ratelimit"
	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/Sternrassler/match-collector/pkg/scheduler"
	"github.com/Sternrassler/match-collector/pkg/sink"
)

// The methods below assume a validated Config.

// RiotRegion returns the configured region.
func (c *Config) RiotRegion() riot.Region {
	r, _ := riot.ParseRegion(c.Region)
	return r
}

// RiotCredentials returns the credential pool in configuration order.
func (c *Config) RiotCredentials() []riot.Credential {
	out := make([]riot.Credential, len(c.Credentials))
	for i, cred := range c.Credentials {
		out[i] = riot.Credential(strings.TrimSpace(cred))
	}
	return out
}

// RiotQueues returns the configured ladders, or the defaults.
func (c *Config) RiotQueues() []riot.RankedQueue {
	if len(c.Queues) == 0 {
		return riot.DefaultQueues()
	}
	out := make([]riot.RankedQueue, len(c.Queues))
	for i, q := range c.Queues {
		out[i] = riot.RankedQueue(q)
	}
	return out
}

// Limits converts the per-class seconds to a budget table configuration.
func (c *Config) Limits() ratelimit.Limits {
	return ratelimit.Limits{
		ratelimit.ClassLeague:       seconds(c.RateLimit.LeagueSeconds),
		ratelimit.ClassIdentity:     seconds(c.RateLimit.IdentitySeconds),
		ratelimit.ClassMatchHistory: seconds(c.RateLimit.MatchHistorySeconds),
		ratelimit.ClassMatchRecord:  seconds(c.RateLimit.MatchRecordSeconds),
	}
}

// ClientConfig builds the provider client configuration, assigning user
// agents and proxies to credentials by position.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	if c.Client.HostFormat != "" {
		cfg.HostFormat = c.Client.HostFormat
	}
	cfg.Timeout = time.Duration(c.Client.TimeoutSeconds) * time.Second
	if c.Client.UserAgent != "" {
		cfg.UserAgent = c.Client.UserAgent
	}
	cfg.MatchList.Type = c.MatchList.Type
	cfg.MatchList.Count = c.MatchList.Count
	cfg.Retry.MaxAttempts = c.Client.RetryAttempts

	creds := c.RiotCredentials()
	if n := len(c.Client.UserAgents); n > 0 {
		cfg.UserAgents = make(map[riot.Credential]string, len(creds))
		for i, cred := range creds {
			cfg.UserAgents[cred] = c.Client.UserAgents[i%n]
		}
	}
	if n := len(c.Client.Proxies); n > 0 {
		cfg.Proxies = make(map[riot.Credential][]string, len(creds))
		for i, cred := range creds {
			cfg.Proxies[cred] = []string{c.Client.Proxies[i%n]}
		}
	}
	return cfg
}

// SchedulerConfig builds the dispatcher configuration.
func (c *Config) SchedulerConfig() scheduler.Config {
	start, _ := c.StartTime()
	return scheduler.Config{
		Region:                   c.RiotRegion(),
		Credentials:              c.RiotCredentials(),
		StartTime:                start,
		TickInterval:             time.Duration(c.Scheduler.TickMS) * time.Millisecond,
		MaxInFlightPerCredential: c.Scheduler.MaxInFlightPerCredential,
		ProgressInterval:         time.Duration(c.Scheduler.ProgressIntervalSeconds) * time.Second,
	}
}

// SinkOptions builds the store options.
func (c *Config) SinkOptions() sink.Options {
	return sink.Options{
		Kind:     sink.Kind(c.Sink.Kind),
		Path:     c.Sink.Path,
		DSN:      c.Sink.DSN,
		MaxConns: c.Sink.MaxConns,
	}
}

// SinkPollInterval is the writer's empty-queue sleep.
func (c *Config) SinkPollInterval() time.Duration {
	return time.Duration(c.Sink.PollMS) * time.Millisecond
}

// LoggingConfig builds the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	if c.Logging.Format != "" {
		cfg.Format = logging.Format(c.Logging.Format)
	}
	return cfg
}

// RedisNamespace scopes the dedup set. Without an explicit namespace the set
// belongs to a single run of the region.
func (c *Config) RedisNamespace(runID string) string {
	if c.Redis.Namespace != "" {
		return c.Redis.Namespace
	}
	return c.Region + ":" + runID
}

// DedupTTL is how long the dedup set outlives its last claim. Zero keeps it.
func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.Redis.DedupTTLSeconds) * time.Second
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}
