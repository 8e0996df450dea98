// Package config loads the collector configuration from TOML, applies
// environment overrides and resolves the credential pool.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// MatchList configures the match history query.
type MatchList struct {
	Type  string `toml:"type"`
	Count int    `toml:"count"`
}

// Scheduler configures the dispatcher.
type Scheduler struct {
	TickMS                   int `toml:"tick_ms"`
	MaxInFlightPerCredential int `toml:"max_in_flight_per_credential"`
	ProgressIntervalSeconds  int `toml:"progress_interval_seconds"`
}

// RateLimit holds the minimum spacing per endpoint class, in seconds.
type RateLimit struct {
	LeagueSeconds       float64 `toml:"league_seconds"`
	IdentitySeconds     float64 `toml:"identity_seconds"`
	MatchHistorySeconds float64 `toml:"match_history_seconds"`
	MatchRecordSeconds  float64 `toml:"match_record_seconds"`
}

// Client configures the provider client. UserAgents and Proxies are
// assigned to credentials by position, wrapping around.
type Client struct {
	HostFormat     string   `toml:"host_format"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	UserAgent      string   `toml:"user_agent"`
	UserAgents     []string `toml:"user_agents"`
	Proxies        []string `toml:"proxies"`
	RetryAttempts  int      `toml:"retry_attempts"`
}

// Redis enables the shared budget table and dedup set when Addr is set.
// An empty Namespace scopes the dedup set to one run; set it to share the set
// across runs.
type Redis struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	Namespace       string `toml:"namespace"`
	DedupTTLSeconds int    `toml:"dedup_ttl_seconds"`
}

// Sink selects where records are persisted.
type Sink struct {
	Kind     string `toml:"kind"`
	Path     string `toml:"path"`
	DSN      string `toml:"dsn"`
	PollMS   int    `toml:"poll_ms"`
	MaxConns int    `toml:"max_conns"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Metrics configures the Prometheus endpoint. Empty Listen disables it.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Config is the full collector configuration.
type Config struct {
	Region          string   `toml:"region"`
	Credentials     []string `toml:"credentials"`
	CredentialsFile string   `toml:"credentials_file"`
	StartDate       string   `toml:"start_date"`
	Queues          []string `toml:"queues"`

	MatchList MatchList `toml:"match_list"`
	Scheduler Scheduler `toml:"scheduler"`
	RateLimit RateLimit `toml:"rate_limit"`
	Client    Client    `toml:"client"`
	Redis     Redis     `toml:"redis"`
	Sink      Sink      `toml:"sink"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// Environment variables that override file values.
const (
	EnvRegion    = "COLLECTOR_REGION"
	EnvRedisAddr = "COLLECTOR_REDIS_ADDR"
	EnvSinkDSN   = "COLLECTOR_SINK_DSN"
	EnvLogLevel  = "COLLECTOR_LOG_LEVEL"
)

// minCredentialLength filters blank and junk lines from credential files.
const minCredentialLength = 6

// ErrNoCredentials is returned when neither credentials nor a credentials
// file yield a usable key.
var ErrNoCredentials = errors.New("no credentials configured")

// Load reads path (if non-empty), applies environment overrides, loads the
// credentials file and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := decode(file, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.loadCredentialsFile(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvRegion); v != "" {
		c.Region = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv(EnvSinkDSN); v != "" {
		c.Sink.DSN = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// loadCredentialsFile appends one credential per line of CredentialsFile.
func (c *Config) loadCredentialsFile() error {
	if c.CredentialsFile == "" {
		return nil
	}
	f, err := os.Open(c.CredentialsFile)
	if err != nil {
		return fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	creds, err := ReadCredentials(f)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}
	c.Credentials = append(c.Credentials, creds...)
	return nil
}

// ReadCredentials returns one trimmed credential per line, skipping lines
// shorter than six characters.
func ReadCredentials(r io.Reader) ([]string, error) {
	var creds []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < minCredentialLength {
			continue
		}
		creds = append(creds, line)
	}
	return creds, scanner.Err()
}

// Marshal renders c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// StartTime parses StartDate as a UTC calendar day.
func (c *Config) StartTime() (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, c.StartDate, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("start_date must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}
