package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/match-collector/pkg/ratelimit"
	"github.com/Sternrassler/match-collector/pkg/riot"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault_NeedsOnlyCredentials(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("Validate() = %v, want ErrNoCredentials", err)
	}

	cfg.Credentials = []string{"RGAPI-0000-0000"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	if got := cfg.Limits()[ratelimit.ClassMatchRecord]; got != ratelimit.DefaultInterval {
		t.Errorf("default match record interval = %v, want %v", got, ratelimit.DefaultInterval)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	credFile := writeFile(t, dir, "keys.txt", "RGAPI-file-0001\n\n  RGAPI-file-0002  \nabc\n")
	path := writeFile(t, dir, "collector.toml", `
region = "asia"
credentials = ["RGAPI-inline-01"]
credentials_file = "`+credFile+`"
start_date = "2024-03-01"

[scheduler]
tick_ms = 50
max_in_flight_per_credential = 4

[rate_limit]
match_record_seconds = 0.6

[client]
user_agents = ["ua-1", "ua-2"]
proxies = ["http://proxy-1:8080"]

[sink]
kind = "ndjson"
path = "out.ndjson"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RiotRegion() != riot.RegionAsia {
		t.Errorf("region = %s, want asia", cfg.RiotRegion())
	}
	creds := cfg.RiotCredentials()
	want := []riot.Credential{"RGAPI-inline-01", "RGAPI-file-0001", "RGAPI-file-0002"}
	if len(creds) != len(want) {
		t.Fatalf("credentials = %v, want %v", creds, want)
	}
	for i := range want {
		if creds[i] != want[i] {
			t.Errorf("credentials[%d] = %q, want %q", i, creds[i], want[i])
		}
	}

	sc := cfg.SchedulerConfig()
	if sc.TickInterval != 50*time.Millisecond || sc.MaxInFlightPerCredential != 4 {
		t.Errorf("scheduler config = %+v", sc)
	}
	if !sc.StartTime.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start time = %v", sc.StartTime)
	}

	limits := cfg.Limits()
	if limits[ratelimit.ClassMatchRecord] != 600*time.Millisecond {
		t.Errorf("match record interval = %v, want 600ms", limits[ratelimit.ClassMatchRecord])
	}
	if limits[ratelimit.ClassIdentity] != 1210*time.Millisecond {
		t.Errorf("identity interval = %v, want 1.21s", limits[ratelimit.ClassIdentity])
	}

	cc := cfg.ClientConfig()
	if cc.UserAgents[want[0]] != "ua-1" || cc.UserAgents[want[1]] != "ua-2" || cc.UserAgents[want[2]] != "ua-1" {
		t.Errorf("user agents = %v", cc.UserAgents)
	}
	if len(cc.Proxies[want[2]]) != 1 || cc.Proxies[want[2]][0] != "http://proxy-1:8080" {
		t.Errorf("proxies = %v", cc.Proxies)
	}
	if cc.MatchList.Type != "ranked" || cc.MatchList.Count != 20 {
		t.Errorf("match list = %+v", cc.MatchList)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "collector.toml", "credentials = [\"RGAPI-0000-0000\"]\nregoin = \"europe\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "regoin") {
		t.Errorf("Load() = %v, want error naming the unknown key", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRegion:    "americas",
		EnvRedisAddr: "redis:6379",
		EnvSinkDSN:   "postgres://localhost/matches",
		EnvLogLevel:  "debug",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	if cfg.Region != "americas" || cfg.Redis.Addr != "redis:6379" || cfg.Sink.DSN != env[EnvSinkDSN] || cfg.Logging.Level != "debug" {
		t.Errorf("applyEnv() = %+v", cfg)
	}
}

func TestRedisNamespace(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		want      string
	}{
		{name: "default is scoped to the run", want: "americas:run-1"},
		{name: "explicit namespace is shared", namespace: "shared", want: "shared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Region = "americas"
			cfg.Redis.Namespace = tt.namespace
			if got := cfg.RedisNamespace("run-1"); got != tt.want {
				t.Errorf("RedisNamespace() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDedupTTL(t *testing.T) {
	cfg := Default()
	cfg.Credentials = []string{"RGAPI-0000-0000"}
	if got := cfg.DedupTTL(); got != 24*time.Hour {
		t.Errorf("DedupTTL() = %v, want 24h", got)
	}

	cfg.Redis.DedupTTLSeconds = -1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "redis.dedup_ttl_seconds") {
		t.Errorf("Validate() = %v, want dedup_ttl_seconds error", err)
	}
}

func TestReadCredentials(t *testing.T) {
	creds, err := ReadCredentials(strings.NewReader("RGAPI-a\n12345\n\n\tRGAPI-b \n"))
	if err != nil {
		t.Fatalf("ReadCredentials() error = %v", err)
	}
	if strings.Join(creds, ",") != "RGAPI-a,RGAPI-b" {
		t.Errorf("creds = %v", creds)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Region = "mars"
	cfg.Credentials = []string{"RGAPI-dup-01", "RGAPI-dup-01"}
	cfg.StartDate = "10/01/2024"
	cfg.Queues = []string{"ARAM"}
	cfg.MatchList.Count = 500
	cfg.Scheduler.TickMS = 0
	cfg.RateLimit.LeagueSeconds = -1
	cfg.Sink.Kind = "postgres"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, fragment := range []string{"region", "listed twice", "start_date", "ARAM", "match_list.count", "tick_ms", "league_seconds", "sink.dsn", "logging.format"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error missing %q:\n%v", fragment, err)
		}
	}
	if !errors.Is(err, riot.ErrUnknownRegion) {
		t.Error("errors.Is should find ErrUnknownRegion in the joined error")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), "tick_ms = 100") {
		t.Errorf("marshalled config missing scheduler defaults:\n%s", data)
	}

	var cfg Config
	if err := decode(strings.NewReader(string(data)), &cfg); err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if cfg.Region != defaultRegion || cfg.Sink.Kind != defaultSinkKind {
		t.Errorf("round trip = %+v", cfg)
	}
}
