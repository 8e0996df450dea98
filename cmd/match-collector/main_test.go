package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/match-collector/internal/config"
	"github.com/Sternrassler/match-collector/internal/testutil"
	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/Sternrassler/match-collector/pkg/sink"
	"github.com/alicebob/miniredis/v2"
	"github.com/pelletier/go-toml/v2"
)

const testCredential = riot.Credential("RGAPI-test-0001")

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestConfig(t *testing.T, dir, hostFormat, dbPath string) string {
	t.Helper()
	body := fmt.Sprintf(`region = "asia"
credentials = [%q]
start_date = "2024-01-10"
queues = ["RANKED_SOLO_5x5"]

[scheduler]
tick_ms = 1
progress_interval_seconds = -1

[rate_limit]
league_seconds = 0.0
identity_seconds = 0.0
match_history_seconds = 0.0
match_record_seconds = 0.0

[client]
host_format = %q
retry_attempts = 2

[sink]
kind = "sqlite"
path = %q

[logging]
level = "error"
format = "json"
`, string(testCredential), hostFormat, dbPath)

	path := filepath.Join(dir, "collector.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// newSeededMock serves one KR ladder of two players whose histories share KR_2.
func newSeededMock(t *testing.T) *testutil.MockRiot {
	t.Helper()
	mock := testutil.NewMockRiot()
	t.Cleanup(mock.Close)

	mock.SetLeague(testCredential, riot.PlatformKR, riot.QueueRankedSolo, riot.LeagueList{
		Tier: "CHALLENGER",
		Entries: []riot.LeagueEntry{
			{SummonerID: "kr-sum-1", LeaguePoints: 1500, Rank: "I", Wins: 300, Losses: 200},
			{SummonerID: "kr-sum-2", LeaguePoints: 1400, Rank: "I", Wins: 250, Losses: 180},
		},
	})
	mock.AddSummoner(testCredential, riot.PlatformKR, "kr-sum-1", "puuid-1")
	mock.AddSummoner(testCredential, riot.PlatformKR, "kr-sum-2", "puuid-2")
	mock.SetMatchIDs(riot.RegionAsia, "puuid-1", "KR_1", "KR_2")
	mock.SetMatchIDs(riot.RegionAsia, "puuid-2", "KR_2", "KR_3")
	for _, id := range []string{"KR_1", "KR_2", "KR_3"} {
		mock.AddMatch(riot.RegionAsia, id, testutil.MatchJSON(id, 1704900000000, "puuid-1", "puuid-2"))
	}
	return mock
}

func countStored(t *testing.T, dbPath string) int64 {
	t.Helper()
	store, err := sink.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen sink: %v", err)
	}
	defer store.Close()
	n, err := store.CountMatches(context.Background())
	if err != nil {
		t.Fatalf("CountMatches() error = %v", err)
	}
	return n
}

// summaryValue returns the value column of the summary row named metric.
func summaryValue(out, metric string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, metric) {
			continue
		}
		cells := strings.Split(line, "│")
		if len(cells) >= 3 {
			return strings.TrimSpace(cells[2])
		}
	}
	return ""
}

func appendConfig(t *testing.T, path, body string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		t.Fatalf("append config: %v", err)
	}
}

func TestRunCommand_EndToEnd(t *testing.T) {
	mock := newSeededMock(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "matches.db")
	cfgPath := writeTestConfig(t, dir, mock.HostFormat(), dbPath)

	out, err := executeCommand(t, "run", "--config", cfgPath)
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	for _, want := range []string{"Records written", "Duplicate ids"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if got := summaryValue(out, "Dedup set size"); got != "3" {
		t.Errorf("Dedup set size = %q, want 3:\n%s", got, out)
	}
	if got := mock.RequestCount("/lol/match/v5/matches/KR_2"); got != 1 {
		t.Errorf("KR_2 fetched %d times, want 1", got)
	}
	if n := countStored(t, dbPath); n != 3 {
		t.Errorf("stored matches = %d, want 3", n)
	}
}

func TestRunCommand_RedisBackends(t *testing.T) {
	tests := []struct {
		name         string
		redisConfig  string
		secondFetches int
	}{
		// Each run claims into its own set, so ids are fetched again.
		{name: "default namespace is per run", secondFetches: 3},
		// A shared namespace carries claims into the next run.
		{name: "shared namespace", redisConfig: "\n[redis]\nnamespace = \"asia-shared\"\n", secondFetches: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			t.Setenv(config.EnvRedisAddr, mr.Addr())

			mock := newSeededMock(t)
			dir := t.TempDir()
			dbPath := filepath.Join(dir, "matches.db")
			cfgPath := writeTestConfig(t, dir, mock.HostFormat(), dbPath)
			appendConfig(t, cfgPath, tt.redisConfig)

			out, err := executeCommand(t, "run", "--config", cfgPath)
			if err != nil {
				t.Fatalf("run error = %v\n%s", err, out)
			}
			if n := countStored(t, dbPath); n != 3 {
				t.Errorf("stored matches = %d, want 3", n)
			}
			if got := summaryValue(out, "Dedup set size"); got != "3" {
				t.Errorf("Dedup set size = %q, want 3", got)
			}

			mock.Reset()
			if out, err := executeCommand(t, "run", "--config", cfgPath); err != nil {
				t.Fatalf("second run error = %v\n%s", err, out)
			}
			if got := mock.RequestCount("/lol/match/v5/matches/KR_"); got != tt.secondFetches {
				t.Errorf("second run fetched %d match records, want %d", got, tt.secondFetches)
			}
			if n := countStored(t, dbPath); n != 3 {
				t.Errorf("stored matches after second run = %d, want 3", n)
			}

			for _, key := range mr.Keys() {
				if strings.HasPrefix(key, "collector:dedup:") && mr.TTL(key) <= 0 {
					t.Errorf("dedup key %s has no expiry", key)
				}
			}
		})
	}
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("region = \"atlantis\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := executeCommand(t, "run", "--config", path)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	for _, want := range []string{"region", "credentials"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestRunCommand_SinkLocked(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "matches.db")
	cfgPath := writeTestConfig(t, dir, "http://127.0.0.1:1/%s", dbPath)

	lock, err := lockSink(sink.Options{Kind: sink.KindSQLite, Path: dbPath})
	if err != nil {
		t.Fatalf("lockSink() error = %v", err)
	}
	defer lock.Unlock()

	_, err = executeCommand(t, "run", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "in use") {
		t.Fatalf("run error = %v, want sink in use", err)
	}
}

func TestRegionsCommand(t *testing.T) {
	out, err := executeCommand(t, "regions")
	if err != nil {
		t.Fatalf("regions error = %v", err)
	}
	for _, want := range []string{"americas", "europe", "euw1", "kr", "sea"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigInitCommand(t *testing.T) {
	out, err := executeCommand(t, "config", "init")
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, `region = 'europe'`) && !strings.Contains(out, `region = "europe"`) {
		t.Errorf("stdout config missing region:\n%s", out)
	}

	path := filepath.Join(t.TempDir(), "nested", "collector.toml")
	if _, err := executeCommand(t, "config", "init", "--path", path); err != nil {
		t.Fatalf("config init --path error = %v", err)
	}
	if _, err := executeCommand(t, "config", "init", "--path", path); err == nil {
		t.Error("expected error when file exists without --overwrite")
	}
	if _, err := executeCommand(t, "config", "init", "--path", path, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written defaults do not parse: %v", err)
	}
	if cfg.Region != "europe" || cfg.Sink.Kind != "sqlite" {
		t.Errorf("written defaults = region %q sink %q", cfg.Region, cfg.Sink.Kind)
	}
}

func TestLoadConfig_RegionOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, "http://127.0.0.1:1/%s", filepath.Join(dir, "m.db"))

	cfg, err := loadConfig(cfgPath, "europe")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Region != "europe" {
		t.Errorf("Region = %q, want europe", cfg.Region)
	}
	if _, set := os.LookupEnv(config.EnvRegion); set {
		t.Errorf("%s left set after loadConfig", config.EnvRegion)
	}
}
