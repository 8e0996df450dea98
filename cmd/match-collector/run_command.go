package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/match-collector/internal/config"
	"github.com/Sternrassler/match-collector/pkg/client"
	"github.com/Sternrassler/match-collector/pkg/dedup"
	"github.com/Sternrassler/match-collector/pkg/discovery"
	"github.com/Sternrassler/match-collector/pkg/logging"
	"github.com/Sternrassler/match-collector/pkg/metrics"
	"github.com/Sternrassler/match-collector/pkg/ratelimit"
	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/Sternrassler/match-collector/pkg/scheduler"
	"github.com/Sternrassler/match-collector/pkg/sink"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRunCommand(configPath *string) *cobra.Command {
	var region string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover seed players and collect their match records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, region)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCollector(ctx, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "", "Region to collect (overrides config)")
	return cmd
}

func loadConfig(path, region string) (*config.Config, error) {
	if region == "" {
		return config.Load(path)
	}
	// The override must pass validation like any other value.
	prev, had := os.LookupEnv(config.EnvRegion)
	if err := os.Setenv(config.EnvRegion, region); err != nil {
		return nil, err
	}
	defer func() {
		if had {
			_ = os.Setenv(config.EnvRegion, prev)
		} else {
			_ = os.Unsetenv(config.EnvRegion)
		}
	}()
	return config.Load(path)
}

// backends bundles the budget table and dedup store for one run.
type backends struct {
	table ratelimit.Table
	seen  dedup.Store
	close func() error
}

func openBackends(ctx context.Context, cfg *config.Config, runID string, logger zerolog.Logger) (*backends, error) {
	if cfg.Redis.Addr == "" {
		return &backends{
			table: ratelimit.NewMemoryTable(cfg.Limits()),
			seen:  dedup.NewMemoryStore(),
			close: func() error { return nil },
		}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	table, err := ratelimit.NewRedisTable(rdb, cfg.Limits())
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	seen, err := dedup.NewRedisStore(rdb, cfg.RedisNamespace(runID), cfg.DedupTTL())
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Str("dedup_key", seen.Key()).Msg("Connected to Redis")
	return &backends{table: table, seen: seen, close: rdb.Close}, nil
}

// lockSink takes an exclusive lock next to file-backed sinks so two runs
// never append to the same output.
func lockSink(opts sink.Options) (*flock.Flock, error) {
	switch sink.Kind(strings.ToLower(string(opts.Kind))) {
	case sink.KindSQLite, sink.KindNDJSON:
	default:
		return nil, nil
	}
	lock := flock.New(opts.Path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock sink: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("sink %s is in use by another collector", opts.Path)
	}
	return lock, nil
}

func runCollector(ctx context.Context, cfg *config.Config, out io.Writer) (err error) {
	logging.Setup(cfg.LoggingConfig())
	runID := uuid.NewString()
	logger := logging.NewLogger("collector").With().
		Str("run_id", runID).
		Str("region", cfg.Region).
		Logger()

	logger.Info().
		Int("credentials", len(cfg.Credentials)).
		Str("start_date", cfg.StartDate).
		Str("sink", cfg.Sink.Kind).
		Msg("Starting collector")

	if cfg.Metrics.Listen != "" {
		srv, err := metrics.Listen(cfg.Metrics.Listen, logger)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	be, err := openBackends(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer be.close()

	sinkOpts := cfg.SinkOptions()
	lock, err := lockSink(sinkOpts)
	if err != nil {
		return err
	}
	if lock != nil {
		defer lock.Unlock()
	}

	store, err := sink.Open(ctx, sinkOpts)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	writer := sink.NewWriter(store, cfg.SinkPollInterval())
	writer.Start()
	defer func() {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}()

	clientCfg := cfg.ClientConfig()
	clientCfg.Budget = be.table
	provider, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	schedCfg := cfg.SchedulerConfig()
	creds := cfg.RiotCredentials()
	players, err := discovery.Discover(ctx, provider, be.table, discovery.Config{
		Region:       cfg.RiotRegion(),
		Credentials:  creds,
		Queues:       cfg.RiotQueues(),
		PollInterval: schedCfg.TickInterval,
	})
	if err != nil {
		return fmt.Errorf("discover seeds: %w", err)
	}
	seeds := discovery.Partition(players, creds, logger)
	logger.Info().Int("players", len(players)).Int("seeds", len(seeds)).Msg("Discovery complete")

	sched, err := scheduler.New(schedCfg, provider, writer, be.table, be.seen)
	if err != nil {
		return err
	}
	stats, runErr := sched.Run(ctx, seeds)

	// Drain the writer before reporting so the counts are final.
	closeErr := writer.Close()
	claimed, countErr := be.seen.Count(context.WithoutCancel(ctx))
	if countErr != nil {
		logger.Warn().Err(countErr).Msg("Failed to count dedup set")
		claimed = -1
	}
	logger.Info().Int64("dedup_set_size", claimed).Msg("Collector finished")
	fmt.Fprintln(out, renderSummary(cfg.RiotRegion(), stats, writer.Counts(), claimed))

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn().Msg("Collector interrupted")
		}
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("close sink: %w", closeErr)
	}
	return nil
}

// renderSummary prints the run totals. A negative claimed means the dedup set
// could not be counted.
func renderSummary(region riot.Region, st scheduler.Stats, counts sink.Counts, claimed int64) string {
	dedupSize := "unknown"
	if claimed >= 0 {
		dedupSize = fmt.Sprint(claimed)
	}
	rows := [][]string{
		{"Region", string(region)},
		{"Seeds", fmt.Sprint(st.Seeds)},
		{"Seeds dispatched", fmt.Sprint(st.SeedsDispatched)},
		{"Seeds failed", fmt.Sprint(st.SeedsFailed)},
		{"Match ids seen", fmt.Sprint(st.MatchIDsSeen)},
		{"Duplicate ids", fmt.Sprint(st.Duplicates)},
		{"Dedup set size", dedupSize},
		{"Matches fetched", fmt.Sprint(st.MatchesFetched)},
		{"Matches failed", fmt.Sprint(st.MatchesFailed)},
		{"Records written", fmt.Sprint(counts.Written)},
		{"Records already stored", fmt.Sprint(counts.Duplicates)},
		{"Write failures", fmt.Sprint(counts.Failed)},
		{"Elapsed", st.Elapsed.Round(time.Millisecond).String()},
	}
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
