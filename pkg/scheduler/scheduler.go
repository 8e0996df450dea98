// Package scheduler runs the rate-limited fetch pipeline: seed identities
// are resolved to match id lists, new match ids are claimed once, and each
// claimed match is fetched and handed to the sink.
//
// A single dispatcher loop owns every dispatch decision. Each tick it walks
// the credentials in order and, per credential, launches at most one seed
// worker and one match worker whose budget slots it could reserve. Workers
// are one-shot goroutines; they never retry and never report failures back
// to the dispatcher. The run ends when the loop observes no backlog, no
// queued match ids and no worker in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/match-collector/pkg/client"
	"github.com/Sternrassler/match-collector/pkg/dedup"
	"github.com/Sternrassler/match-collector/pkg/logging"
	"github.com/Sternrassler/match-collector/pkg/queue"
	"github.com/Sternrassler/match-collector/pkg/ratelimit"
	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the dispatcher.
var (
	dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_dispatches_total",
		Help: "Workers launched by stage",
	}, []string{"stage"})

	inflightWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "collector_inflight_workers",
		Help: "Workers currently running by stage",
	}, []string{"stage"})

	droppedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_dropped_items_total",
		Help: "Work items discarded after a failure by stage",
	}, []string{"stage"})

	seedBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collector_seed_backlog",
		Help: "Seed identities not yet dispatched",
	})

	matchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collector_match_queue_depth",
		Help: "Claimed match ids waiting for fetch",
	})
)

// Stage names a pipeline stage.
type Stage string

const (
	// StageSeed resolves a seed identity to its match id list.
	StageSeed Stage = "seed"

	// StageMatch fetches one match record.
	StageMatch Stage = "match"
)

// Defaults.
const (
	DefaultTickInterval     = 100 * time.Millisecond
	DefaultProgressInterval = 30 * time.Second
)

var (
	// ErrNoCredentials is returned when the scheduler has no credential.
	ErrNoCredentials = errors.New("no credentials")

	// ErrUnknownCredential is returned for a seed owned by a credential the
	// scheduler was not configured with.
	ErrUnknownCredential = errors.New("seed owned by unknown credential")
)

// Provider is the remote side of the pipeline. Both calls block until the
// provider answers or fails.
type Provider interface {
	FetchSeedMatchIDs(ctx context.Context, region riot.Region, seed riot.SeedIdentity, startTime time.Time) ([]string, error)
	FetchMatchRecord(ctx context.Context, region riot.Region, matchID string, cred riot.Credential) (*riot.MatchRecord, error)
}

// Sink accepts completed records. Accept is called concurrently from
// workers and must not block for long.
type Sink interface {
	Accept(rec *riot.MatchRecord)
}

// Config configures a Scheduler.
type Config struct {
	Region      riot.Region
	Credentials []riot.Credential

	// StartTime is the historical cutoff passed to the match list call.
	StartTime time.Time

	// TickInterval is the dispatcher polling period (default 100ms).
	TickInterval time.Duration

	// MaxInFlightPerCredential caps concurrent workers per credential.
	// Zero means unbounded.
	MaxInFlightPerCredential int

	// ProgressInterval is the period of progress log lines (default 30s).
	// Negative disables them.
	ProgressInterval time.Duration
}

// Stats summarizes a run.
type Stats struct {
	Seeds             int
	SeedsDispatched   int64
	SeedsFailed       int64
	MatchIDsSeen      int64
	MatchesClaimed    int64
	Duplicates        int64
	MatchesDispatched int64
	MatchesFetched    int64
	MatchesFailed     int64
	Elapsed           time.Duration
}

type counters struct {
	seedsDispatched   atomic.Int64
	seedsFailed       atomic.Int64
	matchIDsSeen      atomic.Int64
	matchesClaimed    atomic.Int64
	duplicates        atomic.Int64
	matchesDispatched atomic.Int64
	matchesFetched    atomic.Int64
	matchesFailed     atomic.Int64
}

// credState is the dispatcher's view of one credential.
type credState struct {
	cred    riot.Credential
	backlog *queue.Queue[riot.SeedIdentity]
	logger  zerolog.Logger

	// seedsInFlight gates stage 3; inFlight enforces the optional cap.
	seedsInFlight atomic.Int64
	inFlight      atomic.Int64
}

// Scheduler is the dispatcher. A Scheduler runs once.
type Scheduler struct {
	cfg      Config
	provider Provider
	sink     Sink
	table    ratelimit.Table
	seen     dedup.Store
	logger   zerolog.Logger

	creds   []*credState
	byCred  map[riot.Credential]*credState
	matches *queue.Queue[string]

	inFlight atomic.Int64
	wg       sync.WaitGroup
	counters counters
	seeds    atomic.Int64
	started  atomic.Int64 // unix nanos
	ran      atomic.Bool
}

// New creates a Scheduler.
func New(cfg Config, provider Provider, sink Sink, table ratelimit.Table, seen dedup.Store) (*Scheduler, error) {
	if len(cfg.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	if !cfg.Region.Valid() {
		return nil, fmt.Errorf("%w: %q", riot.ErrUnknownRegion, cfg.Region)
	}
	if provider == nil || sink == nil || table == nil || seen == nil {
		return nil, fmt.Errorf("provider, sink, budget table and dedup store are required")
	}
	if cfg.MaxInFlightPerCredential < 0 {
		return nil, fmt.Errorf("max in-flight per credential must be >= 0 (got %d)", cfg.MaxInFlightPerCredential)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}

	logger := logging.NewLogger("scheduler").With().Str("region", string(cfg.Region)).Logger()
	s := &Scheduler{
		cfg:      cfg,
		provider: provider,
		sink:     sink,
		table:    table,
		seen:     seen,
		logger:   logger,
		byCred:   make(map[riot.Credential]*credState, len(cfg.Credentials)),
		matches:  queue.New[string](),
	}
	for _, cred := range cfg.Credentials {
		if _, dup := s.byCred[cred]; dup {
			return nil, fmt.Errorf("duplicate credential %s", cred.Masked())
		}
		cs := &credState{
			cred:    cred,
			backlog: queue.New[riot.SeedIdentity](),
			logger:  logging.WithCredential(logger, cred),
		}
		s.creds = append(s.creds, cs)
		s.byCred[cred] = cs
	}
	return s, nil
}

// Run dispatches seeds until the pipeline drains. Every seed must be owned
// by a configured credential; that assignment is the static work partition.
//
// Cancelling ctx stops dispatching. Run then waits for in-flight workers,
// which are not cancelled, and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, seeds []riot.SeedIdentity) (Stats, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return Stats{}, fmt.Errorf("scheduler already ran")
	}
	for _, seed := range seeds {
		cs, ok := s.byCred[seed.Credential]
		if !ok {
			return Stats{}, fmt.Errorf("%w: %s", ErrUnknownCredential, seed.Credential.Masked())
		}
		cs.backlog.Push(seed)
	}
	s.seeds.Store(int64(len(seeds)))
	s.started.Store(time.Now().UnixNano())
	seedBacklog.Set(float64(len(seeds)))

	for _, cs := range s.creds {
		cs.logger.Info().Int("seeds", cs.backlog.Len()).Msg("Credential share assigned")
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var progress <-chan time.Time
	if s.cfg.ProgressInterval > 0 {
		pt := time.NewTicker(s.cfg.ProgressInterval)
		defer pt.Stop()
		progress = pt.C
	}

	// Workers outlive a cancelled run; they finish their single call.
	workerCtx := context.WithoutCancel(ctx)

	for {
		s.tick(ctx, workerCtx, time.Now())
		if s.drained() {
			break
		}
		select {
		case <-ctx.Done():
			s.logger.Warn().Err(ctx.Err()).Int64("in_flight", s.inFlight.Load()).Msg("Dispatch stopped, waiting for workers")
			s.wg.Wait()
			stats := s.Snapshot()
			s.logSummary(stats)
			return stats, ctx.Err()
		case <-progress:
			s.logProgress()
		case <-ticker.C:
		}
	}

	s.wg.Wait()
	stats := s.Snapshot()
	s.logSummary(stats)
	return stats, nil
}

// tick makes one dispatch pass over every credential.
func (s *Scheduler) tick(ctx, workerCtx context.Context, now time.Time) {
	for _, cs := range s.creds {
		if cs.backlog.Len() > 0 && s.hasCapacity(cs) {
			if s.reserve(ctx, cs, now, ratelimit.ClassIdentity, ratelimit.ClassMatchHistory) {
				if seed, ok := cs.backlog.Pop(); ok {
					s.dispatchSeed(workerCtx, cs, seed)
				}
			}
		}

		// Stage 3 waits until this credential has no seed left to resolve,
		// neither queued nor in flight.
		if cs.backlog.Len() > 0 || cs.seedsInFlight.Load() > 0 {
			continue
		}
		if s.matches.Len() > 0 && s.hasCapacity(cs) {
			if s.reserve(ctx, cs, now, ratelimit.ClassMatchRecord) {
				// The dispatcher is the only consumer, so a non-empty
				// queue stays non-empty until this Pop.
				if matchID, ok := s.matches.Pop(); ok {
					s.dispatchMatch(workerCtx, cs, matchID)
				}
			}
		}
	}

	var backlog int
	for _, cs := range s.creds {
		backlog += cs.backlog.Len()
	}
	seedBacklog.Set(float64(backlog))
	matchQueueDepth.Set(float64(s.matches.Len()))
}

func (s *Scheduler) hasCapacity(cs *credState) bool {
	limit := s.cfg.MaxInFlightPerCredential
	return limit == 0 || cs.inFlight.Load() < int64(limit)
}

// reserve treats a budget backend failure as "not eligible this tick".
// IsEligible is read first so a busy class costs no write; TryReserve still
// decides.
func (s *Scheduler) reserve(ctx context.Context, cs *credState, now time.Time, classes ...ratelimit.EndpointClass) bool {
	for _, class := range classes {
		ok, err := s.table.IsEligible(ctx, cs.cred, class, now)
		if err != nil {
			if ctx.Err() == nil {
				cs.logger.Error().Err(err).Str("class", string(class)).Msg("Budget lookup failed")
			}
			return false
		}
		if !ok {
			return false
		}
	}

	ok, err := s.table.TryReserve(ctx, cs.cred, now, classes...)
	if err != nil {
		if ctx.Err() == nil {
			cs.logger.Error().Err(err).Msg("Budget reservation failed")
		}
		return false
	}
	return ok
}

// drained reports whether the run is complete. inFlight is read first:
// workers push their output before decrementing it, so a zero count followed
// by empty queues means nothing is left anywhere.
func (s *Scheduler) drained() bool {
	if s.inFlight.Load() > 0 {
		return false
	}
	if !s.matches.Empty() {
		return false
	}
	for _, cs := range s.creds {
		if !cs.backlog.Empty() {
			return false
		}
	}
	return true
}

func (s *Scheduler) begin(cs *credState, stage Stage) {
	s.inFlight.Add(1)
	cs.inFlight.Add(1)
	s.wg.Add(1)
	dispatchesTotal.WithLabelValues(string(stage)).Inc()
	inflightWorkers.WithLabelValues(string(stage)).Inc()
}

func (s *Scheduler) end(cs *credState, stage Stage) {
	inflightWorkers.WithLabelValues(string(stage)).Dec()
	cs.inFlight.Add(-1)
	s.inFlight.Add(-1)
	s.wg.Done()
}

func (s *Scheduler) dispatchSeed(ctx context.Context, cs *credState, seed riot.SeedIdentity) {
	cs.seedsInFlight.Add(1)
	s.begin(cs, StageSeed)
	s.counters.seedsDispatched.Add(1)

	cs.logger.Debug().
		Str("stage", string(StageSeed)).
		Str("platform", string(seed.Platform)).
		Str("summoner_id", seed.SummonerID).
		Msg("Dispatching seed")

	go func() {
		defer s.end(cs, StageSeed)
		defer cs.seedsInFlight.Add(-1)
		s.resolveSeed(ctx, cs, seed)
	}()
}

func (s *Scheduler) resolveSeed(ctx context.Context, cs *credState, seed riot.SeedIdentity) {
	ids, err := s.provider.FetchSeedMatchIDs(ctx, s.cfg.Region, seed, s.cfg.StartTime)
	if err != nil {
		s.counters.seedsFailed.Add(1)
		droppedItemsTotal.WithLabelValues(string(StageSeed)).Inc()
		logDrop(cs.logger, err).
			Str("stage", string(StageSeed)).
			Str("platform", string(seed.Platform)).
			Str("summoner_id", seed.SummonerID).
			Msg("Dropping seed")
		return
	}

	s.counters.matchIDsSeen.Add(int64(len(ids)))
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		claimed, err := s.seen.TryClaim(ctx, id)
		if err != nil {
			droppedItemsTotal.WithLabelValues(string(StageMatch)).Inc()
			cs.logger.Error().Err(err).Str("match_id", id).Msg("Dedup claim failed, dropping match id")
			continue
		}
		if !claimed {
			s.counters.duplicates.Add(1)
			continue
		}
		fresh = append(fresh, id)
	}
	s.counters.matchesClaimed.Add(int64(len(fresh)))
	s.matches.Push(fresh...)
}

func (s *Scheduler) dispatchMatch(ctx context.Context, cs *credState, matchID string) {
	s.begin(cs, StageMatch)
	s.counters.matchesDispatched.Add(1)

	cs.logger.Debug().Str("stage", string(StageMatch)).Str("match_id", matchID).Msg("Dispatching match fetch")

	go func() {
		defer s.end(cs, StageMatch)
		rec, err := s.provider.FetchMatchRecord(ctx, s.cfg.Region, matchID, cs.cred)
		if err != nil {
			s.counters.matchesFailed.Add(1)
			droppedItemsTotal.WithLabelValues(string(StageMatch)).Inc()
			logDrop(cs.logger, err).
				Str("stage", string(StageMatch)).
				Str("match_id", matchID).
				Msg("Dropping match")
			return
		}
		s.counters.matchesFetched.Add(1)
		s.sink.Accept(rec)
	}()
}

// logDrop starts a Warn event carrying the provider status and class when known.
func logDrop(logger zerolog.Logger, err error) *zerolog.Event {
	ev := logger.Warn().Err(err)
	var perr *client.ProviderError
	if errors.As(err, &perr) {
		ev = ev.Int("status_code", perr.StatusCode).Str("error_class", string(perr.ErrorClass))
	}
	return ev
}

// Snapshot returns the current counters. It is safe to call while Run is active.
func (s *Scheduler) Snapshot() Stats {
	st := Stats{
		Seeds:             int(s.seeds.Load()),
		SeedsDispatched:   s.counters.seedsDispatched.Load(),
		SeedsFailed:       s.counters.seedsFailed.Load(),
		MatchIDsSeen:      s.counters.matchIDsSeen.Load(),
		MatchesClaimed:    s.counters.matchesClaimed.Load(),
		Duplicates:        s.counters.duplicates.Load(),
		MatchesDispatched: s.counters.matchesDispatched.Load(),
		MatchesFetched:    s.counters.matchesFetched.Load(),
		MatchesFailed:     s.counters.matchesFailed.Load(),
	}
	if started := s.started.Load(); started != 0 {
		st.Elapsed = time.Since(time.Unix(0, started))
	}
	return st
}

func (s *Scheduler) logProgress() {
	st := s.Snapshot()
	s.logger.Info().
		Str("players", fmt.Sprintf("%d/%d", st.SeedsDispatched, st.Seeds)).
		Str("matches", fmt.Sprintf("%d/%d", st.MatchesFetched, st.MatchesClaimed)).
		Int64("in_flight", s.inFlight.Load()).
		Int("queued_matches", s.matches.Len()).
		Dur("elapsed", st.Elapsed).
		Msg("Progress")
}

func (s *Scheduler) logSummary(st Stats) {
	s.logger.Info().
		Int("seeds", st.Seeds).
		Int64("seeds_failed", st.SeedsFailed).
		Int64("match_ids_seen", st.MatchIDsSeen).
		Int64("duplicates", st.Duplicates).
		Int64("matches_fetched", st.MatchesFetched).
		Int64("matches_failed", st.MatchesFailed).
		Dur("elapsed", st.Elapsed).
		Msg("Run complete")
}
