// Package discovery builds the seed backlog: high-tier players found in the
// challenger ladders of every platform in a region, split into one
// contiguous share per credential.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/match-collector/pkg/client"
	"github.com/Sternrassler/match-collector/pkg/logging"
	"github.com/Sternrassler/match-collector/pkg/ratelimit"
	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	leagueCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_discovery_league_calls_total",
		Help: "League ladder fetches during discovery by result",
	}, []string{"result"})

	discoveredPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collector_discovery_players",
		Help: "Distinct players found by the last discovery",
	})
)

// ErrNoCredentials is returned when discovery has no credential to work with.
var ErrNoCredentials = errors.New("no credentials")

// LeagueFetcher is the provider operation discovery depends on.
type LeagueFetcher interface {
	League(ctx context.Context, tier client.Tier, platform riot.Platform, queue riot.RankedQueue, cred riot.Credential) (*riot.LeagueList, error)
}

// PlayerKey identifies a ladder entry independently of the credential that
// fetched it. Encrypted summoner ids are scoped to a credential, so the
// ladder stats stand in for identity.
type PlayerKey struct {
	Platform     riot.Platform
	LeaguePoints int
	Rank         string
	Wins         int
	Losses       int
	Veteran      bool
	Inactive     bool
	FreshBlood   bool
	HotStreak    bool
}

// Player is one discovered player with the summoner id each credential saw.
type Player struct {
	Key PlayerKey
	IDs map[riot.Credential]string
}

// Config controls a discovery run.
type Config struct {
	Region      riot.Region
	Credentials []riot.Credential

	// Queues are the ladders scanned on each platform (default: solo and flex).
	Queues []riot.RankedQueue

	// PollInterval is how often a credential retries a denied league reservation.
	PollInterval time.Duration
}

// Discover fetches the challenger ladders for every platform and queue with
// every credential, one goroutine per credential. Each call reserves the
// league class in table first. A failed ladder is logged and skipped; only
// context cancellation and budget backend failures abort the run.
//
// The returned players are ordered by first appearance walking credentials,
// platforms, queues and entries in order.
func Discover(ctx context.Context, fetcher LeagueFetcher, table ratelimit.Table, cfg Config) ([]Player, error) {
	if len(cfg.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	if !cfg.Region.Valid() {
		return nil, fmt.Errorf("%w: %q", riot.ErrUnknownRegion, cfg.Region)
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = riot.DefaultQueues()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	logger := logging.NewLogger("discovery").With().Str("region", string(cfg.Region)).Logger()
	platforms := cfg.Region.Platforms()

	// results[i] holds credential i's entries in walk order.
	results := make([][]sighting, len(cfg.Credentials))

	g, gctx := errgroup.WithContext(ctx)
	for i, cred := range cfg.Credentials {
		credLogger := logging.WithCredential(logger, cred)
		g.Go(func() error {
			for _, platform := range platforms {
				for _, queue := range queues {
					if err := waitReserve(gctx, table, cred, poll); err != nil {
						return err
					}
					list, err := fetcher.League(gctx, client.TierChallenger, platform, queue, cred)
					if err != nil {
						if gctx.Err() != nil {
							return gctx.Err()
						}
						leagueCallsTotal.WithLabelValues("failed").Inc()
						credLogger.Warn().
							Err(err).
							Str("platform", string(platform)).
							Str("queue", string(queue)).
							Msg("Skipping league ladder")
						continue
					}
					leagueCallsTotal.WithLabelValues("ok").Inc()
					for _, e := range list.Entries {
						results[i] = append(results[i], sighting{key: keyOf(platform, e), summonerID: e.SummonerID})
					}
				}
			}
			credLogger.Debug().Int("entries", len(results[i])).Msg("Credential discovery finished")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	players := merge(cfg.Credentials, results)
	discoveredPlayers.Set(float64(len(players)))
	logger.Info().
		Int("players", len(players)).
		Int("credentials", len(cfg.Credentials)).
		Msg("Discovery complete")
	return players, nil
}

type sighting struct {
	key        PlayerKey
	summonerID string
}

func keyOf(platform riot.Platform, e riot.LeagueEntry) PlayerKey {
	return PlayerKey{
		Platform:     platform,
		LeaguePoints: e.LeaguePoints,
		Rank:         e.Rank,
		Wins:         e.Wins,
		Losses:       e.Losses,
		Veteran:      e.Veteran,
		Inactive:     e.Inactive,
		FreshBlood:   e.FreshBlood,
		HotStreak:    e.HotStreak,
	}
}

// merge groups sightings by key. The first id a credential saw for a key wins.
func merge(creds []riot.Credential, results [][]sighting) []Player {
	index := make(map[PlayerKey]int)
	var players []Player
	for i, cred := range creds {
		for _, s := range results[i] {
			idx, ok := index[s.key]
			if !ok {
				idx = len(players)
				index[s.key] = idx
				players = append(players, Player{Key: s.key, IDs: make(map[riot.Credential]string, len(creds))})
			}
			if _, seen := players[idx].IDs[cred]; !seen && s.summonerID != "" {
				players[idx].IDs[cred] = s.summonerID
			}
		}
	}
	return players
}

// waitReserve polls table until the league class is reserved for cred.
func waitReserve(ctx context.Context, table ratelimit.Table, cred riot.Credential, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		ok, err := table.TryReserve(ctx, cred, time.Now(), ratelimit.ClassLeague)
		if err != nil {
			return fmt.Errorf("reserve league budget: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Partition splits players into contiguous shares of ceil(n/k), share i
// owned by creds[i]. Each seed carries the owning credential's own summoner
// id; players the owner never saw are skipped.
func Partition(players []Player, creds []riot.Credential, logger zerolog.Logger) []riot.SeedIdentity {
	if len(creds) == 0 || len(players) == 0 {
		return nil
	}
	share := (len(players) + len(creds) - 1) / len(creds)

	seeds := make([]riot.SeedIdentity, 0, len(players))
	skipped := 0
	for i, p := range players {
		cred := creds[i/share]
		id, ok := p.IDs[cred]
		if !ok {
			skipped++
			credLogger := logging.WithCredential(logger, cred)
			credLogger.Warn().
				Str("platform", string(p.Key.Platform)).
				Int("league_points", p.Key.LeaguePoints).
				Msg("Skipping player unseen by owning credential")
			continue
		}
		seeds = append(seeds, riot.SeedIdentity{Platform: p.Key.Platform, Credential: cred, SummonerID: id})
	}
	if skipped > 0 {
		logger.Info().Int("skipped", skipped).Int("seeds", len(seeds)).Msg("Partitioned seed backlog")
	}
	return seeds
}
