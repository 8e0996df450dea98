// Package client is the remote provider client for the Riot API. It
// performs one labeled remote operation at a time and has no concurrency
// control of its own: budgeting the first attempt is the caller's job, and
// retries reserve through Config.Budget.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/match-collector/pkg/ratelimit"
	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for provider calls.
var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_provider_requests_total",
		Help: "Total provider requests by endpoint and status",
	}, []string{"endpoint", "status"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collector_provider_request_duration_seconds",
		Help:    "Provider request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_provider_errors_total",
		Help: "Total provider errors by class",
	}, []string{"class"})
)

// Endpoint labels used for metrics and logs.
const (
	endpointLeague   = "league"
	endpointSummoner = "summoner"
	endpointMatchIDs = "match_ids"
	endpointMatch    = "match"
)

// endpointClasses maps each endpoint to the budget class its calls consume.
var endpointClasses = map[string]ratelimit.EndpointClass{
	endpointLeague:   ratelimit.ClassLeague,
	endpointSummoner: ratelimit.ClassIdentity,
	endpointMatchIDs: ratelimit.ClassMatchHistory,
	endpointMatch:    ratelimit.ClassMatchRecord,
}

// DefaultBudgetPoll is how often a retry re-checks a denied reservation.
const DefaultBudgetPoll = 25 * time.Millisecond

// DefaultHostFormat is the provider host pattern; %s is a platform or region.
const DefaultHostFormat = "https://%s.api.riotgames.com"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 16 << 20

// Tier is a league tier above the divisional ladder.
type Tier string

// Apex tiers.
const (
	TierChallenger  Tier = "challenger"
	TierGrandmaster Tier = "grandmaster"
	TierMaster      Tier = "master"
)

// MatchListOptions filters the match id list.
type MatchListOptions struct {
	// Type restricts match type ("ranked", "normal", ...). Empty for all.
	Type string

	// Queue restricts to a queue id. Zero for all.
	Queue int

	// Start is the index offset into the history.
	Start int

	// Count is the page size (provider maximum 100).
	Count int

	// StartTime and EndTime bound the window. Zero values are omitted.
	StartTime time.Time
	EndTime   time.Time
}

// DefaultMatchListOptions returns ranked matches, first page of 20.
func DefaultMatchListOptions() MatchListOptions {
	return MatchListOptions{Type: "ranked", Count: 20}
}

// Client is the Riot API client.
type Client struct {
	httpClient *http.Client
	config     Config
	proxies    map[riot.Credential]*proxyPool
	logger     zerolog.Logger
}

// Config holds the client configuration. Per-credential settings are explicit
// maps owned by the caller.
type Config struct {
	// HostFormat is a fmt pattern producing the base URL for a platform or region.
	HostFormat string

	// Timeout bounds each HTTP call.
	Timeout time.Duration

	// UserAgent is sent when a credential has no entry in UserAgents.
	UserAgent string

	// UserAgents assigns a User-Agent per credential.
	UserAgents map[riot.Credential]string

	// Proxies assigns an ordered proxy list per credential.
	Proxies map[riot.Credential][]string

	// MatchList configures the match history query used by FetchSeedMatchIDs.
	MatchList MatchListOptions

	// Retry configures optional retries of server and network failures.
	Retry RetryConfig

	// Budget is reserved before every retry attempt so retried calls keep the
	// per-credential spacing. Required when Retry.MaxAttempts > 1.
	Budget ratelimit.Table

	// BudgetPoll is how often a retry polls a denied reservation.
	BudgetPoll time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		HostFormat: DefaultHostFormat,
		Timeout:    30 * time.Second,
		UserAgent:  "match-collector/0.1.0",
		MatchList:  DefaultMatchListOptions(),
		Retry:      DefaultRetryConfig(),
		BudgetPoll: DefaultBudgetPoll,
	}
}

// New creates a new provider client.
func New(cfg Config) (*Client, error) {
	if cfg.HostFormat == "" {
		return nil, fmt.Errorf("host format is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.MatchList.Count < 0 || cfg.MatchList.Count > 100 {
		return nil, fmt.Errorf("match list count must be in [0, 100] (got %d)", cfg.MatchList.Count)
	}
	if cfg.Retry.MaxAttempts > 1 && cfg.Budget == nil {
		return nil, fmt.Errorf("retries require a budget table")
	}
	if cfg.BudgetPoll <= 0 {
		cfg.BudgetPoll = DefaultBudgetPoll
	}

	proxies := make(map[riot.Credential]*proxyPool, len(cfg.Proxies))
	for cred, list := range cfg.Proxies {
		if len(list) == 0 {
			continue
		}
		pool, err := newProxyPool(list, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("proxies for %s: %w", cred.Masked(), err)
		}
		proxies[cred] = pool
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		proxies:    proxies,
		logger:     log.With().Str("component", "provider").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// League fetches an apex league ladder for a queue on a platform.
func (c *Client) League(ctx context.Context, tier Tier, platform riot.Platform, queue riot.RankedQueue, cred riot.Credential) (*riot.LeagueList, error) {
	u := c.baseURL(string(platform)) + fmt.Sprintf("/lol/league/v4/%sleagues/by-queue/%s", tier, url.PathEscape(string(queue)))

	var out riot.LeagueList
	if err := c.getJSON(ctx, endpointLeague, u, cred, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SummonerByID resolves an encrypted summoner id, which is only valid for
// the credential that produced it.
func (c *Client) SummonerByID(ctx context.Context, platform riot.Platform, summonerID string, cred riot.Credential) (*riot.Summoner, error) {
	u := c.baseURL(string(platform)) + "/lol/summoner/v4/summoners/" + url.PathEscape(summonerID)

	var out riot.Summoner
	if err := c.getJSON(ctx, endpointSummoner, u, cred, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MatchIDsByPUUID lists match ids for a player.
func (c *Client) MatchIDsByPUUID(ctx context.Context, region riot.Region, puuid string, cred riot.Credential, opts MatchListOptions) ([]string, error) {
	q := url.Values{}
	if opts.Queue != 0 {
		q.Set("queue", strconv.Itoa(opts.Queue))
	}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if !opts.EndTime.IsZero() {
		q.Set("endTime", strconv.FormatInt(opts.EndTime.Unix(), 10))
	}
	if !opts.StartTime.IsZero() {
		q.Set("startTime", strconv.FormatInt(opts.StartTime.Unix(), 10))
	}
	q.Set("start", strconv.Itoa(opts.Start))
	if opts.Count > 0 {
		q.Set("count", strconv.Itoa(opts.Count))
	}

	u := c.baseURL(string(region)) + "/lol/match/v5/matches/by-puuid/" + url.PathEscape(puuid) + "/ids?" + q.Encode()

	var out []string
	if err := c.getJSON(ctx, endpointMatchIDs, u, cred, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MatchByID fetches a full match record.
func (c *Client) MatchByID(ctx context.Context, region riot.Region, matchID string, cred riot.Credential) (*riot.MatchRecord, error) {
	u := c.baseURL(string(region)) + "/lol/match/v5/matches/" + url.PathEscape(matchID)

	body, err := c.get(ctx, endpointMatch, u, cred)
	if err != nil {
		return nil, err
	}
	rec, err := riot.DecodeMatchRecord(body)
	if err != nil {
		return nil, c.decodeError(endpointMatch, u, err)
	}
	if rec.Metadata.MatchID == "" {
		return nil, c.decodeError(endpointMatch, u, fmt.Errorf("match payload has no matchId"))
	}
	return rec, nil
}

// FetchSeedMatchIDs is the unified stage-1 call: it resolves the seed's
// summoner to a puuid and lists that player's matches since startTime.
func (c *Client) FetchSeedMatchIDs(ctx context.Context, region riot.Region, seed riot.SeedIdentity, startTime time.Time) ([]string, error) {
	summoner, err := c.SummonerByID(ctx, seed.Platform, seed.SummonerID, seed.Credential)
	if err != nil {
		return nil, fmt.Errorf("resolve summoner: %w", err)
	}
	if summoner.PUUID == "" {
		return nil, fmt.Errorf("resolve summoner: %w", c.decodeError(endpointSummoner, seed.SummonerID, fmt.Errorf("summoner has no puuid")))
	}

	opts := c.config.MatchList
	opts.StartTime = startTime
	ids, err := c.MatchIDsByPUUID(ctx, region, summoner.PUUID, seed.Credential, opts)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return ids, nil
}

// FetchMatchRecord is the stage-3 call.
func (c *Client) FetchMatchRecord(ctx context.Context, region riot.Region, matchID string, cred riot.Credential) (*riot.MatchRecord, error) {
	return c.MatchByID(ctx, region, matchID, cred)
}

func (c *Client) baseURL(host string) string {
	return fmt.Sprintf(c.config.HostFormat, host)
}

func (c *Client) getJSON(ctx context.Context, endpoint, u string, cred riot.Credential, out interface{}) error {
	body, err := c.get(ctx, endpoint, u, cred)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.decodeError(endpoint, u, err)
	}
	return nil
}

func (c *Client) decodeError(endpoint, u string, err error) error {
	providerErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
	c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Malformed provider response")
	return &ProviderError{
		StatusCode: http.StatusOK,
		ErrorClass: ErrorClassDecode,
		Message:    "malformed response",
		URL:        u,
		Err:        err,
	}
}

// get performs an authenticated GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, endpoint, u string, cred riot.Credential) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Riot-Token", string(cred))
	req.Header.Set("User-Agent", c.userAgent(cred))
	req.Header.Set("Accept", "application/json")

	var body []byte
	err = retryWithBackoff(ctx, c.config.Retry, c.logger, c.retryReservation(endpoint, cred), func() error {
		startTime := time.Now()
		resp, reqErr := c.send(req, cred)
		providerRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())

		if reqErr != nil {
			providerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			providerRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Debug().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return &ProviderError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				URL:        u,
				Err:        reqErr,
			}
		}
		defer resp.Body.Close()

		providerRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if resp.StatusCode != http.StatusOK {
			class := classifyStatus(resp.StatusCode)
			if class == "" {
				class = ErrorClassClient
			}
			providerErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Int("status_code", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("Provider returned error status")
			return &ProviderError{
				StatusCode: resp.StatusCode,
				ErrorClass: class,
				Message:    StatusDescription(resp.StatusCode),
				URL:        u,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}
		if readErr != nil {
			providerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &ProviderError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read body",
				URL:        u,
				Err:        readErr,
			}
		}

		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// retryReservation returns the hook that blocks a retry until the
// endpoint's class is reserved for cred.
func (c *Client) retryReservation(endpoint string, cred riot.Credential) func(context.Context) error {
	if c.config.Budget == nil {
		return nil
	}
	class := endpointClasses[endpoint]
	return func(ctx context.Context) error {
		ticker := time.NewTicker(c.config.BudgetPoll)
		defer ticker.Stop()
		for {
			ok, err := c.config.Budget.TryReserve(ctx, cred, time.Now(), class)
			if err != nil {
				return err
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
}

// send routes the request through the credential's proxies, falling back to
// the direct client when none are configured or all have failed.
func (c *Client) send(req *http.Request, cred riot.Credential) (*http.Response, error) {
	pool := c.proxies[cred]
	for pool != nil {
		proxyURL, proxyClient := pool.next()
		if proxyURL == nil {
			break
		}
		resp, err := proxyClient.Do(req)
		if err == nil {
			return resp, nil
		}
		if req.Context().Err() != nil {
			return nil, err
		}
		pool.drop(proxyURL)
		c.logger.Warn().
			Err(err).
			Str("credential", cred.Masked()).
			Str("proxy", proxyURL.Host).
			Int("remaining", pool.remaining()).
			Msg("Dropping failed proxy")
	}
	return c.httpClient.Do(req)
}

func (c *Client) userAgent(cred riot.Credential) string {
	if ua, ok := c.config.UserAgents[cred]; ok && ua != "" {
		return ua
	}
	return c.config.UserAgent
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
