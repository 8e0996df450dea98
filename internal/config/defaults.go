package config

const (
	defaultRegion          = "europe"
	defaultStartDate       = "2024-01-10"
	defaultMatchListType   = "ranked"
	defaultMatchListCount  = 20
	defaultTickMS          = 100
	defaultProgressSeconds = 30
	defaultIntervalSeconds = 1.21
	defaultClientTimeout   = 30
	defaultHostFormat      = "https://%s.api.riotgames.com"
	defaultUserAgent       = "match-collector/0.1.0"
	defaultRetryAttempts   = 1
	defaultDedupTTLSeconds = 86400
	defaultSinkKind        = "sqlite"
	defaultSinkPath        = "matches.db"
	defaultSinkPollMS      = 50
	defaultSinkMaxConns    = 2
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultSoloQueue       = "RANKED_SOLO_5x5"
	defaultFlexQueue       = "RANKED_FLEX_SR"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Region:      defaultRegion,
		Credentials: []string{},
		StartDate:   defaultStartDate,
		Queues:      []string{defaultSoloQueue, defaultFlexQueue},
		MatchList: MatchList{
			Type:  defaultMatchListType,
			Count: defaultMatchListCount,
		},
		Scheduler: Scheduler{
			TickMS:                  defaultTickMS,
			ProgressIntervalSeconds: defaultProgressSeconds,
		},
		RateLimit: RateLimit{
			LeagueSeconds:       defaultIntervalSeconds,
			IdentitySeconds:     defaultIntervalSeconds,
			MatchHistorySeconds: defaultIntervalSeconds,
			MatchRecordSeconds:  defaultIntervalSeconds,
		},
		Client: Client{
			HostFormat:     defaultHostFormat,
			TimeoutSeconds: defaultClientTimeout,
			UserAgent:      defaultUserAgent,
			RetryAttempts:  defaultRetryAttempts,
		},
		Redis: Redis{
			DedupTTLSeconds: defaultDedupTTLSeconds,
		},
		Sink: Sink{
			Kind:     defaultSinkKind,
			Path:     defaultSinkPath,
			PollMS:   defaultSinkPollMS,
			MaxConns: defaultSinkMaxConns,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
