// Package testutil provides a programmable Riot API server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/match-collector/pkg/riot"
)

// MockResponse overrides the reply for one request path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockRequest is one request observed by the server.
type MockRequest struct {
	Host       string
	Path       string
	Query      string
	Credential riot.Credential
	UserAgent  string
	Time       time.Time
}

// MockRiot serves the league, summoner and match endpoints on
// "/{host}/lol/...". Point a client at it with HostFormat URL()+"/%s".
type MockRiot struct {
	server *httptest.Server

	mu        sync.RWMutex
	leagues   map[string]riot.LeagueList
	summoners map[string]string
	matchIDs  map[string][]string
	matches   map[string]string
	overrides map[string]MockResponse
	requests  []MockRequest
}

// NewMockRiot starts a new mock server.
func NewMockRiot() *MockRiot {
	m := &MockRiot{
		leagues:   make(map[string]riot.LeagueList),
		summoners: make(map[string]string),
		matchIDs:  make(map[string][]string),
		matches:   make(map[string]string),
		overrides: make(map[string]MockResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{host}/lol/league/v4/{tier}/by-queue/{queue}", m.handleLeague)
	mux.HandleFunc("GET /{host}/lol/summoner/v4/summoners/{id}", m.handleSummoner)
	mux.HandleFunc("GET /{host}/lol/match/v5/matches/by-puuid/{puuid}/ids", m.handleMatchIDs)
	mux.HandleFunc("GET /{host}/lol/match/v5/matches/{id}", m.handleMatch)

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
		m.mu.Lock()
		m.requests = append(m.requests, MockRequest{
			Host:       host,
			Path:       r.URL.Path,
			Query:      r.URL.RawQuery,
			Credential: riot.Credential(r.Header.Get("X-Riot-Token")),
			UserAgent:  r.Header.Get("User-Agent"),
			Time:       time.Now(),
		})
		override, hasOverride := m.overrides[r.URL.Path]
		m.mu.Unlock()

		if hasOverride {
			writeOverride(w, override)
			return
		}
		mux.ServeHTTP(w, r)
	}))

	return m
}

// URL returns the server base URL.
func (m *MockRiot) URL() string {
	return m.server.URL
}

// HostFormat returns a client host pattern routed to this server.
func (m *MockRiot) HostFormat() string {
	return m.server.URL + "/%s"
}

// Close shuts down the server.
func (m *MockRiot) Close() {
	m.server.Close()
}

// SetLeague sets the challenger ladder that cred sees for a platform and queue.
func (m *MockRiot) SetLeague(cred riot.Credential, platform riot.Platform, queue riot.RankedQueue, list riot.LeagueList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leagues[leagueKey(cred, platform, string(queue))] = list
}

// AddSummoner registers a summoner id that resolves to puuid for cred only.
func (m *MockRiot) AddSummoner(cred riot.Credential, platform riot.Platform, summonerID, puuid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summoners[summonerKey(cred, platform, summonerID)] = puuid
}

// SetMatchIDs sets the match history returned for puuid in region.
func (m *MockRiot) SetMatchIDs(region riot.Region, puuid string, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchIDs[string(region)+"|"+puuid] = append([]string(nil), ids...)
}

// AddMatch registers a match payload under its id.
func (m *MockRiot) AddMatch(region riot.Region, matchID, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[string(region)+"|"+matchID] = body
}

// SetResponse forces the reply for an exact request path such as
// "/europe/lol/match/v5/matches/EUW1_1".
func (m *MockRiot) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[path] = resp
}

// Requests returns a copy of every request observed so far.
func (m *MockRiot) Requests() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockRequest(nil), m.requests...)
}

// RequestCount returns how many requests had a path containing fragment.
func (m *MockRiot) RequestCount(fragment string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if strings.Contains(r.Path, fragment) {
			n++
		}
	}
	return n
}

// Reset clears the request log.
func (m *MockRiot) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

func (m *MockRiot) handleLeague(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("tier") != "challengerleagues" {
		writeStatus(w, http.StatusNotFound)
		return
	}
	cred := riot.Credential(r.Header.Get("X-Riot-Token"))
	key := leagueKey(cred, riot.Platform(r.PathValue("host")), r.PathValue("queue"))

	m.mu.RLock()
	list, ok := m.leagues[key]
	m.mu.RUnlock()
	if !ok {
		list = riot.LeagueList{Tier: "CHALLENGER", Queue: r.PathValue("queue")}
	}
	writeJSON(w, list)
}

func (m *MockRiot) handleSummoner(w http.ResponseWriter, r *http.Request) {
	cred := riot.Credential(r.Header.Get("X-Riot-Token"))
	id := r.PathValue("id")

	m.mu.RLock()
	puuid, ok := m.summoners[summonerKey(cred, riot.Platform(r.PathValue("host")), id)]
	m.mu.RUnlock()
	if !ok {
		writeStatus(w, http.StatusNotFound)
		return
	}
	writeJSON(w, riot.Summoner{ID: id, PUUID: puuid, SummonerLevel: 100})
}

func (m *MockRiot) handleMatchIDs(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	ids, ok := m.matchIDs[r.PathValue("host")+"|"+r.PathValue("puuid")]
	m.mu.RUnlock()
	if !ok {
		ids = []string{}
	}
	writeJSON(w, ids)
}

func (m *MockRiot) handleMatch(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	body, ok := m.matches[r.PathValue("host")+"|"+r.PathValue("id")]
	m.mu.RUnlock()
	if !ok {
		writeStatus(w, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// MatchJSON builds a minimal match-v5 payload.
func MatchJSON(matchID string, gameCreation int64, puuids ...string) string {
	type participant struct {
		ParticipantID int    `json:"participantId"`
		PUUID         string `json:"puuid"`
		ChampionName  string `json:"championName"`
		TeamID        int    `json:"teamId"`
		Win           bool   `json:"win"`
		Kills         int    `json:"kills"`
	}
	parts := make([]participant, len(puuids))
	for i, p := range puuids {
		team := 100
		if i >= 5 {
			team = 200
		}
		parts[i] = participant{ParticipantID: i + 1, PUUID: p, ChampionName: "Annie", TeamID: team, Win: team == 100, Kills: i}
	}

	payload := map[string]any{
		"metadata": map[string]any{
			"dataVersion":  "2",
			"matchId":      matchID,
			"participants": puuids,
		},
		"info": map[string]any{
			"gameId":             gameCreation,
			"gameCreation":       gameCreation,
			"gameStartTimestamp": gameCreation + 1000,
			"gameDuration":       1800,
			"gameMode":           "CLASSIC",
			"gameType":           "MATCHED_GAME",
			"gameVersion":        "14.1.1",
			"mapId":              11,
			"platformId":         strings.SplitN(matchID, "_", 2)[0],
			"queueId":            420,
			"participants":       parts,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal match payload: %v", err))
	}
	return string(data)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status":{"message":"Rate limit exceeded","status_code":429}}`,
		Headers: map[string]string{
			"Retry-After":  "10",
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status":{"message":"Internal server error","status_code":500}}`,
		Headers:    map[string]string{"Content-Type": "application/json;charset=utf-8"},
	}
}

func leagueKey(cred riot.Credential, platform riot.Platform, queue string) string {
	return string(cred) + "|" + string(platform) + "|" + queue
}

func summonerKey(cred riot.Credential, platform riot.Platform, id string) string {
	return string(cred) + "|" + string(platform) + "|" + id
}

func writeOverride(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":{"message":%q,"status_code":%d}}`, http.StatusText(code), code)
}
