package riot

import "encoding/json"

// LeagueList is the response of the challenger league endpoint.
type LeagueList struct {
	LeagueID string        `json:"leagueId"`
	Tier     string        `json:"tier"`
	Queue    string        `json:"queue"`
	Name     string        `json:"name"`
	Entries  []LeagueEntry `json:"entries"`
}

// LeagueEntry is one ranked player inside a league.
type LeagueEntry struct {
	SummonerID   string `json:"summonerId"`
	PUUID        string `json:"puuid,omitempty"`
	LeaguePoints int    `json:"leaguePoints"`
	Rank         string `json:"rank"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Veteran      bool   `json:"veteran"`
	Inactive     bool   `json:"inactive"`
	FreshBlood   bool   `json:"freshBlood"`
	HotStreak    bool   `json:"hotStreak"`
}

// Summoner is the response of the summoner-by-id endpoint.
type Summoner struct {
	ID            string `json:"id"`
	AccountID     string `json:"accountId"`
	PUUID         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	RevisionDate  int64  `json:"revisionDate"`
	SummonerLevel int64  `json:"summonerLevel"`
}

// MatchRecord is a completed match as returned by match-v5. Raw keeps the
// exact payload so sinks can persist fields this type does not model.
type MatchRecord struct {
	Metadata MatchMetadata   `json:"metadata"`
	Info     MatchInfo       `json:"info"`
	Raw      json.RawMessage `json:"-"`
}

// MatchMetadata identifies the match and its participants.
type MatchMetadata struct {
	DataVersion  string   `json:"dataVersion"`
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

// MatchInfo holds game-level fields.
type MatchInfo struct {
	GameID          int64         `json:"gameId"`
	GameCreation    int64         `json:"gameCreation"`
	GameStart       int64         `json:"gameStartTimestamp"`
	GameDuration    int64         `json:"gameDuration"`
	GameMode        string        `json:"gameMode"`
	GameType        string        `json:"gameType"`
	GameVersion     string        `json:"gameVersion"`
	MapID           int           `json:"mapId"`
	PlatformID      string        `json:"platformId"`
	QueueID         int           `json:"queueId"`
	EndOfGameResult string        `json:"endOfGameResult"`
	Participants    []Participant `json:"participants"`
}

// Participant is one player's line in a match.
type Participant struct {
	ParticipantID               int    `json:"participantId"`
	PUUID                       string `json:"puuid"`
	RiotIDGameName              string `json:"riotIdGameName"`
	ChampionID                  int    `json:"championId"`
	ChampionName                string `json:"championName"`
	ChampLevel                  int    `json:"champLevel"`
	TeamID                      int    `json:"teamId"`
	TeamPosition                string `json:"teamPosition"`
	Win                         bool   `json:"win"`
	Kills                       int    `json:"kills"`
	Deaths                      int    `json:"deaths"`
	Assists                     int    `json:"assists"`
	GoldEarned                  int    `json:"goldEarned"`
	TotalDamageDealtToChampions int    `json:"totalDamageDealtToChampions"`
	TotalMinionsKilled          int    `json:"totalMinionsKilled"`
	VisionScore                 int    `json:"visionScore"`
}

// DecodeMatchRecord parses a match payload and retains the raw bytes.
func DecodeMatchRecord(data []byte) (*MatchRecord, error) {
	var rec MatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	rec.Raw = append(json.RawMessage(nil), data...)
	return &rec, nil
}
