package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/match-collector/pkg/riot"
	_ "modernc.org/sqlite"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS game_data (
	match_id           TEXT PRIMARY KEY,
	game_id            INTEGER NOT NULL,
	platform_id        TEXT NOT NULL,
	queue_id           INTEGER NOT NULL,
	game_mode          TEXT NOT NULL,
	game_type          TEXT NOT NULL,
	game_version       TEXT NOT NULL,
	map_id             INTEGER NOT NULL,
	game_creation      INTEGER NOT NULL,
	game_start         INTEGER NOT NULL,
	game_duration      INTEGER NOT NULL,
	end_of_game_result TEXT NOT NULL DEFAULT '',
	raw                TEXT NOT NULL,
	collected_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS game_participants (
	match_id                        TEXT NOT NULL REFERENCES game_data(match_id),
	participant_id                  INTEGER NOT NULL,
	puuid                           TEXT NOT NULL,
	riot_id_game_name               TEXT NOT NULL DEFAULT '',
	champion_id                     INTEGER NOT NULL,
	champion_name                   TEXT NOT NULL,
	champ_level                     INTEGER NOT NULL,
	team_id                         INTEGER NOT NULL,
	team_position                   TEXT NOT NULL DEFAULT '',
	win                             INTEGER NOT NULL,
	kills                           INTEGER NOT NULL,
	deaths                          INTEGER NOT NULL,
	assists                         INTEGER NOT NULL,
	gold_earned                     INTEGER NOT NULL,
	total_damage_dealt_to_champions INTEGER NOT NULL,
	total_minions_killed            INTEGER NOT NULL,
	vision_score                    INTEGER NOT NULL,
	PRIMARY KEY (match_id, participant_id)
);
CREATE INDEX IF NOT EXISTS idx_game_participants_puuid ON game_participants(puuid);
`

// SQLiteStore persists matches into game_data and game_participants.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path and
// initialises the schema. Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer goroutine; a single connection also keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Write inserts the match and its participants in one transaction.
func (s *SQLiteStore) Write(ctx context.Context, rec *riot.MatchRecord) error {
	raw, err := rawPayload(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	info := rec.Info
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO game_data
		(match_id, game_id, platform_id, queue_id, game_mode, game_type, game_version, map_id,
		 game_creation, game_start, game_duration, end_of_game_result, raw, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Metadata.MatchID, info.GameID, info.PlatformID, info.QueueID, info.GameMode, info.GameType,
		info.GameVersion, info.MapID, info.GameCreation, info.GameStart, info.GameDuration,
		info.EndOfGameResult, string(raw), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert game_data: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO game_participants
		(match_id, participant_id, puuid, riot_id_game_name, champion_id, champion_name, champ_level,
		 team_id, team_position, win, kills, deaths, assists, gold_earned,
		 total_damage_dealt_to_champions, total_minions_killed, vision_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare game_participants: %w", err)
	}
	defer stmt.Close()

	for _, p := range info.Participants {
		if _, err := stmt.ExecContext(ctx,
			rec.Metadata.MatchID, p.ParticipantID, p.PUUID, p.RiotIDGameName, p.ChampionID, p.ChampionName,
			p.ChampLevel, p.TeamID, p.TeamPosition, p.Win, p.Kills, p.Deaths, p.Assists, p.GoldEarned,
			p.TotalDamageDealtToChampions, p.TotalMinionsKilled, p.VisionScore,
		); err != nil {
			return fmt.Errorf("insert participant %d: %w", p.ParticipantID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountMatches returns the number of stored matches.
func (s *SQLiteStore) CountMatches(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_data`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rawPayload returns the provider payload, or a re-encoding of rec when the
// record was not decoded from the wire.
func rawPayload(rec *riot.MatchRecord) ([]byte, error) {
	if rec.Metadata.MatchID == "" {
		return nil, fmt.Errorf("record has no match id")
	}
	if len(rec.Raw) > 0 {
		return rec.Raw, nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return raw, nil
}
