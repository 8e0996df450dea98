package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS game_data (
	match_id           TEXT PRIMARY KEY,
	game_id            BIGINT NOT NULL,
	platform_id        TEXT NOT NULL,
	queue_id           INTEGER NOT NULL,
	game_mode          TEXT NOT NULL,
	game_type          TEXT NOT NULL,
	game_version       TEXT NOT NULL,
	map_id             INTEGER NOT NULL,
	game_creation      BIGINT NOT NULL,
	game_start         BIGINT NOT NULL,
	game_duration      BIGINT NOT NULL,
	end_of_game_result TEXT NOT NULL DEFAULT '',
	raw                JSONB NOT NULL,
	collected_at       TIMESTAMPTZ NOT NULL DEFAULT now()
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
	win                             BOOLEAN NOT NULL,
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

// PostgresStore persists matches into a Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Write inserts the match row, then batches the participant rows, all in
// one transaction.
func (s *PostgresStore) Write(ctx context.Context, rec *riot.MatchRecord) error {
	raw, err := rawPayload(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	info := rec.Info
	tag, err := tx.Exec(ctx, `
		INSERT INTO game_data
		(match_id, game_id, platform_id, queue_id, game_mode, game_type, game_version, map_id,
		 game_creation, game_start, game_duration, end_of_game_result, raw)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (match_id) DO NOTHING`,
		rec.Metadata.MatchID, info.GameID, info.PlatformID, info.QueueID, info.GameMode, info.GameType,
		info.GameVersion, info.MapID, info.GameCreation, info.GameStart, info.GameDuration,
		info.EndOfGameResult, raw,
	)
	if err != nil {
		return fmt.Errorf("insert game_data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}

	b := &pgx.Batch{}
	for _, p := range info.Participants {
		b.Queue(`
			INSERT INTO game_participants
			(match_id, participant_id, puuid, riot_id_game_name, champion_id, champion_name, champ_level,
			 team_id, team_position, win, kills, deaths, assists, gold_earned,
			 total_damage_dealt_to_champions, total_minions_killed, vision_score)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (match_id, participant_id) DO NOTHING`,
			rec.Metadata.MatchID, p.ParticipantID, p.PUUID, p.RiotIDGameName, p.ChampionID, p.ChampionName,
			p.ChampLevel, p.TeamID, p.TeamPosition, p.Win, p.Kills, p.Deaths, p.Assists, p.GoldEarned,
			p.TotalDamageDealtToChampions, p.TotalMinionsKilled, p.VisionScore,
		)
	}
	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountMatches returns the number of stored matches.
func (s *PostgresStore) CountMatches(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM game_data`).Scan(&n)
	return n, err
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
