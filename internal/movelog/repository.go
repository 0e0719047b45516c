// Package movelog persists every recognition cycle to PostgreSQL so games can
// be replayed and misrecognitions audited later.
package movelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/boardsight/internal/domain"
)

var ErrDuplicateCycle = errors.New("cycle already recorded")

type Repository interface {
	RecordCycle(ctx context.Context, rec domain.CycleRecord) error
	RecentCycles(ctx context.Context, gameID string, limit int) ([]domain.CycleRecord, error)
	GameMoves(ctx context.Context, gameID string) ([]string, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS board_cycles (
	id                 BIGSERIAL PRIMARY KEY,
	cycle_id           TEXT NOT NULL UNIQUE,
	game_id            TEXT NOT NULL,
	seq                BIGINT NOT NULL DEFAULT 0,
	turn               TEXT NOT NULL,
	fen                TEXT NOT NULL DEFAULT '',
	post_fen           TEXT NOT NULL DEFAULT '',
	move               TEXT NOT NULL DEFAULT '',
	reason             TEXT NOT NULL DEFAULT '',
	message            TEXT NOT NULL DEFAULT '',
	candidates         JSONB NOT NULL DEFAULT '[]'::jsonb,
	avoided_repetition BOOLEAN NOT NULL DEFAULT FALSE,
	low_confidence     JSONB NOT NULL DEFAULT '[]'::jsonb,
	classify_ms        BIGINT NOT NULL DEFAULT 0,
	engine_ms          BIGINT NOT NULL DEFAULT 0,
	total_ms           BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS board_cycles_game_idx ON board_cycles (game_id, created_at DESC);`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Open connects to databaseURL, checks the connection and creates the table
// when missing. The caller owns the returned *sql.DB.
func Open(ctx context.Context, databaseURL string) (Repository, *sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return NewRepository(db), db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure board_cycles schema: %w", err)
	}
	return nil
}

func (r *repository) RecordCycle(ctx context.Context, rec domain.CycleRecord) error {
	args, err := cycleArgs(rec)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO board_cycles (
			cycle_id,
			game_id,
			seq,
			turn,
			fen,
			post_fen,
			move,
			reason,
			message,
			candidates,
			avoided_repetition,
			low_confidence,
			classify_ms,
			engine_ms,
			total_ms,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12::jsonb, $13, $14, $15, $16)
		ON CONFLICT (cycle_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert board cycle: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateCycle
	}
	return nil
}

func cycleArgs(rec domain.CycleRecord) ([]any, error) {
	if strings.TrimSpace(rec.CycleID) == "" || strings.TrimSpace(rec.GameID) == "" {
		return nil, fmt.Errorf("cycle and game id are required")
	}
	cands := rec.Candidates
	if cands == nil {
		cands = []domain.Candidate{}
	}
	candJSON, err := json.Marshal(cands)
	if err != nil {
		return nil, fmt.Errorf("marshal candidates: %w", err)
	}
	low := rec.LowConfidence
	if low == nil {
		low = []int{}
	}
	lowJSON, err := json.Marshal(low)
	if err != nil {
		return nil, fmt.Errorf("marshal low_confidence: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return []any{
		rec.CycleID,
		rec.GameID,
		int64(rec.Seq),
		rec.Turn,
		rec.FEN,
		rec.PostFEN,
		rec.Move,
		rec.Reason,
		rec.Message,
		string(candJSON),
		rec.AvoidedRepetition,
		string(lowJSON),
		rec.ClassifyLatency.Milliseconds(),
		rec.EngineLatency.Milliseconds(),
		rec.TotalLatency.Milliseconds(),
		created,
	}, nil
}

func (r *repository) RecentCycles(ctx context.Context, gameID string, limit int) ([]domain.CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT
			cycle_id,
			game_id,
			seq,
			turn,
			fen,
			post_fen,
			move,
			reason,
			message,
			candidates,
			avoided_repetition,
			low_confidence,
			classify_ms,
			engine_ms,
			total_ms,
			created_at
		FROM board_cycles
		WHERE game_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("select board cycles: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CycleRecord, 0, limit)
	for rows.Next() {
		var (
			rec        domain.CycleRecord
			seq        int64
			candJSON   []byte
			lowJSON    []byte
			classifyMS int64
			engineMS   int64
			totalMS    int64
		)
		if err := rows.Scan(
			&rec.CycleID,
			&rec.GameID,
			&seq,
			&rec.Turn,
			&rec.FEN,
			&rec.PostFEN,
			&rec.Move,
			&rec.Reason,
			&rec.Message,
			&candJSON,
			&rec.AvoidedRepetition,
			&lowJSON,
			&classifyMS,
			&engineMS,
			&totalMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan board cycle: %w", err)
		}
		rec.Seq = uint64(seq)
		if err := json.Unmarshal(candJSON, &rec.Candidates); err != nil {
			return nil, fmt.Errorf("unmarshal candidates: %w", err)
		}
		if err := json.Unmarshal(lowJSON, &rec.LowConfidence); err != nil {
			return nil, fmt.Errorf("unmarshal low_confidence: %w", err)
		}
		rec.ClassifyLatency = time.Duration(classifyMS) * time.Millisecond
		rec.EngineLatency = time.Duration(engineMS) * time.Millisecond
		rec.TotalLatency = time.Duration(totalMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board cycles: %w", err)
	}
	return out, nil
}

// GameMoves lists the moves played in gameID, oldest first.
func (r *repository) GameMoves(ctx context.Context, gameID string) ([]string, error) {
	const query = `
		SELECT move
		FROM board_cycles
		WHERE game_id = $1 AND move <> '' AND reason = ''
		ORDER BY created_at ASC, seq ASC`

	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("select game moves: %w", err)
	}
	defer rows.Close()

	var moves []string
	for rows.Next() {
		var mv string
		if err := rows.Scan(&mv); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		moves = append(moves, mv)
	}
	return moves, rows.Err()
}
