// Package diagstore keeps the recent recognition cycles of each game in Redis
// so a running bot can be inspected without reading its logs.
package diagstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/boardsight/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	ttlGame          = 24 * time.Hour
	defaultMaxCycles = 50
)

type Store struct {
	rdb       *redis.Client
	maxCycles int64
}

func NewStore(rdb *redis.Client, maxCycles int) *Store {
	if maxCycles <= 0 {
		maxCycles = defaultMaxCycles
	}
	return &Store{rdb: rdb, maxCycles: int64(maxCycles)}
}

// Open connects to redisURL and checks the server answers.
func Open(ctx context.Context, redisURL string, maxCycles int) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("REDIS_URL required for diagnostics store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(rdb, maxCycles), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyCycles(gameID string) string { return "bs:game:" + strings.TrimSpace(gameID) + ":cycles" }
func (s *Store) keyLatest(gameID string) string { return "bs:game:" + strings.TrimSpace(gameID) + ":latest" }
func (s *Store) keyCurrentGame() string         { return "bs:current_game" }

// RecordCycle stores rec as the game's latest cycle and prepends it to the
// bounded cycle list.
func (s *Store) RecordCycle(ctx context.Context, rec domain.CycleRecord) error {
	if strings.TrimSpace(rec.GameID) == "" {
		return errors.New("cycle without game id")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.keyLatest(rec.GameID), raw, ttlGame)
		p.LPush(ctx, s.keyCycles(rec.GameID), raw)
		p.LTrim(ctx, s.keyCycles(rec.GameID), 0, s.maxCycles-1)
		p.Expire(ctx, s.keyCycles(rec.GameID), ttlGame)
		p.Set(ctx, s.keyCurrentGame(), rec.GameID, ttlGame)
		return nil
	})
	return err
}

// Latest returns the newest cycle of gameID, or nil when none is stored.
func (s *Store) Latest(ctx context.Context, gameID string) (*domain.CycleRecord, error) {
	raw, err := s.rdb.Get(ctx, s.keyLatest(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.CycleRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent returns up to limit cycles of gameID, newest first.
func (s *Store) Recent(ctx context.Context, gameID string, limit int) ([]domain.CycleRecord, error) {
	if limit <= 0 || int64(limit) > s.maxCycles {
		limit = int(s.maxCycles)
	}
	raws, err := s.rdb.LRange(ctx, s.keyCycles(gameID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.CycleRecord, 0, len(raws))
	for _, raw := range raws {
		var rec domain.CycleRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// CurrentGame is the game id of the most recently recorded cycle.
func (s *Store) CurrentGame(ctx context.Context) (string, error) {
	id, err := s.rdb.Get(ctx, s.keyCurrentGame()).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" {
		return nil, fmt.Errorf("unsupported redis scheme %q", u.Scheme)
	}
	pass, _ := u.User.Password()
	db := 0
	if p := strings.Trim(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
