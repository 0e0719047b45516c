package uci

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNoPosition = errors.New("no position set")

type Config struct {
	BinaryPath string
	Options    Options
	Limits     Limits
	// SearchTimeout of zero lets a search run until its context ends.
	SearchTimeout time.Duration
}

// Analysis is the outcome of one search: ranked candidates and the engine's
// chosen move.
type Analysis struct {
	Candidates []Candidate
	BestMove   string
}

// Engine is a UCI process plus the position it is currently looking at.
type Engine struct {
	session *Session
	cfg     Config
	logger  *zap.Logger

	mu  sync.Mutex
	fen string
}

func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Engine, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, fmt.Errorf("engine binary path required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sess, err := NewSession(ctx, cfg.BinaryPath, cfg.Options, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("engine_started",
		zap.String("binary", cfg.BinaryPath),
		zap.Int("multipv", cfg.Options.MultiPV),
		zap.Int("elo", cfg.Options.Elo),
	)
	return newEngine(sess, cfg, logger), nil
}

func newEngine(sess *Session, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{session: sess, cfg: cfg, logger: logger}
}

func (e *Engine) ValidateFEN(fen string) error { return ValidateFEN(fen) }

// SetPosition replaces the current position. The FEN must pass ValidateFEN.
func (e *Engine) SetPosition(fen string) error {
	fen = strings.TrimSpace(fen)
	if err := ValidateFEN(fen); err != nil {
		return err
	}
	e.mu.Lock()
	e.fen = fen
	e.mu.Unlock()
	return nil
}

func (e *Engine) Position() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fen
}

// Analyze searches the current position and returns at most topN candidates.
func (e *Engine) Analyze(ctx context.Context, topN int) (Analysis, error) {
	fen := e.Position()
	if fen == "" {
		return Analysis{}, ErrNoPosition
	}
	start := time.Now()
	resp, err := e.session.Search(ctx, SearchRequest{
		FEN:     fen,
		Limits:  e.cfg.Limits,
		Timeout: e.cfg.SearchTimeout,
	})
	if err != nil {
		return Analysis{}, err
	}
	cands := resp.Candidates
	if topN > 0 && len(cands) > topN {
		cands = cands[:topN]
	}
	e.logger.Debug("engine_search",
		zap.String("fen", fen),
		zap.String("best", resp.BestMove),
		zap.Int("candidates", len(cands)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return Analysis{Candidates: cands, BestMove: resp.BestMove}, nil
}

func (e *Engine) TopMoves(ctx context.Context, n int) ([]Candidate, error) {
	a, err := e.Analyze(ctx, n)
	if err != nil {
		return nil, err
	}
	return a.Candidates, nil
}

func (e *Engine) BestMove(ctx context.Context) (string, error) {
	a, err := e.Analyze(ctx, 1)
	if err != nil {
		return "", err
	}
	return a.BestMove, nil
}

// MakeMoves advances the current position. Nothing changes if any move is
// illegal.
func (e *Engine) MakeMoves(moves ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fen == "" {
		return ErrNoPosition
	}
	next, err := PositionAfter(e.fen, moves...)
	if err != nil {
		return err
	}
	e.fen = next
	return nil
}

// Ping fails when the process has exited or does not answer isready.
func (e *Engine) Ping(ctx context.Context) error {
	if e.session.Exited() {
		return fmt.Errorf("engine process exited")
	}
	return e.session.EnsureReady(ctx)
}

func (e *Engine) NewGame(ctx context.Context) error {
	e.mu.Lock()
	e.fen = ""
	e.mu.Unlock()
	return e.session.NewGame(ctx)
}

func (e *Engine) Close() error {
	return e.session.Close()
}

// OptionsForRating maps a target rating to engine options. Zero means full
// strength.
func OptionsForRating(elo int) Options {
	opt := Options{Threads: 1, HashMB: 64, MultiPV: 3}
	switch {
	case elo <= 0:
		opt.SkillLevel = 20
	case elo < 1000:
		opt.SkillLevel = 1
	case elo < 1500:
		opt.SkillLevel = 5
	case elo < 2000:
		opt.SkillLevel = 10
	case elo < 2500:
		opt.SkillLevel = 15
	default:
		opt.SkillLevel = 20
	}
	if elo > 0 {
		// Stockfish rejects UCI_Elo below 1320.
		if elo < 1320 {
			elo = 1320
		}
		opt.Elo = elo
	}
	return opt
}
