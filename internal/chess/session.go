package chess

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/boardsight/internal/chess/boardstate"
	"github.com/park285/boardsight/internal/chess/uci"
	"github.com/park285/boardsight/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrInvalidFEN        = errors.New("invalid position")
	ErrNoCandidates      = errors.New("engine returned no candidate moves")
	ErrEngineUnavailable = errors.New("engine unavailable")
)

// Engine is the external move oracle the session drives.
type Engine interface {
	ValidateFEN(fen string) error
	SetPosition(fen string) error
	Analyze(ctx context.Context, topN int) (uci.Analysis, error)
	MakeMoves(moves ...string) error
	Position() string
	Ping(ctx context.Context) error
	NewGame(ctx context.Context) error
	Close() error
}

type EngineFactory func(ctx context.Context) (Engine, error)

// ProcessFactory launches a fresh engine process per call.
func ProcessFactory(cfg uci.Config, logger *zap.Logger) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		e, err := uci.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

type SessionConfig struct {
	// TopN is how many ranked candidates to request; at least 2.
	TopN            int
	HistoryCapacity int
	AvoidRepetition bool
}

const (
	defaultTopN = 3
	minTopN     = 2
	// a board seen twice already would repeat for the third time
	repetitionLimit = 2
	crashTailMoves  = 10
)

func (c SessionConfig) withDefaults() SessionConfig {
	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}
	if c.TopN < minTopN {
		c.TopN = minTopN
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	return c
}

// Decision is the outcome of one GetNextMove call. FEN is set whenever a
// position could be encoded, even if no move was produced.
type Decision struct {
	Move              string
	FEN               string
	PostFEN           string
	Candidates        []domain.Candidate
	AvoidedRepetition bool
	Context           boardstate.PositionContext
	EngineLatency     time.Duration
}

type GameState struct {
	State          State
	LastFEN        string
	Turn           boardstate.Side
	Castling       string
	EnPassant      string
	HalfmoveClock  int
	FullmoveNumber int
	FenHistory     []string
	MoveHistory    []string
}

// EngineSession owns the engine process and the game memory a single image
// cannot show. All methods are safe for concurrent use; engine work is
// serialized.
type EngineSession struct {
	factory EngineFactory
	cfg     SessionConfig
	logger  *zap.Logger

	mu          sync.Mutex
	engine      Engine
	pos         boardstate.PositionContext
	fenHistory  *Ring[string]
	moveHistory *Ring[string]
	postBoards  *Ring[string]
	lastFEN     string

	state atomic.Int32
}

func NewEngineSession(factory EngineFactory, cfg SessionConfig, logger *zap.Logger) *EngineSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &EngineSession{
		factory:     factory,
		cfg:         cfg,
		logger:      logger,
		pos:         boardstate.NewPositionContext(),
		fenHistory:  NewRing[string](cfg.HistoryCapacity),
		moveHistory: NewRing[string](cfg.HistoryCapacity),
		postBoards:  NewRing[string](cfg.HistoryCapacity),
	}
}

func (s *EngineSession) State() State { return State(s.state.Load()) }

func (s *EngineSession) setState(st State) { s.state.Store(int32(st)) }

// Start launches the engine. A failed start leaves the session Crashed.
func (s *EngineSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

// Restart replaces the engine process. Game memory is kept.
func (s *EngineSession) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Warn("engine_restart", zap.String("state", s.State().String()))
	return s.startLocked(ctx)
}

func (s *EngineSession) startLocked(ctx context.Context) error {
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.Debug("engine_close_error", zap.Error(err))
		}
		s.engine = nil
	}
	if s.factory == nil {
		s.setState(StateCrashed)
		return fmt.Errorf("%w: no engine factory", ErrEngineUnavailable)
	}
	e, err := s.factory(ctx)
	if err != nil {
		s.setState(StateCrashed)
		s.logger.Error("engine_start_failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	s.engine = e
	s.setState(StateReady)
	return nil
}

// IsAlive probes the engine. A failed probe marks the session Crashed. A
// session in the middle of a search counts as alive without probing.
func (s *EngineSession) IsAlive(ctx context.Context) bool {
	if s.State() == StateBusy {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked(ctx)
}

func (s *EngineSession) aliveLocked(ctx context.Context) bool {
	if s.engine == nil || s.State() != StateReady {
		return false
	}
	if err := s.engine.Ping(ctx); err != nil {
		s.setState(StateCrashed)
		s.logger.Warn("engine_ping_failed", zap.Error(err))
		return false
	}
	return true
}

// GetNextMove encodes grid with the remembered context, asks the engine for
// a move and commits it to the game memory. turn is the side to move in the
// image. When the engine is not usable exactly one restart is attempted.
func (s *EngineSession) GetNextMove(ctx context.Context, grid domain.Grid, turn boardstate.Side) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.aliveLocked(ctx) {
		s.logger.Warn("engine_restart", zap.String("state", s.State().String()))
		if err := s.startLocked(ctx); err != nil {
			return Decision{}, err
		}
	}

	s.setState(StateBusy)
	pc := s.pos
	pc.Turn = turn
	fen, pc, err := boardstate.Encode(grid, pc)
	if err != nil {
		s.setState(StateReady)
		return Decision{}, fmt.Errorf("%w: %w", ErrInvalidFEN, err)
	}
	s.lastFEN = fen
	dec := Decision{FEN: fen, Context: pc}

	if err := s.engine.ValidateFEN(fen); err != nil {
		s.setState(StateReady)
		s.logger.Warn("invalid_fen", zap.String("fen", fen), zap.Error(err))
		return dec, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	s.fenHistory.Push(fen)

	start := time.Now()
	if err := s.engine.SetPosition(fen); err != nil {
		return dec, s.crashLocked(fen, err)
	}
	analysis, err := s.engine.Analyze(ctx, s.cfg.TopN)
	dec.EngineLatency = time.Since(start)
	if err != nil {
		return dec, s.crashLocked(fen, err)
	}
	dec.Candidates = convertCandidates(analysis.Candidates)
	if len(analysis.Candidates) == 0 || analysis.BestMove == "" {
		s.setState(StateReady)
		s.logger.Warn("no_candidates", zap.String("fen", fen))
		return dec, ErrNoCandidates
	}

	move := analysis.BestMove
	if s.cfg.AvoidRepetition {
		move, dec.AvoidedRepetition = s.avoidRepetition(fen, analysis.BestMove, analysis.Candidates)
	}

	if err := s.engine.MakeMoves(move); err != nil {
		return dec, s.crashLocked(fen, err)
	}
	post := s.engine.Position()
	irreversible, err := uci.IsIrreversible(fen, move)
	if err != nil {
		s.logger.Debug("irreversible_check_failed", zap.String("move", move), zap.Error(err))
	}
	s.moveHistory.Push(move)
	s.postBoards.Push(boardstate.BoardOf(post))
	s.pos = pc.Advance(irreversible)
	s.setState(StateReady)

	dec.Move = move
	dec.PostFEN = post
	dec.Context = s.pos
	s.logger.Debug("engine_move",
		zap.String("fen", fen),
		zap.String("move", move),
		zap.Bool("avoided_repetition", dec.AvoidedRepetition),
		zap.Duration("elapsed", dec.EngineLatency),
	)
	return dec, nil
}

func (s *EngineSession) crashLocked(fen string, err error) error {
	s.setState(StateCrashed)
	lastFEN, _ := s.fenHistory.Last()
	s.logger.Error("engine_crashed",
		zap.String("fen", fen),
		zap.String("last_fen", lastFEN),
		zap.Strings("recent_moves", s.moveHistory.Tail(crashTailMoves)),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}

// avoidRepetition walks the candidates, best first, and returns the first one
// whose resulting board has not already been seen twice. With no such
// candidate the best move is kept.
func (s *EngineSession) avoidRepetition(fen, best string, cands []uci.Candidate) (string, bool) {
	order := make([]string, 0, len(cands)+1)
	order = append(order, best)
	for _, c := range cands {
		if c.Move != best {
			order = append(order, c.Move)
		}
	}
	for _, mv := range order {
		post, err := uci.PositionAfter(fen, mv)
		if err != nil {
			s.logger.Debug("repetition_sim_failed", zap.String("move", mv), zap.Error(err))
			continue
		}
		if s.occurrences(boardstate.BoardOf(post)) < repetitionLimit {
			if mv != best {
				s.logger.Warn("repetition_avoided", zap.String("best", best), zap.String("move", mv))
			}
			return mv, mv != best
		}
	}
	s.logger.Warn("repetition_unavoidable", zap.String("move", best))
	return best, false
}

func (s *EngineSession) occurrences(board string) int {
	n := 0
	for _, f := range s.fenHistory.Items() {
		if boardstate.BoardOf(f) == board {
			n++
		}
	}
	for _, b := range s.postBoards.Items() {
		if b == board {
			n++
		}
	}
	return n
}

// NewGame clears the game memory and tells the engine a new game started.
func (s *EngineSession) NewGame(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = boardstate.NewPositionContext()
	s.fenHistory.Reset()
	s.moveHistory.Reset()
	s.postBoards.Reset()
	s.lastFEN = ""
	if s.engine == nil || s.State() != StateReady {
		return nil
	}
	if err := s.engine.NewGame(ctx); err != nil {
		return s.crashLocked("", err)
	}
	return nil
}

// SetEnPassant records an en passant target learned outside the image.
func (s *EngineSession) SetEnPassant(square string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, err := s.pos.WithEnPassant(square)
	if err != nil {
		return err
	}
	s.pos = pc
	return nil
}

func (s *EngineSession) GameState() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return GameState{
		State:          s.State(),
		LastFEN:        s.lastFEN,
		Turn:           s.pos.Turn,
		Castling:       s.pos.Castling,
		EnPassant:      s.pos.EnPassant,
		HalfmoveClock:  s.pos.HalfmoveClock,
		FullmoveNumber: s.pos.FullmoveNumber,
		FenHistory:     s.fenHistory.Items(),
		MoveHistory:    s.moveHistory.Items(),
	}
}

// LastFEN is the most recently encoded position, valid or not.
func (s *EngineSession) LastFEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFEN
}

func (s *EngineSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(StateNotStarted)
	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	return err
}

func convertCandidates(in []uci.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Candidate{
			Move:      c.Move,
			EvalCP:    c.EvalCP,
			Mate:      c.Mate,
			Principal: append([]string(nil), c.Principal...),
		})
	}
	return out
}
