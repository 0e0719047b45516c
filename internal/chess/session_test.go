package chess

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/park285/boardsight/internal/chess/boardstate"
	"github.com/park285/boardsight/internal/chess/uci"
	"github.com/park285/boardsight/internal/domain"
)

// stubEngine keeps a real position so moves and validation behave, while
// search results come from a script.
type stubEngine struct {
	mu       sync.Mutex
	fen      string
	analyze  func(fen string) (uci.Analysis, error)
	pingErr  error
	closed   bool
	newGames int
}

func (e *stubEngine) ValidateFEN(fen string) error { return uci.ValidateFEN(fen) }

func (e *stubEngine) SetPosition(fen string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fen = fen
	return nil
}

func (e *stubEngine) Analyze(_ context.Context, topN int) (uci.Analysis, error) {
	e.mu.Lock()
	fen := e.fen
	e.mu.Unlock()
	a, err := e.analyze(fen)
	if err == nil && len(a.Candidates) > topN {
		a.Candidates = a.Candidates[:topN]
	}
	return a, err
}

func (e *stubEngine) MakeMoves(moves ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := uci.PositionAfter(e.fen, moves...)
	if err != nil {
		return err
	}
	e.fen = next
	return nil
}

func (e *stubEngine) Position() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fen
}

func (e *stubEngine) Ping(context.Context) error { return e.pingErr }

func (e *stubEngine) NewGame(context.Context) error {
	e.newGames++
	return nil
}

func (e *stubEngine) Close() error {
	e.closed = true
	return nil
}

func fixedAnalysis(moves ...string) func(string) (uci.Analysis, error) {
	return func(string) (uci.Analysis, error) {
		a := uci.Analysis{BestMove: moves[0]}
		for i, m := range moves {
			a.Candidates = append(a.Candidates, uci.Candidate{Move: m, EvalCP: 50 - i*10, Principal: []string{m}})
		}
		return a, nil
	}
}

type countingFactory struct {
	calls   int
	fail    bool
	engines []*stubEngine
	analyze func(string) (uci.Analysis, error)
}

func (f *countingFactory) factory(context.Context) (Engine, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("spawn failed")
	}
	e := &stubEngine{analyze: f.analyze}
	f.engines = append(f.engines, e)
	return e, nil
}

func startSession(t *testing.T, f *countingFactory, cfg SessionConfig) *EngineSession {
	t.Helper()
	s := NewEngineSession(f.factory, cfg, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestGetNextMoveFromStartPosition(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("e2e4", "d2d4")}
	s := startSession(t, f, SessionConfig{})

	dec, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White)
	if err != nil {
		t.Fatalf("GetNextMove: %v", err)
	}
	if dec.Move != "e2e4" {
		t.Fatalf("move = %q", dec.Move)
	}
	if dec.FEN != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1" {
		t.Fatalf("fen = %q", dec.FEN)
	}
	if len(dec.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(dec.Candidates))
	}
	gs := s.GameState()
	if len(gs.FenHistory) != 1 || len(gs.MoveHistory) != 1 || gs.MoveHistory[0] != "e2e4" {
		t.Fatalf("histories not updated: %+v", gs)
	}
	if gs.FullmoveNumber != 2 || gs.HalfmoveClock != 0 {
		t.Fatalf("clocks after pawn move: half=%d full=%d", gs.HalfmoveClock, gs.FullmoveNumber)
	}
	if s.State() != StateReady {
		t.Fatalf("state = %s", s.State())
	}
}

func TestGetNextMoveKnightMoveAdvancesHalfmove(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("g1f3", "e2e4")}
	s := startSession(t, f, SessionConfig{})
	if _, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White); err != nil {
		t.Fatalf("GetNextMove: %v", err)
	}
	if gs := s.GameState(); gs.HalfmoveClock != 1 {
		t.Fatalf("halfmove = %d", gs.HalfmoveClock)
	}
}

func TestRestartsExactlyOnceWhenCrashed(t *testing.T) {
	f := &countingFactory{analyze: func(string) (uci.Analysis, error) {
		return uci.Analysis{}, errors.New("pipe closed")
	}}
	s := startSession(t, f, SessionConfig{})

	_, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if s.State() != StateCrashed {
		t.Fatalf("state = %s", s.State())
	}

	f.analyze = fixedAnalysis("e2e4", "d2d4")
	dec, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White)
	if err != nil {
		t.Fatalf("GetNextMove after crash: %v", err)
	}
	if dec.Move != "e2e4" {
		t.Fatalf("move = %q", dec.Move)
	}
	if f.calls != 2 {
		t.Fatalf("expected one restart, factory called %d times", f.calls)
	}
	if !f.engines[0].closed {
		t.Fatalf("crashed engine not closed")
	}
	if gs := s.GameState(); len(gs.FenHistory) != 2 {
		t.Fatalf("restart must keep history, got %d fens", len(gs.FenHistory))
	}
}

func TestRestartFailureReturnsError(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("e2e4", "d2d4")}
	s := startSession(t, f, SessionConfig{})
	f.engines[0].pingErr = errors.New("no readyok")
	f.fail = true

	_, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if f.calls != 2 {
		t.Fatalf("expected exactly one restart attempt, got %d factory calls", f.calls-1)
	}
	if s.State() != StateCrashed {
		t.Fatalf("state = %s", s.State())
	}
}

func TestInvalidFENKeepsSessionReady(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("e2e4", "d2d4")}
	s := startSession(t, f, SessionConfig{})

	grid := domain.StandardGrid()
	grid.Set(7, 4, domain.Empty)
	grid.Set(0, 4, domain.Empty)
	dec, err := s.GetNextMove(context.Background(), grid, boardstate.White)
	if !errors.Is(err, ErrInvalidFEN) {
		t.Fatalf("expected ErrInvalidFEN, got %v", err)
	}
	if dec.FEN == "" || dec.Move != "" {
		t.Fatalf("expected FEN without move, got %+v", dec)
	}
	if s.State() != StateReady {
		t.Fatalf("state = %s", s.State())
	}
	if gs := s.GameState(); len(gs.FenHistory) != 0 || gs.LastFEN != dec.FEN {
		t.Fatalf("invalid FEN must not enter history: %+v", gs)
	}
}

func TestWrongGridSize(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("e2e4", "d2d4")}
	s := startSession(t, f, SessionConfig{})
	_, err := s.GetNextMove(context.Background(), make(domain.Grid, 63), boardstate.White)
	if !errors.Is(err, ErrInvalidFEN) || !errors.Is(err, boardstate.ErrGridSize) {
		t.Fatalf("expected ErrInvalidFEN wrapping ErrGridSize, got %v", err)
	}
}

func TestNoCandidates(t *testing.T) {
	f := &countingFactory{analyze: func(string) (uci.Analysis, error) { return uci.Analysis{}, nil }}
	s := startSession(t, f, SessionConfig{})
	_, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("state = %s", s.State())
	}
}

func TestAvoidRepetitionPicksNextCandidate(t *testing.T) {
	// Knights shuffle: the grid for g1f3 keeps coming back.
	f := &countingFactory{analyze: fixedAnalysis("g1f3", "b1c3")}
	s := startSession(t, f, SessionConfig{AvoidRepetition: true})
	ctx := context.Background()

	var last Decision
	for i := 0; i < 3; i++ {
		dec, err := s.GetNextMove(ctx, domain.StandardGrid(), boardstate.White)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		last = dec
		if i < 2 && dec.Move != "g1f3" {
			t.Fatalf("cycle %d: expected g1f3, got %s", i, dec.Move)
		}
	}
	if last.Move != "b1c3" || !last.AvoidedRepetition {
		t.Fatalf("expected repetition avoidance on third cycle, got %+v", last)
	}
}

func TestRepetitionCheckDisabledKeepsBestMove(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("g1f3", "b1c3")}
	s := startSession(t, f, SessionConfig{})
	for i := 0; i < 4; i++ {
		dec, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White)
		if err != nil || dec.Move != "g1f3" {
			t.Fatalf("cycle %d: %q %v", i, dec.Move, err)
		}
	}
}

func TestHistoryBoundedByCapacity(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("g1f3", "b1c3")}
	s := startSession(t, f, SessionConfig{HistoryCapacity: 5})
	for i := 0; i < 8; i++ {
		if _, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	gs := s.GameState()
	if len(gs.FenHistory) != 5 || len(gs.MoveHistory) != 5 {
		t.Fatalf("history sizes %d/%d", len(gs.FenHistory), len(gs.MoveHistory))
	}
}

func TestNewGameResetsMemory(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("e2e4", "d2d4")}
	s := startSession(t, f, SessionConfig{})
	if _, err := s.GetNextMove(context.Background(), domain.StandardGrid(), boardstate.White); err != nil {
		t.Fatalf("GetNextMove: %v", err)
	}
	if err := s.NewGame(context.Background()); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	gs := s.GameState()
	if len(gs.FenHistory) != 0 || gs.FullmoveNumber != 1 || gs.LastFEN != "" {
		t.Fatalf("memory not reset: %+v", gs)
	}
	if f.engines[0].newGames != 1 {
		t.Fatalf("engine not told about the new game")
	}
}

func TestIsAliveMarksCrashed(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("e2e4", "d2d4")}
	s := startSession(t, f, SessionConfig{})
	if !s.IsAlive(context.Background()) {
		t.Fatalf("expected alive")
	}
	f.engines[0].pingErr = errors.New("gone")
	if s.IsAlive(context.Background()) {
		t.Fatalf("expected dead engine")
	}
	if s.State() != StateCrashed {
		t.Fatalf("state = %s", s.State())
	}
	if err := s.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("state after restart = %s", s.State())
	}
}

func TestPlayAsBlack(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("e7e5", "c7c5")}
	s := startSession(t, f, SessionConfig{})
	grid := domain.StandardGrid()
	grid.Set(6, 4, domain.Empty)
	grid.Set(4, 4, domain.WhitePawn)
	dec, err := s.GetNextMove(context.Background(), grid, boardstate.Black)
	if err != nil {
		t.Fatalf("GetNextMove: %v", err)
	}
	if dec.FEN != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1" {
		t.Fatalf("fen = %q", dec.FEN)
	}
	if dec.Move != "e7e5" {
		t.Fatalf("move = %q", dec.Move)
	}
}

func TestSetEnPassantCarriedIntoNextFEN(t *testing.T) {
	f := &countingFactory{analyze: fixedAnalysis("d7d5", "e7e5")}
	s := startSession(t, f, SessionConfig{})
	if err := s.SetEnPassant("e4"); err == nil {
		t.Fatalf("expected error for a non en passant rank")
	}
	if err := s.SetEnPassant("e3"); err != nil {
		t.Fatalf("SetEnPassant: %v", err)
	}
	if gs := s.GameState(); gs.EnPassant != "e3" {
		t.Fatalf("en passant = %q", gs.EnPassant)
	}

	grid := domain.StandardGrid()
	grid.Set(6, 4, domain.Empty)
	grid.Set(4, 4, domain.WhitePawn)
	dec, err := s.GetNextMove(context.Background(), grid, boardstate.Black)
	if err != nil {
		t.Fatalf("GetNextMove: %v", err)
	}
	if dec.FEN != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1" {
		t.Fatalf("fen = %q", dec.FEN)
	}
	if gs := s.GameState(); gs.EnPassant != boardstate.NoSquare {
		t.Fatalf("en passant must clear after the cycle, got %q", gs.EnPassant)
	}
}
