package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/park285/boardsight/internal/chess"
	"github.com/park285/boardsight/internal/chess/boardstate"
	"github.com/park285/boardsight/internal/domain"
)

func TestWorkerSkipsSupersededCycles(t *testing.T) {
	h := newHarness(t, Config{PlayAsWhite: true}, nil, nil)
	w := NewWorker(h.orch, 4, nil)
	ctx := context.Background()

	first := w.Submit(ctx, capture(), boardstate.White)
	second := w.Submit(ctx, capture(), boardstate.White)
	third := w.Submit(ctx, capture(), boardstate.White)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.Start(runCtx)

	r1, r2, r3 := <-first, <-second, <-third
	if r1.Reason != ReasonSuperseded || r2.Reason != ReasonSuperseded {
		t.Fatalf("expected first two superseded, got %s and %s", r1.Reason, r2.Reason)
	}
	if !r1.Stale || r1.Seq != 1 || r2.Seq != 2 {
		t.Fatalf("unexpected superseded results %+v %+v", r1, r2)
	}
	if !r3.OK() || r3.Seq != 3 || r3.Stale {
		t.Fatalf("expected latest cycle to run, got %+v", r3)
	}
	if h.recorder.count() != 1 {
		t.Fatalf("only the latest cycle should reach the session, got %d records", h.recorder.count())
	}
}

func TestWorkerSequentialCycles(t *testing.T) {
	h := newHarness(t, Config{PlayAsWhite: true}, nil, nil)
	w := NewWorker(h.orch, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	for i := 1; i <= 2; i++ {
		res := <-w.Submit(ctx, capture(), boardstate.White)
		if res.Seq != uint64(i) || res.Stale {
			t.Fatalf("cycle %d: %+v", i, res)
		}
	}
	gs := h.session.GameState()
	if len(gs.FenHistory) != 2 {
		t.Fatalf("expected 2 fens in history, got %d", len(gs.FenHistory))
	}
}

func TestWorkerNewGame(t *testing.T) {
	h := newHarness(t, Config{PlayAsWhite: true}, nil, nil)
	w := NewWorker(h.orch, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	<-w.Submit(ctx, capture(), boardstate.White)
	if err := w.NewGame(ctx); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if gs := h.session.GameState(); len(gs.MoveHistory) != 0 {
		t.Fatalf("history not cleared")
	}
}

func TestWorkerStopCancelsPending(t *testing.T) {
	h := newHarness(t, Config{PlayAsWhite: true}, nil, nil)
	w := NewWorker(h.orch, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	res := <-w.Submit(context.Background(), capture(), boardstate.White)
	if res.Reason != ReasonCanceled {
		t.Fatalf("expected canceled after stop, got %s", res.Reason)
	}
	if err := w.NewGame(context.Background()); err != ErrWorkerStopped {
		t.Fatalf("expected ErrWorkerStopped, got %v", err)
	}
}

func TestWorkerCallerCancelDoesNotPreemptSearch(t *testing.T) {
	eng := &fakeEngine{best: "e2e4", second: "d2d4", searching: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, Config{PlayAsWhite: true}, eng, nil)
	w := NewWorker(h.orch, 0, nil)
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	w.Start(runCtx)

	callCtx, giveUp := context.WithCancel(context.Background())
	out := w.Submit(callCtx, capture(), boardstate.White)
	select {
	case <-eng.searching:
	case <-time.After(2 * time.Second):
		t.Fatalf("search never started")
	}
	giveUp()
	close(eng.release)

	res := <-out
	if !res.OK() || res.Move != "e2e4" {
		t.Fatalf("expected the search to finish, got reason=%s msg=%s", res.Reason, res.Message)
	}
	if st := h.session.State(); st != chess.StateReady {
		t.Fatalf("state = %s", st)
	}
	if h.recorder.count() != 1 {
		t.Fatalf("expected the cycle to be recorded, got %d", h.recorder.count())
	}
}

func TestWorkerCanceledSubmitDoesNotSupersede(t *testing.T) {
	h := newHarness(t, Config{PlayAsWhite: true}, nil, nil)
	w := NewWorker(h.orch, 4, nil)
	ctx := context.Background()

	first := w.Submit(ctx, capture(), boardstate.White)
	dead, cancel := context.WithCancel(ctx)
	cancel()
	// fill the queue so the canceled submission cannot be sent
	for i := 0; i < 3; i++ {
		w.queue <- job{ctx: ctx, seq: 0, turn: boardstate.White, out: make(chan MoveResult, 1)}
	}
	late := w.Submit(dead, capture(), boardstate.White)
	if r := <-late; r.Reason != ReasonCanceled {
		t.Fatalf("expected canceled, got %s", r.Reason)
	}
	if got := w.latest.Load(); got != 1 {
		t.Fatalf("latest = %d, canceled submissions must not count", got)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	w.Start(runCtx)
	if r := <-first; !r.OK() || r.Stale {
		t.Fatalf("first cycle should still run, got %s stale=%v", r.Reason, r.Stale)
	}
}

func TestWorkerStopFailsQueuedJobs(t *testing.T) {
	h := newHarness(t, Config{PlayAsWhite: true}, nil, nil)
	w := NewWorker(h.orch, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	queued := w.Submit(context.Background(), capture(), boardstate.White)
	cancel()
	w.Start(ctx)
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	select {
	case r := <-queued:
		if r.Reason != ReasonCanceled && !r.OK() {
			t.Fatalf("unexpected result %s", r.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued caller left waiting")
	}
}

func TestWorkerAppliesEnPassant(t *testing.T) {
	eng := &fakeEngine{best: "d7d5", second: "e7e5"}
	h := newHarness(t, Config{PlayAsWhite: true}, eng, nil)
	g := domain.StandardGrid()
	g.Set(6, 4, domain.Empty)
	g.Set(4, 4, domain.WhitePawn)
	h.model.set(g)
	w := NewWorker(h.orch, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	res := <-w.Submit(ctx, capture(), boardstate.Black, WithEnPassant("e3"))
	if !res.OK() {
		t.Fatalf("expected move, got %s: %s", res.Reason, res.Message)
	}
	if res.FEN != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1" {
		t.Fatalf("fen = %q", res.FEN)
	}

	bad := <-w.Submit(ctx, capture(), boardstate.Black, WithEnPassant("e5"))
	if bad.Reason != ReasonInvalidFEN {
		t.Fatalf("expected invalid_fen for a bad square, got %s", bad.Reason)
	}
}
