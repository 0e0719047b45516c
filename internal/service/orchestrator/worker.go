package orchestrator

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/boardsight/internal/chess/boardstate"
	"go.uber.org/zap"
)

const defaultQueueSize = 8

var ErrWorkerStopped = errors.New("worker stopped")

type job struct {
	seq   uint64
	ctx   context.Context
	img   image.Image
	data  []byte
	turn  boardstate.Side
	opts  SubmitOptions
	out   chan MoveResult
	// reset is set for new-game requests instead of out.
	reset chan error
}

// SubmitOptions carries what a capture cannot show about its position.
type SubmitOptions struct {
	// EnPassant is the target square for this capture, "" when unknown.
	EnPassant string
}

type SubmitOption func(*SubmitOptions)

// WithEnPassant applies an externally known en passant square to the cycle.
func WithEnPassant(square string) SubmitOption {
	return func(o *SubmitOptions) { o.EnPassant = square }
}

func NewSubmitOptions(opts ...SubmitOption) SubmitOptions {
	var o SubmitOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Worker owns the orchestrator and runs cycles one at a time in submission
// order. A cycle still queued when a newer one arrives is skipped with
// ReasonSuperseded so the game memory only ever sees the latest board.
type Worker struct {
	orch   *Orchestrator
	queue  chan job
	logger *zap.Logger

	seq    atomic.Uint64
	latest atomic.Uint64

	// senders hold the read lock while they may still put a job on the
	// queue; the loop takes the write lock before its final drain.
	sendMu  sync.RWMutex
	stopped bool

	startOnce sync.Once
	stopping  chan struct{}
	done      chan struct{}
}

func NewWorker(orch *Orchestrator, queueSize int, logger *zap.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		orch:     orch,
		queue:    make(chan job, queueSize),
		logger:   logger,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the worker loop until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.run(ctx)
	})
}

// Done is closed once the loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Submit queues a decoded capture. The returned channel yields exactly one
// result.
func (w *Worker) Submit(ctx context.Context, img image.Image, turn boardstate.Side, opts ...SubmitOption) <-chan MoveResult {
	return w.enqueue(ctx, job{img: img, turn: turn, opts: NewSubmitOptions(opts...)})
}

// SubmitBytes queues an encoded capture; decoding happens on the worker.
func (w *Worker) SubmitBytes(ctx context.Context, data []byte, turn boardstate.Side, opts ...SubmitOption) <-chan MoveResult {
	return w.enqueue(ctx, job{data: data, turn: turn, opts: NewSubmitOptions(opts...)})
}

// NewGame is serialized with the cycles so it never races a running move.
func (w *Worker) NewGame(ctx context.Context) error {
	errc := make(chan error, 1)
	w.sendMu.RLock()
	if w.stopped {
		w.sendMu.RUnlock()
		return ErrWorkerStopped
	}
	select {
	case w.queue <- job{ctx: ctx, reset: errc}:
	case <-ctx.Done():
		w.sendMu.RUnlock()
		return ctx.Err()
	case <-w.stopping:
		w.sendMu.RUnlock()
		return ErrWorkerStopped
	}
	w.sendMu.RUnlock()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) enqueue(ctx context.Context, j job) <-chan MoveResult {
	j.ctx = ctx
	j.out = make(chan MoveResult, 1)
	j.seq = w.seq.Add(1)

	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.stopped {
		j.out <- MoveResult{Seq: j.seq, Turn: j.turn, Reason: ReasonCanceled, Message: ErrWorkerStopped.Error()}
		return j.out
	}
	select {
	case w.queue <- j:
		w.markLatest(j.seq)
	case <-ctx.Done():
		j.out <- MoveResult{Seq: j.seq, Turn: j.turn, Reason: ReasonCanceled, Message: ctx.Err().Error()}
	case <-w.stopping:
		j.out <- MoveResult{Seq: j.seq, Turn: j.turn, Reason: ReasonCanceled, Message: ErrWorkerStopped.Error()}
	}
	return j.out
}

// markLatest only ever raises latest; concurrent submitters may finish
// their sends out of order.
func (w *Worker) markLatest(seq uint64) {
	for {
		cur := w.latest.Load()
		if seq <= cur || w.latest.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case j := <-w.queue:
			w.handle(j)
		}
	}
}

// shutdown wakes blocked senders, waits for every in-flight send to settle
// and then fails whatever made it onto the queue.
func (w *Worker) shutdown() {
	close(w.stopping)
	w.sendMu.Lock()
	w.stopped = true
	w.sendMu.Unlock()
	w.drain()
}

func (w *Worker) handle(j job) {
	if j.reset != nil {
		j.reset <- w.orch.NewGame(j.ctx)
		return
	}
	if err := j.ctx.Err(); err != nil {
		j.out <- MoveResult{Seq: j.seq, Turn: j.turn, Reason: ReasonCanceled, Message: err.Error()}
		return
	}
	if latest := w.latest.Load(); j.seq < latest {
		w.logger.Debug("cycle_superseded", zap.Uint64("seq", j.seq), zap.Uint64("latest", latest))
		res := w.orch.newResult(j.turn)
		res.Seq = j.seq
		res.Reason = ReasonSuperseded
		res.Message = w.orch.message(res, nil)
		res.FEN = w.orch.session.LastFEN()
		res.Stale = true
		j.out <- res
		return
	}

	// Once started a cycle runs to completion; a caller that gives up only
	// stops waiting for the result.
	ctx := context.WithoutCancel(j.ctx)
	if j.opts.EnPassant != "" {
		if err := w.orch.session.SetEnPassant(j.opts.EnPassant); err != nil {
			res := w.orch.newResult(j.turn)
			res.Seq = j.seq
			j.out <- w.orch.finish(ctx, res, ReasonInvalidFEN, err, time.Now())
			return
		}
	}
	var res MoveResult
	if j.data != nil {
		res = w.orch.produceBytes(ctx, j.seq, j.data, j.turn)
	} else {
		res = w.orch.produce(ctx, j.seq, j.img, j.turn)
	}
	res.Stale = w.latest.Load() > j.seq
	if !res.Stale {
		w.orch.Publish(ctx, res)
	}
	j.out <- res
}

func (w *Worker) drain() {
	for {
		select {
		case j := <-w.queue:
			if j.reset != nil {
				j.reset <- ErrWorkerStopped
				continue
			}
			j.out <- MoveResult{Seq: j.seq, Turn: j.turn, Reason: ReasonCanceled, Message: ErrWorkerStopped.Error()}
		default:
			return
		}
	}
}
