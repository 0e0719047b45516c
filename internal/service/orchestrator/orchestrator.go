package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/park285/boardsight/internal/chess"
	"github.com/park285/boardsight/internal/chess/boardstate"
	"github.com/park285/boardsight/internal/domain"
	"github.com/park285/boardsight/internal/msgcat"
	"github.com/park285/boardsight/internal/render"
	"github.com/park285/boardsight/internal/vision"
	"go.uber.org/zap"
)

// ClassifierSource hands out the classifier once it has loaded.
type ClassifierSource interface {
	Classifier() (*vision.Classifier, error)
}

type Session interface {
	GetNextMove(ctx context.Context, grid domain.Grid, turn boardstate.Side) (chess.Decision, error)
	LastFEN() string
	GameState() chess.GameState
	NewGame(ctx context.Context) error
	SetEnPassant(square string) error
}

// Recorder persists finished cycles. Failures are logged, never surfaced.
type Recorder interface {
	RecordCycle(ctx context.Context, rec domain.CycleRecord) error
}

// Publisher forwards results to whatever acts on them.
type Publisher interface {
	Publish(ctx context.Context, res MoveResult) error
}

type Config struct {
	// PlayAsWhite means white is at the bottom of the capture.
	PlayAsWhite         bool
	ConfidenceThreshold float64
	DebugImageDir       string
}

type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publishers = append(o.publishers, p)
		}
	}
}

func WithCatalog(c *msgcat.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

func WithRenderer(r *render.GridRenderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

func withClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs one capture through extraction, classification and the
// engine session.
type Orchestrator struct {
	extMu       sync.Mutex
	extractor   *vision.Extractor
	classifiers ClassifierSource
	session     Session
	cfg         Config
	logger      *zap.Logger

	catalog    *msgcat.Catalog
	renderer   *render.GridRenderer
	recorders  []Recorder
	publishers []Publisher
	now        func() time.Time

	gameID atomic.Value
}

func New(extractor *vision.Extractor, classifiers ClassifierSource, session Session, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = vision.NewExtractor(0)
	}
	o := &Orchestrator{
		extractor:   extractor,
		classifiers: classifiers,
		session:     session,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
	o.gameID.Store(uuid.NewString())
	for _, opt := range opts {
		opt(o)
	}
	if o.renderer == nil && cfg.DebugImageDir != "" {
		o.renderer = render.NewGridRenderer(0)
	}
	return o
}

func (o *Orchestrator) GameID() string { return o.gameID.Load().(string) }

func (o *Orchestrator) Session() Session { return o.session }

// NewGame clears the session memory and starts a new game id. Callers must
// not run it concurrently with ProduceMove; the Worker serializes both.
func (o *Orchestrator) NewGame(ctx context.Context) error {
	if err := o.session.NewGame(ctx); err != nil {
		return err
	}
	id := uuid.NewString()
	o.gameID.Store(id)
	o.logger.Info("new_game", zap.String("game_id", id))
	return nil
}

// ProduceMoveBytes decodes an encoded image and runs ProduceMove.
func (o *Orchestrator) ProduceMoveBytes(ctx context.Context, data []byte, turn boardstate.Side) MoveResult {
	return o.produceBytes(ctx, 0, data, turn)
}

// ProduceMove never panics on bad input and never returns a partial move:
// the result has either a move or a reason.
func (o *Orchestrator) ProduceMove(ctx context.Context, img image.Image, turn boardstate.Side) MoveResult {
	return o.produce(ctx, 0, img, turn)
}

func (o *Orchestrator) produceBytes(ctx context.Context, seq uint64, data []byte, turn boardstate.Side) MoveResult {
	img, err := vision.DecodeBytes(data)
	if err != nil {
		res := o.newResult(turn)
		res.Seq = seq
		return o.finish(ctx, res, ReasonBadImage, err, time.Now())
	}
	return o.produce(ctx, seq, img, turn)
}

func (o *Orchestrator) produce(ctx context.Context, seq uint64, img image.Image, turn boardstate.Side) MoveResult {
	start := time.Now()
	res := o.newResult(turn)
	res.Seq = seq

	classifier, err := o.classifiers.Classifier()
	if err != nil {
		reason := ReasonClassifierFailed
		if errors.Is(err, vision.ErrNotReady) {
			reason = ReasonClassifierNotReady
		}
		return o.finish(ctx, res, reason, err, start)
	}

	t := time.Now()
	batch, err := o.extractorFor(classifier).Extract(img)
	res.Timings.Extract = time.Since(t)
	if err != nil {
		reason := ReasonClassifierFailed
		if errors.Is(err, vision.ErrImageTooSmall) {
			reason = ReasonDegenerateGrid
		}
		return o.finish(ctx, res, reason, err, start)
	}

	t = time.Now()
	cls, err := classifier.Classify(ctx, batch)
	res.Timings.Classify = time.Since(t)
	if err != nil {
		return o.finish(ctx, res, ReasonClassifierFailed, err, start)
	}

	grid := cls.Grid
	low := cls.LowConfidence(o.cfg.ConfidenceThreshold)
	if !o.cfg.PlayAsWhite {
		grid = grid.Rotate180()
		for i, idx := range low {
			low[i] = domain.BoardSquares - 1 - idx
		}
	}
	res.Grid = grid
	res.LowConfidence = low
	if len(low) > 0 {
		o.logger.Info("low_confidence_squares", zap.Ints("squares", low), zap.Float64("threshold", o.cfg.ConfidenceThreshold))
	}
	o.logger.Debug("recognised_grid", zap.String("grid", grid.String()))

	dec, err := o.session.GetNextMove(ctx, grid, turn)
	res.Timings.Engine = dec.EngineLatency
	res.FEN = dec.FEN
	res.Candidates = dec.Candidates
	if err != nil {
		return o.finish(ctx, res, reasonFor(err), err, start)
	}
	res.Move = dec.Move
	res.PostFEN = dec.PostFEN
	res.AvoidedRepetition = dec.AvoidedRepetition
	return o.finish(ctx, res, ReasonNone, nil, start)
}

// extractorFor keeps the square size in step with the loaded model so the
// configured size is only a starting guess.
func (o *Orchestrator) extractorFor(c *vision.Classifier) *vision.Extractor {
	o.extMu.Lock()
	defer o.extMu.Unlock()
	if size := c.InputSize(); size != o.extractor.SquareSize() {
		o.logger.Info("square_size_adjusted", zap.Int("configured", o.extractor.SquareSize()), zap.Int("model", size))
		o.extractor = o.extractor.Resized(size)
	}
	return o.extractor
}

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, boardstate.ErrGridSize):
		return ReasonDegenerateGrid
	case errors.Is(err, chess.ErrInvalidFEN):
		return ReasonInvalidFEN
	case errors.Is(err, chess.ErrNoCandidates):
		return ReasonNoCandidates
	default:
		return ReasonEngineUnreachable
	}
}

func (o *Orchestrator) newResult(turn boardstate.Side) MoveResult {
	return MoveResult{
		GameID:  o.GameID(),
		CycleID: uuid.NewString(),
		Turn:    turn,
	}
}

func (o *Orchestrator) finish(ctx context.Context, res MoveResult, reason Reason, cause error, start time.Time) MoveResult {
	res.Reason = reason
	if res.FEN == "" {
		res.FEN = o.session.LastFEN()
	}
	res.Timings.Total = time.Since(start)
	res.CreatedAt = o.now()
	res.Message = o.message(res, cause)

	fields := []zap.Field{
		zap.String("cycle_id", res.CycleID),
		zap.String("fen", res.FEN),
		zap.Duration("elapsed", res.Timings.Total),
	}
	if reason == ReasonNone {
		o.logger.Info("move_produced", append(fields, zap.String("move", res.Move))...)
	} else {
		o.logger.Warn("no_move", append(fields, zap.String("reason", string(reason)), zap.Error(cause))...)
	}

	if o.renderer != nil && o.cfg.DebugImageDir != "" && len(res.Grid) == domain.BoardSquares {
		res.DebugImage = o.writeDebugImage(ctx, res)
	}
	o.record(ctx, res)
	return res
}

func (o *Orchestrator) message(res MoveResult, cause error) string {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	data := map[string]any{"Move": res.Move, "FEN": res.FEN, "Detail": detail}
	if res.Reason == ReasonNone {
		key := "move.ok"
		if res.AvoidedRepetition {
			key = "move.avoided"
		}
		return o.catalog.RenderOr(key, data, res.Move)
	}
	def := string(res.Reason)
	if detail != "" {
		def = fmt.Sprintf("%s: %s", res.Reason, detail)
	}
	return o.catalog.RenderOr("reason."+string(res.Reason), data, def)
}

func (o *Orchestrator) writeDebugImage(ctx context.Context, res MoveResult) string {
	from, to := -1, -1
	if res.Move != "" {
		if f, t, err := vision.MoveSquares(res.Move); err == nil {
			from, to = gridIndex(f, o.cfg.PlayAsWhite), gridIndex(t, o.cfg.PlayAsWhite)
		}
	}
	grid := res.Grid
	low := res.LowConfidence
	if !o.cfg.PlayAsWhite {
		// draw the board the way it was captured
		grid = grid.Rotate180()
		low = make([]int, len(res.LowConfidence))
		for i, idx := range res.LowConfidence {
			low[i] = domain.BoardSquares - 1 - idx
		}
	}
	caption := res.Move
	if caption == "" {
		caption = string(res.Reason)
	}
	path, err := o.renderer.WritePNG(ctx, o.cfg.DebugImageDir, res.CycleID+".png", grid, render.Options{
		LowConfidence: low,
		From:          from,
		To:            to,
		Caption:       caption,
		Flipped:       !o.cfg.PlayAsWhite,
	})
	if err != nil {
		o.logger.Warn("debug_image_failed", zap.Error(err))
		return ""
	}
	return path
}

// gridIndex maps an algebraic square to its index in a grid as captured.
func gridIndex(square string, whiteBottom bool) int {
	if len(square) != 2 {
		return -1
	}
	file := int(square[0] - 'a')
	row := domain.BoardRanks - 1 - int(square[1]-'1')
	if file < 0 || file >= domain.BoardFiles || row < 0 || row >= domain.BoardRanks {
		return -1
	}
	idx := row*domain.BoardFiles + file
	if !whiteBottom {
		idx = domain.BoardSquares - 1 - idx
	}
	return idx
}

func (o *Orchestrator) record(ctx context.Context, res MoveResult) {
	if len(o.recorders) > 0 {
		gs := o.session.GameState()
		rec := res.Record(gs.FenHistory, gs.MoveHistory, gs.Castling, gs.EnPassant)
		for _, r := range o.recorders {
			if err := r.RecordCycle(ctx, rec); err != nil {
				o.logger.Warn("record_cycle_failed", zap.Error(err))
			}
		}
	}
}

// Publish forwards a finished result to every publisher.
func (o *Orchestrator) Publish(ctx context.Context, res MoveResult) {
	for _, p := range o.publishers {
		if err := p.Publish(ctx, res); err != nil {
			o.logger.Warn("publish_failed", zap.String("cycle_id", res.CycleID), zap.Error(err))
		}
	}
}

// GameState reports the session memory of the current game.
func (o *Orchestrator) GameState() chess.GameState { return o.session.GameState() }
