// Package httpapi exposes the move pipeline over HTTP so a capture tool in
// any language can post screenshots and read back moves.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/park285/boardsight/internal/chess"
	"github.com/park285/boardsight/internal/chess/boardstate"
	"github.com/park285/boardsight/internal/domain"
	"github.com/park285/boardsight/internal/service/orchestrator"
	"github.com/park285/boardsight/pkg/visiondto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type Mover interface {
	SubmitBytes(ctx context.Context, data []byte, turn boardstate.Side, opts ...orchestrator.SubmitOption) <-chan orchestrator.MoveResult
	NewGame(ctx context.Context) error
}

type GameInfo interface {
	GameID() string
	GameState() chess.GameState
}

type ReadyChecker interface {
	Ready() bool
}

type LivenessChecker interface {
	IsAlive(ctx context.Context) bool
}

// CycleSource serves recent diagnostics; optional.
type CycleSource interface {
	Recent(ctx context.Context, gameID string, limit int) ([]domain.CycleRecord, error)
}

type Deps struct {
	Moves      Mover
	Game       GameInfo
	Classifier ReadyChecker
	Engine     LivenessChecker
	Cycles     CycleSource
}

type Config struct {
	MoveTimeout   time.Duration
	MaxBodySize   int
	HealthTimeout time.Duration
	DefaultTurn   boardstate.Side
}

const (
	defaultMoveTimeout   = 30 * time.Second
	defaultMaxBodySize   = 16 << 20
	defaultHealthTimeout = 2 * time.Second
)

type Server struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	srv    *fasthttp.Server
}

func New(deps Deps, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = defaultMoveTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}
	if cfg.DefaultTurn == "" {
		cfg.DefaultTurn = boardstate.White
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}
	s.srv = &fasthttp.Server{
		Handler:            s.accessLog(s.route),
		Name:               "boardsight",
		MaxRequestBodySize: cfg.MaxBodySize,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       cfg.MoveTimeout + 5*time.Second,
	}
	return s
}

func (s *Server) Handler() fasthttp.RequestHandler { return s.srv.Handler }

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("http_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		s.health(ctx)
	case path == "/v1/move" && ctx.IsPost():
		s.move(ctx)
	case path == "/v1/state" && ctx.IsGet():
		s.state(ctx)
	case path == "/v1/newgame" && ctx.IsPost():
		s.newGame(ctx)
	case path == "/v1/cycles" && ctx.IsGet():
		s.cycles(ctx)
	case path == "/v1/move" || path == "/v1/state" || path == "/v1/newgame" || path == "/v1/cycles":
		writeError(ctx, fasthttp.StatusMethodNotAllowed, visiondto.DomainError{Code: "method_not_allowed", Message: "method not allowed"})
	default:
		writeError(ctx, fasthttp.StatusNotFound, visiondto.DomainError{Code: "not_found", Message: "no such endpoint"})
	}
}

func (s *Server) accessLog(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		s.logger.Debug("http_request",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) health(ctx *fasthttp.RequestCtx) {
	resp := visiondto.HealthResponse{Status: "ok"}
	if s.deps.Classifier != nil {
		resp.ClassifierReady = s.deps.Classifier.Ready()
	}
	if s.deps.Engine != nil {
		hctx, cancel := context.WithTimeout(context.Background(), s.cfg.HealthTimeout)
		resp.EngineAlive = s.deps.Engine.IsAlive(hctx)
		cancel()
	}
	status := fasthttp.StatusOK
	if !resp.ClassifierReady || !resp.EngineAlive {
		resp.Status = "degraded"
		status = fasthttp.StatusServiceUnavailable
	}
	writeJSON(ctx, status, resp)
}

func (s *Server) move(ctx *fasthttp.RequestCtx) {
	turn := s.cfg.DefaultTurn
	if raw := strings.TrimSpace(string(ctx.QueryArgs().Peek("turn"))); raw != "" {
		t, err := boardstate.ParseSide(raw)
		if err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, visiondto.DomainError{Code: "bad_turn", Message: err.Error()})
			return
		}
		turn = t
	}
	var opts []orchestrator.SubmitOption
	if raw := string(ctx.QueryArgs().Peek("ep")); strings.TrimSpace(raw) != "" {
		sq, err := boardstate.ParseEnPassant(raw)
		if err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, visiondto.DomainError{Code: "bad_en_passant", Message: err.Error()})
			return
		}
		if sq != boardstate.NoSquare {
			opts = append(opts, orchestrator.WithEnPassant(sq))
		}
	}
	body := ctx.PostBody()
	if len(body) == 0 {
		writeError(ctx, fasthttp.StatusBadRequest, visiondto.DomainError{Code: "empty_body", Message: "request body must contain an image"})
		return
	}
	// fasthttp reuses the request buffer after the handler returns
	data := append([]byte(nil), body...)

	mctx, cancel := context.WithTimeout(context.Background(), s.cfg.MoveTimeout)
	defer cancel()
	select {
	case res := <-s.deps.Moves.SubmitBytes(mctx, data, turn, opts...):
		writeJSON(ctx, statusFor(res), ToMoveResponse(res))
	case <-mctx.Done():
		writeError(ctx, fasthttp.StatusGatewayTimeout, visiondto.DomainError{Code: "timeout", Message: "move not produced in time", Retryable: true})
	}
}

func statusFor(res orchestrator.MoveResult) int {
	switch {
	case res.OK():
		return fasthttp.StatusOK
	case res.Reason == orchestrator.ReasonSuperseded:
		return fasthttp.StatusConflict
	case res.Reason.Retryable():
		return fasthttp.StatusServiceUnavailable
	case res.Reason == orchestrator.ReasonBadImage || res.Reason == orchestrator.ReasonDegenerateGrid:
		return fasthttp.StatusBadRequest
	default:
		return fasthttp.StatusUnprocessableEntity
	}
}

func (s *Server) state(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, toStateResponse(s.deps.Game.GameID(), s.deps.Game.GameState()))
}

func (s *Server) newGame(ctx *fasthttp.RequestCtx) {
	nctx, cancel := context.WithTimeout(context.Background(), s.cfg.MoveTimeout)
	defer cancel()
	if err := s.deps.Moves.NewGame(nctx); err != nil {
		s.logger.Warn("new_game_failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusServiceUnavailable, visiondto.DomainError{Code: "new_game_failed", Message: err.Error(), Retryable: true})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, visiondto.NewGameResponse{GameID: s.deps.Game.GameID()})
}

func (s *Server) cycles(ctx *fasthttp.RequestCtx) {
	if s.deps.Cycles == nil {
		writeError(ctx, fasthttp.StatusNotFound, visiondto.DomainError{Code: "diagnostics_disabled", Message: "no diagnostics store configured"})
		return
	}
	limit := 20
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(ctx, fasthttp.StatusBadRequest, visiondto.DomainError{Code: "bad_limit", Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	gameID := string(ctx.QueryArgs().Peek("game"))
	if gameID == "" {
		gameID = s.deps.Game.GameID()
	}
	cctx, cancel := context.WithTimeout(context.Background(), s.cfg.HealthTimeout)
	defer cancel()
	recs, err := s.deps.Cycles.Recent(cctx, gameID, limit)
	if err != nil {
		s.logger.Warn("recent_cycles_failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusServiceUnavailable, visiondto.DomainError{Code: "diagnostics_unavailable", Message: err.Error(), Retryable: true})
		return
	}
	out := make([]visiondto.MoveResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordResponse(rec))
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode response", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, status int, e visiondto.DomainError) {
	writeJSON(ctx, status, e)
}
