// Package boardbuilder wires the move pipeline and its optional stores from
// an AppConfig.
package boardbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/boardsight/internal/chess"
	"github.com/park285/boardsight/internal/chess/uci"
	"github.com/park285/boardsight/internal/config"
	"github.com/park285/boardsight/internal/diagstore"
	"github.com/park285/boardsight/internal/movelog"
	"github.com/park285/boardsight/internal/msgcat"
	"github.com/park285/boardsight/internal/relay"
	"github.com/park285/boardsight/internal/service/orchestrator"
	"github.com/park285/boardsight/internal/vision"
	"go.uber.org/zap"
)

const (
	relayReconnectAttempts = 5
	workerQueueSize        = 8
)

type Deps struct {
	Loader       *vision.Loader
	Session      *chess.EngineSession
	Orchestrator *orchestrator.Orchestrator
	Worker       *orchestrator.Worker
	Catalog      *msgcat.Catalog

	// optional
	Diagnostics *diagstore.Store
	MoveLog     movelog.Repository
	Relay       *relay.Publisher

	db      *sql.DB
	relayWS *relay.WebSocket
	logger  *zap.Logger
}

// New builds every component. Redis, Postgres and the relay are only wired
// when their URLs are set. The classifier starts loading in the background
// and the worker is not started.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.StockfishPath) == "" {
		return nil, fmt.Errorf("STOCKFISH_PATH is required for the engine session")
	}

	d := &Deps{logger: logger}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Catalog = catalog

	d.Loader = vision.NewModelLoader(cfg.ModelPath, logger.Named("vision"))
	d.Loader.Start()

	d.Session = chess.NewEngineSession(
		chess.ProcessFactory(EngineConfig(cfg), logger.Named("uci")),
		SessionConfig(cfg),
		logger.Named("session"),
	)

	opts := []orchestrator.Option{orchestrator.WithCatalog(catalog)}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		store, err := diagstore.Open(ctx, cfg.RedisURL, 0)
		if err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("init diagnostics store: %w", err)
		}
		d.Diagnostics = store
		opts = append(opts, orchestrator.WithRecorder(store))
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, db, err := movelog.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("init move log: %w", err)
		}
		d.MoveLog, d.db = repo, db
	} else {
		logger.Info("move_log_in_memory")
		d.MoveLog = movelog.NewMemoryRepository()
	}
	opts = append(opts, orchestrator.WithRecorder(d.MoveLog))

	if pub := d.buildRelay(ctx, cfg); pub != nil {
		d.Relay = pub
		opts = append(opts, orchestrator.WithPublisher(pub))
	}

	var extOpts []vision.ExtractorOption
	if cfg.NormalizeSize > 0 {
		extOpts = append(extOpts, vision.WithNormalize(cfg.NormalizeSize))
	}
	d.Orchestrator = orchestrator.New(
		vision.NewExtractor(cfg.SquareSize, extOpts...),
		d.Loader,
		d.Session,
		OrchestratorConfig(cfg),
		logger.Named("orchestrator"),
		opts...,
	)
	d.Worker = orchestrator.NewWorker(d.Orchestrator, workerQueueSize, logger.Named("worker"))
	return d, nil
}

func (d *Deps) buildRelay(ctx context.Context, cfg *config.AppConfig) *relay.Publisher {
	if strings.TrimSpace(cfg.RelayURL) == "" && strings.TrimSpace(cfg.RelayWSURL) == "" {
		return nil
	}
	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.RelayToken != "" {
			h["X-Relay-Token"] = cfg.RelayToken
		}
		return h
	}
	var client *relay.Client
	if cfg.RelayURL != "" {
		client = relay.NewClient(cfg.RelayURL, relay.WithHeaderProvider(headers))
	}
	mode := relay.ParseMode(cfg.RelayMode)
	if cfg.RelayWSURL != "" && mode != relay.ModeHTTP {
		ws := relay.NewWebSocket(cfg.RelayWSURL, relayReconnectAttempts, d.logger.Named("relay"))
		ws.SetHeaderProvider(headers)
		if err := ws.Connect(ctx); err != nil {
			// reconnects in the background; auto mode falls back to HTTP meanwhile
			d.logger.Warn("relay_ws_connect_failed", zap.Error(err))
		}
		d.relayWS = ws
	}
	return relay.NewPublisher(relay.PublisherConfig{
		Mode:        mode,
		Region:      vision.Region{X: cfg.RegionX, Y: cfg.RegionY, W: cfg.RegionW, H: cfg.RegionH},
		PlayAsWhite: cfg.PlayAsWhite,
		DryRun:      cfg.RelayDryRun,
	}, client, d.relayWS, d.logger.Named("relay"))
}

// EngineConfig maps the app config onto the UCI process settings.
func EngineConfig(cfg *config.AppConfig) uci.Config {
	opt := uci.OptionsForRating(cfg.EngineElo)
	if cfg.EngineElo <= 0 {
		opt.SkillLevel = cfg.EngineSkillLevel
	}
	if cfg.EngineThreads > 0 {
		opt.Threads = cfg.EngineThreads
	}
	if cfg.EngineHashMB > 0 {
		opt.HashMB = cfg.EngineHashMB
	}
	if cfg.EngineTopN > opt.MultiPV {
		opt.MultiPV = cfg.EngineTopN
	}
	limits := uci.Limits{
		Depth:          cfg.EngineDepth,
		MoveTimeMillis: cfg.EngineMoveTimeMS,
	}
	timeout := cfg.EngineSearchTimeout
	if timeout <= 0 && cfg.EngineSearchDeadline {
		timeout = uci.SuggestedTimeout(limits)
	}
	return uci.Config{
		BinaryPath:    cfg.StockfishPath,
		Options:       opt,
		Limits:        limits,
		SearchTimeout: timeout,
	}
}

func SessionConfig(cfg *config.AppConfig) chess.SessionConfig {
	return chess.SessionConfig{
		TopN:            cfg.EngineTopN,
		HistoryCapacity: cfg.HistoryCapacity,
		AvoidRepetition: cfg.AvoidRepetition,
	}
}

func OrchestratorConfig(cfg *config.AppConfig) orchestrator.Config {
	return orchestrator.Config{
		PlayAsWhite:         cfg.PlayAsWhite,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		DebugImageDir:       cfg.DebugImageDir,
	}
}

// Close releases everything New opened. It is safe on a partly built Deps.
func (d *Deps) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.relayWS != nil {
		errs = append(errs, d.relayWS.Close(ctx))
	}
	if d.Session != nil {
		errs = append(errs, d.Session.Close())
	}
	if d.Diagnostics != nil {
		errs = append(errs, d.Diagnostics.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	return errors.Join(errs...)
}
