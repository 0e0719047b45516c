package boardbuilder

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/park285/boardsight/internal/chess/boardstate"
	"github.com/park285/boardsight/internal/config"
	"github.com/park285/boardsight/internal/domain"
	"github.com/park285/boardsight/internal/service/orchestrator"
	"github.com/park285/boardsight/internal/vision"
)

func TestEngineConfigSkillLevel(t *testing.T) {
	cfg := &config.AppConfig{
		StockfishPath:       "/usr/bin/stockfish",
		EngineThreads:       2,
		EngineHashMB:        128,
		EngineSkillLevel:    12,
		EngineDepth:         18,
		EngineTopN:          5,
		EngineSearchTimeout: 20 * time.Second,
	}
	got := EngineConfig(cfg)
	if got.BinaryPath != cfg.StockfishPath || got.Options.Threads != 2 || got.Options.HashMB != 128 {
		t.Fatalf("unexpected options %+v", got)
	}
	if got.Options.SkillLevel != 12 || got.Options.Elo != 0 {
		t.Fatalf("skill level not applied: %+v", got.Options)
	}
	if got.Options.MultiPV != 5 || got.Limits.Depth != 18 || got.SearchTimeout != 20*time.Second {
		t.Fatalf("unexpected limits %+v", got)
	}
}

func TestEngineConfigDerivedDeadline(t *testing.T) {
	base := &config.AppConfig{StockfishPath: "sf", EngineDepth: 15}
	if got := EngineConfig(base); got.SearchTimeout != 0 {
		t.Fatalf("no deadline unless asked for, got %v", got.SearchTimeout)
	}
	base.EngineSearchDeadline = true
	if got := EngineConfig(base); got.SearchTimeout != 6*time.Second {
		t.Fatalf("depth 15 deadline = %v", got.SearchTimeout)
	}
	base.EngineMoveTimeMS = 1000
	if got := EngineConfig(base); got.SearchTimeout != 9*time.Second {
		t.Fatalf("movetime deadline = %v", got.SearchTimeout)
	}
	base.EngineSearchTimeout = 2 * time.Second
	if got := EngineConfig(base); got.SearchTimeout != 2*time.Second {
		t.Fatalf("explicit timeout must win, got %v", got.SearchTimeout)
	}
}

func TestEngineConfigElo(t *testing.T) {
	got := EngineConfig(&config.AppConfig{StockfishPath: "sf", EngineElo: 900, EngineSkillLevel: 20})
	if got.Options.Elo != 1320 {
		t.Fatalf("elo should clamp to engine minimum, got %d", got.Options.Elo)
	}
	if got.Options.SkillLevel == 20 {
		t.Fatalf("skill level should follow the rating when elo is set")
	}
}

func TestSessionAndOrchestratorConfig(t *testing.T) {
	cfg := &config.AppConfig{EngineTopN: 4, HistoryCapacity: 10, AvoidRepetition: true, PlayAsWhite: false, ConfidenceThreshold: 70, DebugImageDir: "/tmp/x"}
	sc := SessionConfig(cfg)
	if sc.TopN != 4 || sc.HistoryCapacity != 10 || !sc.AvoidRepetition {
		t.Fatalf("session config %+v", sc)
	}
	oc := OrchestratorConfig(cfg)
	if oc.PlayAsWhite || oc.ConfidenceThreshold != 70 || oc.DebugImageDir != "/tmp/x" {
		t.Fatalf("orchestrator config %+v", oc)
	}
}

func TestNewWithoutOptionalStores(t *testing.T) {
	cfg := &config.AppConfig{
		StockfishPath: "/nonexistent/stockfish",
		ModelPath:     "/nonexistent/model.bsnn",
		SquareSize:    64,
		EngineTopN:    3,
		PlayAsWhite:   true,
	}
	d, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close(context.Background())
	if d.Diagnostics != nil || d.Relay != nil {
		t.Fatalf("optional components should stay nil")
	}
	if d.MoveLog == nil || d.Worker == nil || d.Orchestrator == nil {
		t.Fatalf("core components missing")
	}
	if _, err := d.Loader.Wait(context.Background()); err == nil {
		t.Fatalf("expected model load error for missing file")
	}
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := New(context.Background(), &config.AppConfig{}, nil); err == nil {
		t.Fatalf("expected error without engine path")
	}
}

func writeModel(t *testing.T, size int) string {
	t.Helper()
	in := size * size * vision.DefaultChannels
	m, err := vision.NewDenseModel(size, vision.DefaultChannels, vision.Layer{
		In:         in,
		Out:        domain.NumLabels,
		Activation: vision.ActivationSoftmax,
		Weights:    make([]float32, in*domain.NumLabels),
		Bias:       make([]float32, domain.NumLabels),
	})
	if err != nil {
		t.Fatalf("NewDenseModel: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.bsnn")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if _, err := m.WriteTo(f); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return path
}

func TestServedPipelineUsesModelSquareSize(t *testing.T) {
	cfg := &config.AppConfig{
		StockfishPath: "/nonexistent/stockfish",
		ModelPath:     writeModel(t, 32),
		SquareSize:    64,
		EngineTopN:    3,
		PlayAsWhite:   true,
	}
	d, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close(context.Background())
	if _, err := d.Loader.Wait(context.Background()); err != nil {
		t.Fatalf("load model: %v", err)
	}

	res := d.Orchestrator.ProduceMove(context.Background(), image.NewRGBA(image.Rect(0, 0, 256, 256)), boardstate.White)
	if res.Reason == orchestrator.ReasonClassifierFailed {
		t.Fatalf("classification failed: %s", res.Message)
	}
	if len(res.Grid) != domain.BoardSquares {
		t.Fatalf("expected a recognised grid, got %d squares", len(res.Grid))
	}
	// no engine binary, so the cycle stops at the engine
	if res.Reason != orchestrator.ReasonEngineUnreachable {
		t.Fatalf("reason = %s", res.Reason)
	}
}
