package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/boardsight/internal/boardbuilder"
	"github.com/park285/boardsight/internal/chess/boardstate"
	appcfg "github.com/park285/boardsight/internal/config"
	"github.com/park285/boardsight/internal/httpapi"
	"github.com/park285/boardsight/internal/obslog"
	"github.com/park285/boardsight/internal/render"
	"github.com/park285/boardsight/internal/vision"
	"go.uber.org/zap"
)

const modelWaitTimeout = 2 * time.Minute

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.New(obslog.OptionsFromEnv())
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	switch args[0] {
	case "move":
		err = runMove(cfg, logger, args[1:])
	case "grid":
		err = runGrid(cfg, logger, args[1:])
	case "serve":
		err = runServe(cfg, logger)
	case "probe":
		err = runProbe(cfg, logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command_failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: boardsight <command> [flags]

commands:
  move [-turn w|b] [-ep sq] <image>  recognise one capture and print the engine move
  grid [-png out.png] <image>         print the recognised grid and confidences
  serve                               run the HTTP API
  probe                               check the engine answers

configuration is read from the environment (STOCKFISH_PATH, MODEL_PATH, ...)
and optionally the YAML file named by BOARDSIGHT_CONFIG.
`)
	flag.PrintDefaults()
}

func runMove(cfg *appcfg.AppConfig, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	turnFlag := fs.String("turn", "w", "side to move in the capture")
	epFlag := fs.String("ep", "", "en passant target square, if known")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("move needs exactly one image path")
	}
	turn, err := boardstate.ParseSide(*turnFlag)
	if err != nil {
		return err
	}
	img, err := vision.LoadImage(fs.Arg(0))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	deps, err := boardbuilder.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	wctx, wcancel := context.WithTimeout(ctx, modelWaitTimeout)
	defer wcancel()
	if _, err := deps.Loader.Wait(wctx); err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}

	if *epFlag != "" {
		if err := deps.Session.SetEnPassant(*epFlag); err != nil {
			return err
		}
	}
	res := deps.Orchestrator.ProduceMove(ctx, img, turn)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(httpapi.ToMoveResponse(res)); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("no move: %s", res.Reason)
	}
	return nil
}

func runGrid(cfg *appcfg.AppConfig, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("grid", flag.ExitOnError)
	pngOut := fs.String("png", "", "also render the recognised grid to this file")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("grid needs exactly one image path")
	}
	img, err := vision.LoadImage(fs.Arg(0))
	if err != nil {
		return err
	}
	classifier, err := vision.LoadClassifier(cfg.ModelPath, logger)
	if err != nil {
		return err
	}
	var extOpts []vision.ExtractorOption
	if cfg.NormalizeSize > 0 {
		extOpts = append(extOpts, vision.WithNormalize(cfg.NormalizeSize))
	}
	batch, err := vision.NewExtractor(classifier.InputSize(), extOpts...).Extract(img)
	if err != nil {
		return err
	}
	ctx := context.Background()
	res, err := classifier.Classify(ctx, batch)
	if err != nil {
		return err
	}
	fmt.Print(res.Grid.String())
	low := res.LowConfidence(cfg.ConfidenceThreshold)
	fmt.Printf("low confidence squares (< %.0f): %v\n", cfg.ConfidenceThreshold, low)
	if *pngOut == "" {
		return nil
	}
	png, err := render.NewGridRenderer(0).RenderPNG(ctx, res.Grid, render.Options{LowConfidence: low, From: -1, To: -1, Flipped: !cfg.PlayAsWhite})
	if err != nil {
		return err
	}
	return os.WriteFile(*pngOut, png, 0o644)
}

func runServe(cfg *appcfg.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := boardbuilder.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	if err := deps.Session.Start(ctx); err != nil {
		// the first cycle retries once more
		logger.Warn("engine_start_failed", zap.Error(err))
	}
	deps.Worker.Start(ctx)

	srv := httpapi.New(httpapi.Deps{
		Moves:      deps.Worker,
		Game:       deps.Orchestrator,
		Classifier: deps.Loader,
		Engine:     deps.Session,
		Cycles:     cyclesOrNil(deps),
	}, httpapi.Config{}, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(cfg.HTTPAddr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting_down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown", zap.Error(err))
	}
	<-deps.Worker.Done()
	return nil
}

// cyclesOrNil avoids handing httpapi a typed nil.
func cyclesOrNil(deps *boardbuilder.Deps) httpapi.CycleSource {
	if deps.Diagnostics == nil {
		return nil
	}
	return deps.Diagnostics
}

func runProbe(cfg *appcfg.AppConfig, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	deps, err := boardbuilder.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())
	if err := deps.Session.Start(ctx); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	if !deps.Session.IsAlive(ctx) {
		return errors.New("engine did not answer isready")
	}
	fmt.Printf("engine ok (%s), state=%s\n", cfg.StockfishPath, deps.Session.State())
	return nil
}
