package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amanullahtanweer/video-transcriber/internal/config"
	"github.com/amanullahtanweer/video-transcriber/internal/delivery"
	"github.com/amanullahtanweer/video-transcriber/internal/jobs"
	"github.com/amanullahtanweer/video-transcriber/internal/language"
	"github.com/amanullahtanweer/video-transcriber/internal/metrics"
	"github.com/amanullahtanweer/video-transcriber/internal/pipeline"
	"github.com/amanullahtanweer/video-transcriber/internal/server"
	"github.com/amanullahtanweer/video-transcriber/internal/transcriber"
)

// openModel is replaced in tests.
var openModel = transcriber.Open

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	if err := run(configFile); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// run owns every resource it opens, so all of them are closed on the way
// out, including on startup failures.
func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", configFile, err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx := context.Background()

	// The speech model must be available before anything is accepted.
	model, err := openModel(ctx, cfg.Decoder)
	if err != nil {
		return fmt.Errorf("failed to load speech model (%s): %w", cfg.Decoder.Provider, err)
	}
	defer model.Close()
	logger.Info("speech model ready", "provider", cfg.Decoder.Provider)

	var detector pipeline.LanguageDetector
	if cfg.Language.Detect {
		d, err := language.New(cfg.Language.Languages)
		if err != nil {
			return fmt.Errorf("failed to build language detector: %w", err)
		}
		detector = d
	}

	store, err := jobs.Open(ctx, cfg.Jobs, logger)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer store.Close()

	counters := new(metrics.Counters)
	p, err := pipeline.Build(&cfg, model, detector, counters, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	srv, err := server.New(cfg.Server, server.Deps{
		Runner:   p,
		Jobs:     store,
		Sender:   delivery.NewSender(cfg.Delivery, logger),
		Counters: counters,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("shutting down server", "signal", sig.String())
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server error", "error", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
	defer cancel()
	start := time.Now()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("unclean shutdown", "error", err)
	}
	logger.Info("server stopped", "elapsed", time.Since(start))
	return serveErr
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
