package pipeline

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/amanullahtanweer/video-transcriber/internal/acquire"
	"github.com/amanullahtanweer/video-transcriber/internal/audio"
	"github.com/amanullahtanweer/video-transcriber/internal/captions"
	"github.com/amanullahtanweer/video-transcriber/internal/command"
	"github.com/amanullahtanweer/video-transcriber/internal/config"
	"github.com/amanullahtanweer/video-transcriber/internal/metrics"
	"github.com/amanullahtanweer/video-transcriber/internal/retry"
	"github.com/amanullahtanweer/video-transcriber/internal/transcriber"
)

// Build wires a pipeline from configuration around an already loaded speech
// model. detector may be nil.
func Build(cfg *config.Config, model transcriber.Model, detector LanguageDetector, counters *metrics.Counters, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// API and caption calls are small; downloads are bounded by the run.
	client := &http.Client{Timeout: 2 * time.Minute}
	media := acquire.NewMediaClient(time.Minute)
	runner := command.ExecRunner{}

	deps := Deps{
		Detector: detector,
		Counters: counters,
		Logger:   logger,
	}

	// The fetcher is built even with captions disabled; it also names the
	// platform for the document title.
	platforms, err := captions.LoadPlatforms(cfg.Captions.PlatformsFile)
	if err != nil {
		return nil, err
	}
	youtube := captions.NewYouTubeIndex(client, retry.FromConfig(cfg.Acquire.Retry), logger.With("component", "captions"))
	youtube.Classifier = platforms.Classifier("youtube")
	logger.Debug("caption platforms loaded", "platforms", platforms.Names())
	deps.Captions = captions.NewFetcher(platforms, map[string]captions.Index{"youtube": youtube}, captions.Options{
		Language:          cfg.Captions.Language,
		AcceptedLanguages: cfg.Captions.AcceptedLanguages,
		MinChars:          cfg.Pipeline.MinCaptionChars,
	}, logger.With("component", "captions"))

	classifier, err := acquire.NewClassifier(cfg.Acquire.RulesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load acquisition rules: %w", err)
	}
	strategies, err := acquire.BuildStrategies(cfg.Pipeline.StrategyOrder, cfg.Acquire, client, media, runner, logger.With("component", "acquire"))
	if err != nil {
		return nil, err
	}
	deps.Acquirer = acquire.New(strategies, cfg.Pipeline.MinMediaBytes, classifier, logger.With("component", "acquire"))
	deps.Extractor = audio.NewExtractorWithRunner(cfg.Audio.FFmpegPath, runner)
	deps.Decoder = transcriber.NewDecoder(model, cfg.Decoder.FrameSamples, logger.With("component", "decoder"))

	return New(deps, Options{
		MinDecodedChars: cfg.Pipeline.MinDecodedChars,
		Placeholder:     cfg.Pipeline.Placeholder,
		Timeout:         cfg.Pipeline.Timeout,
		WorkDir:         cfg.Pipeline.WorkDir,
		EventLogDir:     cfg.Pipeline.EventLogDir,
		CaptionsEnabled: cfg.Captions.Enabled,
	})
}
