package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// StrategyID names an acquisition strategy in configuration.
type StrategyID string

const (
	StrategyExtractor StrategyID = "extractor"
	StrategyProxy     StrategyID = "proxy"
	StrategyDirect    StrategyID = "direct"
)

// ParseStrategyID validates a configured strategy name.
func ParseStrategyID(s string) (StrategyID, error) {
	switch id := StrategyID(s); id {
	case StrategyExtractor, StrategyProxy, StrategyDirect:
		return id, nil
	default:
		return "", fmt.Errorf("unknown acquisition strategy %q", s)
	}
}

// Strategy turns a remote reference into a local media file under dir.
// On failure it may still return the path of a partial file.
type Strategy interface {
	ID() StrategyID
	Fetch(ctx context.Context, rawURL, dir string) (string, error)
}

// Result is a successfully acquired media file.
type Result struct {
	Path     string
	Strategy StrategyID
	Bytes    int64
	Attempts []Attempt
}

// Acquirer runs strategies in order until one yields a usable file.
type Acquirer struct {
	strategies []Strategy
	minBytes   int64
	classifier *Classifier
	logger     *slog.Logger
}

// New returns an acquirer over strategies, tried in the given order.
func New(strategies []Strategy, minBytes int64, classifier *Classifier, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		strategies: strategies,
		minBytes:   minBytes,
		classifier: classifier,
		logger:     logger,
	}
}

// Order lists the strategy IDs in attempt order.
func (a *Acquirer) Order() []StrategyID {
	ids := make([]StrategyID, len(a.strategies))
	for i, s := range a.strategies {
		ids[i] = s.ID()
	}
	return ids
}

// Acquire tries each strategy once. Strategy k+1 only runs after strategy k
// failed. When all fail the error is an *ExhaustedError. A done ctx stops the
// cascade and is returned as is; attempts made so far are still reported in
// the returned Result so their files can be removed.
func (a *Acquirer) Acquire(ctx context.Context, rawURL, dir string) (Result, error) {
	var attempts []Attempt

	for _, s := range a.strategies {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts}, err
		}

		start := time.Now()
		path, err := s.Fetch(ctx, rawURL, dir)
		attempt := Attempt{Strategy: s.ID(), Path: path, Elapsed: time.Since(start)}

		if err == nil {
			var size int64
			size, err = a.checkSize(path)
			if err == nil {
				attempt.Succeeded = true
				attempts = append(attempts, attempt)
				a.logger.Info("media acquired",
					"strategy", s.ID(), "bytes", size, "elapsed", attempt.Elapsed)
				return Result{Path: path, Strategy: s.ID(), Bytes: size, Attempts: attempts}, nil
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			attempt.Kind = a.classifier.Classify(ctxErr)
			attempt.Err = err
			attempts = append(attempts, attempt)
			return Result{Attempts: attempts}, ctxErr
		}

		attempt.Err = err
		attempt.Kind = a.classifier.Classify(err)
		attempts = append(attempts, attempt)
		a.logger.Warn("acquisition strategy failed",
			"strategy", s.ID(), "kind", attempt.Kind, "error", err, "elapsed", attempt.Elapsed)
	}

	return Result{Attempts: attempts}, &ExhaustedError{Attempts: attempts}
}

func (a *Acquirer) checkSize(path string) (int64, error) {
	if path == "" {
		return 0, errorf(KindEmptyPayload, "strategy returned no file")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, errorf(KindEmptyPayload, "reported file %s does not exist", path)
		}
		return 0, err
	}
	if info.Size() < a.minBytes {
		return info.Size(), errorf(KindEmptyPayload, "file is %d bytes, need at least %d", info.Size(), a.minBytes)
	}
	return info.Size(), nil
}
