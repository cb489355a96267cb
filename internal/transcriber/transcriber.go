package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amanullahtanweer/video-transcriber/internal/config"
)

// ErrModelUnavailable is returned when no speech model can be loaded.
var ErrModelUnavailable = errors.New("speech model unavailable")

// Model is a loaded speech model. It is created once per process, shared by
// every run and must be safe for concurrent NewRecognizer calls.
type Model interface {
	NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error)
	Close() error
}

// Recognizer is a single streaming decoding session. It is not safe for
// concurrent use.
type Recognizer interface {
	// AcceptWaveform feeds one frame of 16-bit PCM and reports whether an
	// utterance was finalized by it.
	AcceptWaveform(frame []byte) (bool, error)
	// Result returns the most recently finalized utterance.
	Result() (string, error)
	// FinalResult flushes buffered audio and returns the last utterance.
	FinalResult() (string, error)
	Close() error
}

// voskResult is the JSON shape shared by the Vosk library and vosk-server.
type voskResult struct {
	Text    *string `json:"text"`
	Partial string  `json:"partial"`
}

// parseVoskResult returns the text of a final result. final is false for
// partial results.
func parseVoskResult(raw []byte) (text string, final bool, err error) {
	var result voskResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", false, fmt.Errorf("failed to parse vosk result: %w", err)
	}
	if result.Text == nil {
		return "", false, nil
	}
	return *result.Text, true, nil
}

// Open loads the model named by cfg.Provider.
func Open(ctx context.Context, cfg config.DecoderConfig) (Model, error) {
	switch cfg.Provider {
	case config.ProviderVoskServer:
		m, err := NewVoskServerModel(ctx, cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.ProviderLocal:
		m, err := NewLocalModel(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrModelUnavailable, cfg.Provider)
	}
}
