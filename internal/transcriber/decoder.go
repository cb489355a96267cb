package transcriber

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/amanullahtanweer/video-transcriber/internal/audio"
)

// DefaultFrameSamples is the number of samples fed to the recognizer per call.
const DefaultFrameSamples = 4000

// Decoding is the outcome of one decoding run.
type Decoding struct {
	Text       string
	Utterances int
	Frames     int
	Audio      time.Duration
	// Errors counts recognizer failures that cut decoding short.
	Errors int
	// Unavailable is set when no recognizer could be created at all.
	Unavailable bool
}

// Decoder streams a normalized WAV file through a recognizer.
type Decoder struct {
	model        Model
	frameSamples int
	logger       *slog.Logger
}

// NewDecoder returns a decoder backed by model. frameSamples <= 0 selects
// DefaultFrameSamples.
func NewDecoder(model Model, frameSamples int, logger *slog.Logger) *Decoder {
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{model: model, frameSamples: frameSamples, logger: logger}
}

// Decode returns the finalized utterances of in joined by single spaces.
// Recognizer failures are logged and whatever was decoded so far is returned.
// Only an unreadable WAV file or a done ctx produce an error.
func (d *Decoder) Decode(ctx context.Context, in audio.Normalized) (Decoding, error) {
	wav, err := audio.OpenWAV(in.Path)
	if err != nil {
		return Decoding{}, err
	}
	defer wav.Close()

	result := Decoding{Audio: wav.Duration()}

	rec, err := d.model.NewRecognizer(ctx, in.SampleRate)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Decoding{}, ctxErr
		}
		d.logger.Error("recognizer unavailable", "error", err)
		result.Errors++
		result.Unavailable = true
		return result, nil
	}
	defer rec.Close()

	var utterances []string
	collect := func(text string) {
		if text = strings.TrimSpace(text); text != "" {
			utterances = append(utterances, text)
		}
	}

	buf := make([]byte, d.frameSamples*2)
	for {
		if err := ctx.Err(); err != nil {
			return Decoding{}, err
		}

		n, err := wav.ReadFrame(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			d.logger.Error("wav read failed", "error", err, "frames", result.Frames)
			result.Errors++
			break
		}
		if n == 0 {
			break
		}
		result.Frames++

		final, err := rec.AcceptWaveform(buf[:n])
		if err != nil {
			d.logger.Error("recognizer failed", "error", err, "frames", result.Frames)
			result.Errors++
			break
		}
		if !final {
			continue
		}
		text, err := rec.Result()
		if err != nil {
			d.logger.Warn("failed to read utterance", "error", err)
			continue
		}
		collect(text)
	}

	if result.Errors == 0 {
		text, err := rec.FinalResult()
		if err != nil {
			d.logger.Warn("failed to flush recognizer", "error", err)
			result.Errors++
		} else {
			collect(text)
		}
	}

	result.Text = strings.Join(utterances, " ")
	result.Utterances = len(utterances)
	return result, nil
}
