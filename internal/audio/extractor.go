package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amanullahtanweer/video-transcriber/internal/command"
)

const (
	// SampleRate is the only rate the decoder accepts.
	SampleRate = 16000
	// Channels is the only channel layout the decoder accepts.
	Channels = 1

	normalizedName = "normalized-16k-mono.wav"

	// A WAV header plus 50ms of 16-bit mono samples at 16kHz.
	minNormalizedBytes = 44 + 1600
)

// Normalized is a mono 16kHz 16-bit PCM WAV file ready for decoding.
type Normalized struct {
	Path       string
	SampleRate int
	Channels   int
}

// ConversionKind tells the pipeline why normalization failed.
type ConversionKind string

const (
	UnsupportedFormat ConversionKind = "unsupported_format"
	NoAudioTrack      ConversionKind = "no_audio_track"
	ConversionFailed  ConversionKind = "conversion_error"
)

// ConversionError is returned by Normalize when ffmpeg could not produce
// usable audio.
type ConversionError struct {
	Kind    ConversionKind
	Message string
	Command command.Log
	Err     error
}

// Error formats the failure with the ffmpeg exit code when there is one.
func (e *ConversionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Command.Command == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Kind, e.Message, e.Command.Command, e.Command.ExitCode)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var (
	noStreamMarkers = []string{
		"does not contain any stream",
		"matches no streams",
		"output file #0 does not contain",
	}
	unsupportedMarkers = []string{
		"invalid data found when processing input",
		"unknown input format",
		"could not find codec parameters",
		"no such file or directory",
		"moov atom not found",
	}
)

// Extractor converts acquired media into decoder-ready WAV with ffmpeg.
type Extractor struct {
	ffmpegPath string
	runner     command.Runner
	stat       func(name string) (os.FileInfo, error)
	remove     func(name string) error
}

// NewExtractor returns an extractor that shells out to ffmpegPath.
func NewExtractor(ffmpegPath string) *Extractor {
	return NewExtractorWithRunner(ffmpegPath, command.ExecRunner{})
}

// NewExtractorWithRunner is NewExtractor with an injectable process runner.
func NewExtractorWithRunner(ffmpegPath string, runner command.Runner) *Extractor {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		stat:       os.Stat,
		remove:     os.Remove,
	}
}

// Normalize writes dir/normalized-16k-mono.wav from mediaPath. Video streams
// are dropped. A partial output file is removed on failure.
func (e *Extractor) Normalize(ctx context.Context, mediaPath, dir string) (Normalized, error) {
	if _, err := e.stat(mediaPath); err != nil {
		return Normalized{}, &ConversionError{
			Kind:    UnsupportedFormat,
			Message: fmt.Sprintf("cannot access input media: %s", mediaPath),
			Err:     err,
		}
	}

	outPath := filepath.Join(dir, normalizedName)
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", mediaPath,
		"-vn",
		"-ac", fmt.Sprint(Channels),
		"-ar", fmt.Sprint(SampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}

	res, err := e.runner.Run(ctx, e.ffmpegPath, args...)
	log := command.Log{
		Command:  e.ffmpegPath,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	if err != nil {
		_ = e.remove(outPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Normalized{}, ctxErr
		}
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, command.ErrNotFound) {
			return Normalized{}, &ConversionError{
				Kind:    ConversionFailed,
				Message: "ffmpeg executable not found",
				Command: log,
				Err:     err,
			}
		}
		return Normalized{}, &ConversionError{
			Kind:    classifyStderr(res.Stderr),
			Message: lastLine(res.Stderr),
			Command: log,
			Err:     err,
		}
	}

	info, err := e.stat(outPath)
	if err != nil {
		return Normalized{}, &ConversionError{
			Kind:    NoAudioTrack,
			Message: "ffmpeg produced no output",
			Command: log,
			Err:     err,
		}
	}
	if info.Size() <= minNormalizedBytes {
		_ = e.remove(outPath)
		return Normalized{}, &ConversionError{
			Kind:    NoAudioTrack,
			Message: fmt.Sprintf("normalized audio is only %d bytes", info.Size()),
			Command: log,
		}
	}

	return Normalized{Path: outPath, SampleRate: SampleRate, Channels: Channels}, nil
}

func classifyStderr(stderr string) ConversionKind {
	lower := strings.ToLower(stderr)
	for _, marker := range noStreamMarkers {
		if strings.Contains(lower, marker) {
			return NoAudioTrack
		}
	}
	for _, marker := range unsupportedMarkers {
		if strings.Contains(lower, marker) {
			return UnsupportedFormat
		}
	}
	return ConversionFailed
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "ffmpeg failed"
}
