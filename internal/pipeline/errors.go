package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/amanullahtanweer/video-transcriber/internal/acquire"
	"github.com/amanullahtanweer/video-transcriber/internal/audio"
)

// Kind classifies a terminal pipeline failure.
type Kind string

const (
	KindUnsupported          Kind = "unsupported"
	KindNoCaptions           Kind = "no_captions"
	KindAcquisitionExhausted Kind = "acquisition_exhausted"
	KindConversionFailed     Kind = "conversion_failed"
	KindTimeout              Kind = "timeout"
	KindCanceled             Kind = "canceled"
)

// Error is a stage-aware terminal failure.
type Error struct {
	Kind     Kind
	Stage    State
	Attempts []acquire.Attempt
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s at %s", e.Kind, e.Stage)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is a human-readable description for end users.
func (e *Error) Message() string {
	switch e.Kind {
	case KindUnsupported:
		return "The video reference was not recognised. Provide a full http(s) link or upload the file."
	case KindNoCaptions:
		return "This video has no usable captions and no download method is configured."
	case KindAcquisitionExhausted:
		return "The video could not be downloaded by any available method."
	case KindConversionFailed:
		var conv *audio.ConversionError
		if errors.As(e.Err, &conv) && conv.Kind == audio.NoAudioTrack {
			return "The video has no audio track to transcribe."
		}
		if errors.As(e.Err, &conv) && conv.Kind == audio.UnsupportedFormat {
			return "The video file format is not supported."
		}
		return "The video's audio could not be converted for transcription."
	case KindTimeout:
		return "Transcription took too long and was stopped."
	case KindCanceled:
		return "Transcription was canceled."
	default:
		return "Transcription failed."
	}
}

// Hint is an actionable suggestion, when one exists.
func (e *Error) Hint() string {
	var exhausted *acquire.ExhaustedError
	if errors.As(e.Err, &exhausted) {
		return exhausted.Hint()
	}
	switch e.Kind {
	case KindTimeout:
		return "Try a shorter video or upload the file directly."
	case KindConversionFailed:
		return "Check that the file plays with sound, or convert it to mp4 and upload again."
	}
	return ""
}

// contextKind maps a done context to a failure kind.
func contextKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCanceled
}
