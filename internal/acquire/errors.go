package acquire

import (
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies why a strategy failed.
type ErrorKind string

const (
	KindNetwork           ErrorKind = "network"
	KindTimeout           ErrorKind = "timeout"
	KindBlocked           ErrorKind = "blocked"
	KindRestricted        ErrorKind = "restricted"
	KindEmptyPayload      ErrorKind = "empty_payload"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindNotMedia          ErrorKind = "not_media"
	KindToolMissing       ErrorKind = "tool_missing"
	KindUnknown           ErrorKind = "unknown"
)

// Error is a strategy failure whose kind is already known.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrap(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Attempt records one strategy run.
type Attempt struct {
	Strategy  StrategyID
	Succeeded bool
	Kind      ErrorKind
	Err       error
	// Path is the file the strategy left behind, if any. Failed attempts
	// still report it so the caller can remove it.
	Path    string
	Elapsed time.Duration
}

// ExhaustedError is returned when every configured strategy failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no acquisition strategies configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Strategy, a.Kind))
	}
	return "all acquisition strategies failed (" + strings.Join(parts, ", ") + ")"
}

// Kinds returns the per-attempt classifications in attempt order.
func (e *ExhaustedError) Kinds() []ErrorKind {
	kinds := make([]ErrorKind, len(e.Attempts))
	for i, a := range e.Attempts {
		kinds[i] = a.Kind
	}
	return kinds
}

// Restricted reports whether any strategy reached the platform and was told
// the video itself is unavailable.
func (e *ExhaustedError) Restricted() bool {
	return e.any(KindRestricted)
}

// Unreachable reports whether every strategy failed to reach its service.
func (e *ExhaustedError) Unreachable() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		switch a.Kind {
		case KindNetwork, KindTimeout, KindBlocked, KindToolMissing:
		default:
			return false
		}
	}
	return true
}

func (e *ExhaustedError) any(kind ErrorKind) bool {
	for _, a := range e.Attempts {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// Hint is a user-facing suggestion derived from the attempt kinds.
func (e *ExhaustedError) Hint() string {
	switch {
	case e.Restricted():
		return "The video appears to be private, age-restricted or removed. Download it yourself and use the upload option instead."
	case e.Unreachable():
		return "All download services are unreachable or are refusing requests right now. Try again later or upload the video file directly."
	case e.any(KindNotMedia):
		return "The link does not point to a downloadable video. Check the URL or upload the video file directly."
	default:
		return "The video could not be downloaded. Upload the video file directly instead."
	}
}
