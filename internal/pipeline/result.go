package pipeline

import (
	"time"

	"github.com/amanullahtanweer/video-transcriber/internal/acquire"
)

// Method says how the text was produced.
type Method string

const (
	MethodCaption        Method = "caption"
	MethodSpeechDecoding Method = "speech_decoding"
)

// Source says where the text or media came from.
type Source string

const (
	SourceCaption        Source = "caption"
	SourceDirectFetch    Source = "direct_fetch"
	SourceProxyFetch     Source = "proxy_fetch"
	SourceExtractorFetch Source = "extractor_fetch"
	SourceLocalUpload    Source = "local_upload"
)

func sourceFor(id acquire.StrategyID) Source {
	switch id {
	case acquire.StrategyDirect:
		return SourceDirectFetch
	case acquire.StrategyProxy:
		return SourceProxyFetch
	default:
		return SourceExtractorFetch
	}
}

const (
	TitleUpload  = "Uploaded Video Transcript"
	TitleDefault = "Video Transcript"
)

// Result is the transcript of one run.
type Result struct {
	RunID    string
	Text     string
	Title    string
	Method   Method
	Source   Source
	Language string
	// Degraded is set when decoded text was below the floor and Text holds
	// the placeholder.
	Degraded bool
	Duration time.Duration
	Attempts []acquire.Attempt
}

// DurationMs is the run's wall time in milliseconds.
func (r Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
