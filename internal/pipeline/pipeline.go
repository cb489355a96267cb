package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/amanullahtanweer/video-transcriber/internal/acquire"
	"github.com/amanullahtanweer/video-transcriber/internal/audio"
	"github.com/amanullahtanweer/video-transcriber/internal/captions"
	"github.com/amanullahtanweer/video-transcriber/internal/metrics"
	"github.com/amanullahtanweer/video-transcriber/internal/transcriber"
)

// State is a pipeline stage.
type State string

const (
	StateStart              State = "start"
	StateCaptionAttempt     State = "caption_attempt"
	StateMediaAcquisition   State = "media_acquisition"
	StateAudioNormalization State = "audio_normalization"
	StateSpeechDecoding     State = "speech_decoding"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// DefaultPlaceholder replaces decoded text that is below the floor.
const DefaultPlaceholder = "No speech could be detected in this video."

type CaptionFetcher interface {
	Supports(rawURL string) bool
	Platform(rawURL string) (captions.Platform, bool)
	Fetch(ctx context.Context, rawURL string) (captions.Transcript, error)
}

type MediaAcquirer interface {
	Acquire(ctx context.Context, rawURL, dir string) (acquire.Result, error)
}

type AudioExtractor interface {
	Normalize(ctx context.Context, mediaPath, dir string) (audio.Normalized, error)
}

type SpeechDecoder interface {
	Decode(ctx context.Context, in audio.Normalized) (transcriber.Decoding, error)
}

// LanguageDetector names the language of a decoded transcript.
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

// Options are the per-process tunables of a pipeline.
type Options struct {
	MinDecodedChars int
	Placeholder     string
	// Timeout bounds a whole run. Zero means no limit beyond the caller's ctx.
	Timeout     time.Duration
	WorkDir     string
	EventLogDir string
	// CaptionsEnabled gates the caption attempt for recognised platforms.
	CaptionsEnabled bool
}

// Deps are the collaborators of a pipeline. Captions and Detector are
// optional.
type Deps struct {
	Captions  CaptionFetcher
	Acquirer  MediaAcquirer
	Extractor AudioExtractor
	Decoder   SpeechDecoder
	Detector  LanguageDetector
	Counters  *metrics.Counters
	Logger    *slog.Logger
}

// Pipeline turns video references into transcripts. It is safe for
// concurrent use; each Run has its own workspace.
type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Acquirer == nil || deps.Extractor == nil || deps.Decoder == nil {
		return nil, errors.New("pipeline: acquirer, extractor and decoder are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Counters == nil {
		deps.Counters = new(metrics.Counters)
	}
	if opts.Placeholder == "" {
		opts.Placeholder = DefaultPlaceholder
	}
	return &Pipeline{deps: deps, opts: opts}, nil
}

// Counters returns the process counters the pipeline records into.
func (p *Pipeline) Counters() *metrics.Counters { return p.deps.Counters }

// run is the mutable state of one invocation.
type run struct {
	p       *Pipeline
	id      string
	ref     Reference
	ws      *workspace
	log     *RunLog
	logger  *slog.Logger
	metrics *metrics.RunMetrics

	media      string
	normalized audio.Normalized
	captionErr error
	attempts   []acquire.Attempt

	result Result
	err    *Error
}

// Run executes the pipeline for ref. The returned error is always a *Error
// except when the workspace cannot be created.
func (p *Pipeline) Run(ctx context.Context, ref Reference) (Result, error) {
	id := uuid.NewString()
	started := time.Now()
	p.deps.Counters.RunsStarted.Add(1)

	r := &run{
		p:       p,
		id:      id,
		ref:     ref,
		logger:  p.deps.Logger.With("run_id", id),
		metrics: metrics.NewRunMetrics(id),
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	ws, err := newWorkspace(p.opts.WorkDir, id)
	if err != nil {
		p.deps.Counters.RunsFailed.Add(1)
		return Result{RunID: id}, fmt.Errorf("pipeline: %w", err)
	}
	r.ws = ws
	defer func() {
		if err := ws.cleanup(); err != nil {
			r.logger.Warn("workspace cleanup failed", "dir", ws.dir, "error", err)
		}
	}()

	r.log, err = NewRunLog(p.opts.EventLogDir, id, started)
	if err != nil {
		r.logger.Warn("run event log disabled", "error", err)
	}
	defer r.log.Close()
	r.log.LogRunStart(ref, started)

	r.logger.Info("run started", "reference", ref.String())

	state := StateStart
	for state != StateDone && state != StateFailed {
		r.metrics.EnterStage(string(state))
		r.log.LogState(state)
		r.logger.Debug("entering state", "state", state)
		state = r.step(ctx, state)
	}

	r.metrics.Finalize()
	ended := time.Now()
	r.result.RunID = id
	r.result.Duration = ended.Sub(started)
	r.result.Attempts = r.attempts

	if state == StateFailed {
		p.deps.Counters.RunsFailed.Add(1)
		if r.err.Kind == KindTimeout {
			p.deps.Counters.RunsTimedOut.Add(1)
		}
		r.log.LogRunEnd(ended, r.result, r.err)
		p.deps.Logger.Warn("run failed",
			append([]any{"kind", r.err.Kind, "stage", r.err.Stage, "error", r.err.Err}, r.metrics.Attrs()...)...)
		return Result{RunID: id, Duration: r.result.Duration, Attempts: r.attempts}, r.err
	}

	p.deps.Counters.RunsSucceeded.Add(1)
	r.metrics.SetTranscript(r.result.Text, string(r.result.Method), string(r.result.Source))
	r.log.LogRunEnd(ended, r.result, nil)
	p.deps.Logger.Info("run complete", r.metrics.Attrs()...)
	return r.result, nil
}

func (r *run) step(ctx context.Context, state State) State {
	if err := ctx.Err(); err != nil {
		return r.fail(state, contextKind(err), err)
	}
	switch state {
	case StateStart:
		return r.start()
	case StateCaptionAttempt:
		return r.captionAttempt(ctx)
	case StateMediaAcquisition:
		return r.mediaAcquisition(ctx)
	case StateAudioNormalization:
		return r.audioNormalization(ctx)
	case StateSpeechDecoding:
		return r.speechDecoding(ctx)
	default:
		return r.fail(state, KindUnsupported, fmt.Errorf("unknown state %q", state))
	}
}

func (r *run) fail(state State, kind Kind, err error) State {
	r.err = &Error{Kind: kind, Stage: state, Attempts: r.attempts, Err: err}
	return StateFailed
}

// failStage classifies err as a context failure when ctx is done, else kind.
func (r *run) failStage(ctx context.Context, state State, kind Kind, err error) State {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return r.fail(state, contextKind(ctxErr), err)
	}
	return r.fail(state, kind, err)
}

func (r *run) start() State {
	if err := r.ref.Validate(); err != nil {
		return r.fail(StateStart, KindUnsupported, err)
	}

	if !r.ref.IsRemote() {
		r.media = r.ref.Path()
		r.result.Source = SourceLocalUpload
		r.result.Title = TitleUpload
		return StateAudioNormalization
	}

	r.result.Title = TitleDefault
	fetcher := r.p.deps.Captions
	if fetcher == nil {
		return StateMediaAcquisition
	}
	if platform, ok := fetcher.Platform(r.ref.URL()); ok && platform.Title != "" {
		r.result.Title = platform.Title
	}
	if r.p.opts.CaptionsEnabled && fetcher.Supports(r.ref.URL()) {
		return StateCaptionAttempt
	}
	return StateMediaAcquisition
}

func (r *run) captionAttempt(ctx context.Context) State {
	transcript, err := r.p.deps.Captions.Fetch(ctx, r.ref.URL())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.fail(StateCaptionAttempt, contextKind(ctxErr), err)
		}
		r.captionErr = err
		r.p.deps.Counters.CaptionMisses.Add(1)
		r.log.LogCaptionMiss(err)
		r.logger.Info("captions unavailable, acquiring media", "error", err)
		return StateMediaAcquisition
	}

	r.p.deps.Counters.CaptionHits.Add(1)
	r.result.Text = transcript.Text
	r.result.Method = MethodCaption
	r.result.Source = SourceCaption
	r.result.Language = transcript.Language
	if transcript.Title != "" {
		r.result.Title = transcript.Title
	}
	return StateDone
}

func (r *run) mediaAcquisition(ctx context.Context) State {
	res, err := r.p.deps.Acquirer.Acquire(ctx, r.ref.URL(), r.ws.dir)

	for _, a := range res.Attempts {
		r.log.LogAttempt(a)
		if a.Succeeded {
			continue
		}
		r.p.deps.Counters.StrategyFailures.Add(1)
		if rmErr := r.ws.remove(a.Path); rmErr != nil {
			r.logger.Warn("failed to remove partial media", "path", a.Path, "error", rmErr)
		}
	}
	r.attempts = append(r.attempts, res.Attempts...)
	r.metrics.AddStrategyAttempts(len(res.Attempts))

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.fail(StateMediaAcquisition, contextKind(ctxErr), err)
		}
		var exhausted *acquire.ExhaustedError
		if errors.As(err, &exhausted) && len(exhausted.Attempts) == 0 && errors.Is(r.captionErr, captions.ErrNoCaptions) {
			// Nothing to fall back to.
			return r.fail(StateMediaAcquisition, KindNoCaptions, r.captionErr)
		}
		return r.fail(StateMediaAcquisition, KindAcquisitionExhausted, err)
	}

	r.p.deps.Counters.MediaAcquired.Add(1)
	r.metrics.SetMediaBytes(res.Bytes)
	r.media = res.Path
	r.result.Source = sourceFor(res.Strategy)
	return StateAudioNormalization
}

func (r *run) audioNormalization(ctx context.Context) State {
	normalized, err := r.p.deps.Extractor.Normalize(ctx, r.media, r.ws.dir)

	if rmErr := r.ws.remove(r.media); rmErr != nil {
		r.logger.Warn("failed to remove media", "path", r.media, "error", rmErr)
	}
	r.media = ""

	if err != nil {
		_ = r.ws.remove(normalized.Path)
		return r.failStage(ctx, StateAudioNormalization, KindConversionFailed, err)
	}
	r.normalized = normalized
	return StateSpeechDecoding
}

func (r *run) speechDecoding(ctx context.Context) State {
	decoding, err := r.p.deps.Decoder.Decode(ctx, r.normalized)

	if rmErr := r.ws.remove(r.normalized.Path); rmErr != nil {
		r.logger.Warn("failed to remove normalized audio", "path", r.normalized.Path, "error", rmErr)
	}

	if err != nil {
		// Only an unreadable normalized file gets here without a done ctx.
		return r.failStage(ctx, StateSpeechDecoding, KindConversionFailed, err)
	}
	r.metrics.SetDecoding(decoding.Audio, decoding.Utterances)
	if decoding.Errors > 0 {
		// Decoding errors mark the run degraded even above the floor.
		r.p.deps.Counters.DecodesFailed.Add(1)
		r.result.Degraded = true
		if decoding.Unavailable {
			r.logger.Error("speech recognizer unavailable", "errors", decoding.Errors)
		} else {
			r.logger.Warn("decoding cut short", "errors", decoding.Errors, "frames", decoding.Frames)
		}
	}

	r.result.Method = MethodSpeechDecoding
	if utf8.RuneCountInString(decoding.Text) < r.p.opts.MinDecodedChars {
		r.p.deps.Counters.DecodesDegraded.Add(1)
		r.logger.Info("decoded text below floor, using placeholder",
			"chars", utf8.RuneCountInString(decoding.Text), "floor", r.p.opts.MinDecodedChars)
		r.result.Text = r.p.opts.Placeholder
		r.result.Degraded = true
		return StateDone
	}

	r.result.Text = decoding.Text
	if d := r.p.deps.Detector; d != nil {
		if lang, ok := d.Detect(decoding.Text); ok {
			r.result.Language = lang
		}
	}
	return StateDone
}
