package captions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupported means the URL is not a recognised captioned platform.
	ErrUnsupported = errors.New("captions: unsupported platform")
	// ErrNoCaptions means the video has no acceptable caption track, or the
	// track is too short to be useful.
	ErrNoCaptions = errors.New("captions: no usable captions")
)

// NetworkError wraps a transport failure talking to the caption index.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("captions: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Track is one caption track offered for a video.
type Track struct {
	Language  string
	Name      string
	Generated bool
	URL       string
}

// Index lists and downloads caption tracks for one platform.
type Index interface {
	ListTracks(ctx context.Context, videoID string) ([]Track, error)
	// FetchTrack returns the raw caption segments in order.
	FetchTrack(ctx context.Context, track Track) ([]string, error)
}

// Transcript is a caption track flattened to plain text.
type Transcript struct {
	Text      string
	Platform  string
	Title     string
	VideoID   string
	Language  string
	Generated bool
	Segments  int
}

// Options selects tracks and sets the length floor.
type Options struct {
	Language          string
	AcceptedLanguages []string
	MinChars          int
}

// Fetcher resolves video URLs to caption transcripts.
type Fetcher struct {
	platforms *Platforms
	indexes   map[string]Index
	opts      Options
	logger    *slog.Logger
}

// NewFetcher returns a fetcher that serves the platforms with a registered
// index.
func NewFetcher(platforms *Platforms, indexes map[string]Index, opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{platforms: platforms, indexes: indexes, opts: opts, logger: logger}
}

// Supports reports whether rawURL belongs to a platform this fetcher can
// query. It performs no network I/O.
func (f *Fetcher) Supports(rawURL string) bool {
	_, _, _, ok := f.resolve(rawURL)
	return ok
}

// Platform returns the matching platform, if any, regardless of whether an
// index is registered for it.
func (f *Fetcher) Platform(rawURL string) (Platform, bool) {
	p, _, ok := f.platforms.Match(rawURL)
	return p, ok
}

func (f *Fetcher) resolve(rawURL string) (Platform, string, Index, bool) {
	p, id, ok := f.platforms.Match(rawURL)
	if !ok {
		return Platform{}, "", nil, false
	}
	idx, ok := f.indexes[p.Name]
	if !ok {
		return Platform{}, "", nil, false
	}
	return p, id, idx, true
}

// Fetch returns the preferred caption track of rawURL as plain text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Transcript, error) {
	p, id, idx, ok := f.resolve(rawURL)
	if !ok {
		return Transcript{}, ErrUnsupported
	}

	tracks, err := idx.ListTracks(ctx, id)
	if err != nil {
		return Transcript{}, err
	}

	track, ok := SelectTrack(tracks, f.opts.Language, f.opts.AcceptedLanguages)
	if !ok {
		return Transcript{}, fmt.Errorf("%w: no track in %s among %d", ErrNoCaptions, f.opts.Language, len(tracks))
	}

	segments, err := idx.FetchTrack(ctx, track)
	if err != nil {
		return Transcript{}, err
	}

	text := joinSegments(segments)
	if n := utf8.RuneCountInString(text); n < f.opts.MinChars {
		return Transcript{}, fmt.Errorf("%w: caption text is %d chars, need %d", ErrNoCaptions, n, f.opts.MinChars)
	}

	f.logger.Debug("captions fetched",
		"platform", p.Name, "video_id", id, "language", track.Language,
		"generated", track.Generated, "segments", len(segments))

	return Transcript{
		Text:      text,
		Platform:  p.Name,
		Title:     p.Title,
		VideoID:   id,
		Language:  track.Language,
		Generated: track.Generated,
		Segments:  len(segments),
	}, nil
}

// SelectTrack picks, in order: a manual track in target, a generated track
// in target, then the first track whose language is accepted (accepted
// order, manual before generated).
func SelectTrack(tracks []Track, target string, accepted []string) (Track, bool) {
	find := func(lang string, generated bool) (Track, bool) {
		for _, t := range tracks {
			if t.Generated == generated && strings.EqualFold(t.Language, lang) {
				return t, true
			}
		}
		return Track{}, false
	}

	if target != "" {
		if t, ok := find(target, false); ok {
			return t, true
		}
		if t, ok := find(target, true); ok {
			return t, true
		}
	}
	for _, lang := range accepted {
		if t, ok := find(lang, false); ok {
			return t, true
		}
		if t, ok := find(lang, true); ok {
			return t, true
		}
	}
	return Track{}, false
}
