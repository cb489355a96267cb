package captions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndex struct {
	tracks   []Track
	listErr  error
	segments map[string][]string
	fetched  []Track
}

func (s *stubIndex) ListTracks(ctx context.Context, videoID string) ([]Track, error) {
	return s.tracks, s.listErr
}

func (s *stubIndex) FetchTrack(ctx context.Context, track Track) ([]string, error) {
	s.fetched = append(s.fetched, track)
	return s.segments[track.URL], nil
}

func newTestFetcher(t *testing.T, idx Index, minChars int) *Fetcher {
	t.Helper()
	platforms, err := LoadPlatforms("")
	require.NoError(t, err)
	return NewFetcher(platforms, map[string]Index{"youtube": idx}, Options{
		Language:          "en",
		AcceptedLanguages: []string{"en", "en-US", "en-GB"},
		MinChars:          minChars,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSupports(t *testing.T) {
	f := newTestFetcher(t, &stubIndex{}, 10)

	supported := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?feature=share&v=dQw4w9WgXcQ",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
		"https://www.youtube.com/live/dQw4w9WgXcQ",
		"youtu.be/dQw4w9WgXcQ",
	}
	for _, u := range supported {
		assert.True(t, f.Supports(u), u)
	}

	unsupported := []string{
		"https://example.com/video.mp4",
		"https://www.youtube.com/channel/UC123",
		"https://notyoutube.com/watch?v=dQw4w9WgXcQ",
		"https://vimeo.com/12345",
		"",
	}
	for _, u := range unsupported {
		assert.False(t, f.Supports(u), u)
	}
}

func TestSupportsRequiresIndex(t *testing.T) {
	platforms, err := LoadPlatforms("")
	require.NoError(t, err)
	f := NewFetcher(platforms, nil, Options{}, nil)
	assert.False(t, f.Supports("https://youtu.be/dQw4w9WgXcQ"))

	p, ok := f.Platform("https://youtu.be/dQw4w9WgXcQ")
	require.True(t, ok)
	assert.Equal(t, "YouTube Video Transcript", p.Title)
}

func TestFetchUnsupported(t *testing.T) {
	f := newTestFetcher(t, &stubIndex{}, 10)
	_, err := f.Fetch(context.Background(), "https://example.com/a.mp4")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSelectTrackPreference(t *testing.T) {
	manualEN := Track{Language: "en", URL: "manual-en"}
	autoEN := Track{Language: "en", Generated: true, URL: "auto-en"}
	manualGB := Track{Language: "en-GB", URL: "manual-gb"}
	autoUS := Track{Language: "en-US", Generated: true, URL: "auto-us"}
	manualFR := Track{Language: "fr", URL: "manual-fr"}
	accepted := []string{"en", "en-US", "en-GB"}

	testCases := []struct {
		description string
		tracks      []Track
		want        string
		ok          bool
	}{
		{"manual target wins over auto", []Track{autoEN, manualEN}, "manual-en", true},
		{"auto target beats other accepted", []Track{manualGB, autoEN}, "auto-en", true},
		{"accepted order", []Track{manualGB, autoUS}, "auto-us", true},
		{"manual before generated within language", []Track{autoUS, {Language: "en-US", URL: "manual-us"}}, "manual-us", true},
		{"nothing acceptable", []Track{manualFR}, "", false},
		{"no tracks", nil, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			got, ok := SelectTrack(tc.tracks, "en", accepted)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got.URL)
		})
	}
}

func TestFetchJoinsSegments(t *testing.T) {
	idx := &stubIndex{
		tracks: []Track{{Language: "en", URL: "t1"}},
		segments: map[string][]string{
			"t1": {"Hello", "", "  ", " world &amp; <i>friends</i> ", "it&#39;s\nfine"},
		},
	}
	f := newTestFetcher(t, idx, 10)

	got, err := f.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Hello world & friends it's fine", got.Text)
	assert.Equal(t, "youtube", got.Platform)
	assert.Equal(t, "dQw4w9WgXcQ", got.VideoID)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, "YouTube Video Transcript", got.Title)
}

func TestFetchLengthFloor(t *testing.T) {
	testCases := []struct {
		description string
		segments    []string
		wantErr     bool
	}{
		{"exactly at floor", []string{"abcde", "abcd"}, false}, // "abcde abcd" = 10
		{"one below floor", []string{"abcd", "abcd"}, true},    // 9
		{"runes not bytes", []string{"ééééé", "éééé"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			idx := &stubIndex{
				tracks:   []Track{{Language: "en", URL: "t"}},
				segments: map[string][]string{"t": tc.segments},
			}
			_, err := newTestFetcher(t, idx, 10).Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrNoCaptions)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFetchNoAcceptableTrack(t *testing.T) {
	idx := &stubIndex{tracks: []Track{{Language: "de", URL: "de"}}}
	_, err := newTestFetcher(t, idx, 10).Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrNoCaptions)
	assert.Empty(t, idx.fetched)
}

func TestFetchPropagatesNetworkError(t *testing.T) {
	idx := &stubIndex{listErr: &NetworkError{Op: "watch page", Err: errors.New("connection refused")}}
	_, err := newTestFetcher(t, idx, 10).Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestParsePlatformsValidation(t *testing.T) {
	_, err := ParsePlatforms([]byte("platforms:\n  - name: x\n    hosts: [x.com]\n    id_patterns: ['[a-z]+']\n"))
	assert.Error(t, err, "pattern without capture group")

	_, err = ParsePlatforms([]byte("platforms:\n  - name: x\n    hosts: [x.com]\n    id_patterns: ['(']\n"))
	assert.Error(t, err, "bad regexp")

	ps, err := ParsePlatforms([]byte("platforms:\n  - name: vimeo\n    hosts: [vimeo.com]\n    id_patterns: ['vimeo\\.com/(\\d+)']\n"))
	require.NoError(t, err)
	p, id, ok := ps.Match("https://vimeo.com/12345")
	require.True(t, ok)
	assert.Equal(t, "vimeo", p.Name)
	assert.Equal(t, "12345", id)
}

func TestReasonClassifier(t *testing.T) {
	rc := NewReasonClassifier()
	assert.Equal(t, ReasonNoCaptions, rc.Classify("Subtitles are disabled for this video"))
	assert.Equal(t, ReasonNoCaptions, rc.Classify("This video is private"))
	assert.Equal(t, ReasonNoCaptions, rc.Classify("Video unavailable"))
	assert.Equal(t, ReasonNetwork, rc.Classify("Our systems have detected unusual traffic"))
	assert.Equal(t, ReasonNetwork, rc.Classify("Service temporarily unavailable"))
	assert.Equal(t, ReasonUnknown, rc.Classify(""))
	assert.Equal(t, ReasonUnknown, rc.Classify("something odd"))
	assert.Equal(t, ReasonNoCaptions, rc.Classify("This video is age-restricted"))
	assert.Equal(t, ReasonUnknown, rc.Classify("Check the page usage message"))

	rc.AddNetworkKeyword("Quota")
	assert.Equal(t, ReasonNetwork, rc.Classify("quota exceeded"))
}

func TestPlatformClassifierAddsConfiguredReasons(t *testing.T) {
	ps, err := LoadPlatforms("")
	require.NoError(t, err)
	assert.Equal(t, []string{"youtube"}, ps.Names())

	rc := ps.Classifier("youtube")
	assert.Equal(t, ReasonNoCaptions, rc.Classify("Premieres in 3 hours"))
	assert.Equal(t, ReasonNetwork, rc.Classify("Something went wrong. Refresh."))
	assert.Equal(t, ReasonNoCaptions, rc.Classify("Video unavailable"))

	assert.Equal(t, ReasonUnknown, ps.Classifier("vimeo").Classify("Premieres in 3 hours"))
}
