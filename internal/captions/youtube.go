package captions

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/amanullahtanweer/video-transcriber/internal/retry"
)

// YouTube caption index.
// Primary:  scrape watch page ytInitialPlayerResponse → captionTracks
// Fallback: ANDROID Innertube /player → captionTracks

const (
	youtubeBaseURL   = "https://www.youtube.com"
	ytAndroidVersion = "20.10.38"
	ytAndroidUA      = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"
	userAgentChrome  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
	ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

	maxWatchPageBytes = 6 * 1024 * 1024
	maxTimedTextBytes = 2 * 1024 * 1024
)

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
	Name         struct {
		SimpleText string `json:"simpleText"`
	} `json:"name"`
}

// timedText covers both the legacy <transcript><text> format and srv3
// <timedtext><body><p><s> documents.
type timedText struct {
	Lines []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
	Paragraphs []struct {
		Text  string `xml:",chardata"`
		Spans []struct {
			Text string `xml:",chardata"`
		} `xml:"s"`
	} `xml:"body>p"`
}

// YouTubeIndex lists caption tracks through YouTube's public endpoints.
type YouTubeIndex struct {
	BaseURL    string
	Client     *http.Client
	Retry      retry.Config
	Classifier *ReasonClassifier
	Logger     *slog.Logger
}

// NewYouTubeIndex returns an index against www.youtube.com.
func NewYouTubeIndex(client *http.Client, rc retry.Config, logger *slog.Logger) *YouTubeIndex {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YouTubeIndex{
		BaseURL:    youtubeBaseURL,
		Client:     client,
		Retry:      rc,
		Classifier: NewReasonClassifier(),
		Logger:     logger,
	}
}

// ListTracks returns the usable caption tracks for videoID.
func (y *YouTubeIndex) ListTracks(ctx context.Context, videoID string) ([]Track, error) {
	page, err := y.scrapeWatchPage(ctx, videoID)
	if err == nil && page.Captions != nil {
		return y.tracksFrom(page)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		y.Logger.Warn("youtube: page scrape failed, trying player",
			slog.String("id", videoID), slog.Any("err", err))
	}

	player, perr := y.queryPlayer(ctx, videoID)
	if perr != nil {
		if err == nil {
			// The page answered, it just had no captions.
			return y.tracksFrom(page)
		}
		return nil, perr
	}
	return y.tracksFrom(player)
}

func (y *YouTubeIndex) tracksFrom(resp playerResponse) ([]Track, error) {
	if resp.Captions == nil {
		reason := ""
		if resp.PlayabilityStatus != nil {
			reason = resp.PlayabilityStatus.Reason
		}
		if y.Classifier.Classify(reason) == ReasonNetwork {
			return nil, &NetworkError{Op: "player", Err: errors.New(reason)}
		}
		if reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoCaptions, reason)
		}
		return nil, fmt.Errorf("%w: no captions in player response", ErrNoCaptions)
	}

	var tracks []Track
	for _, t := range resp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks {
		if t.BaseURL == "" || needsPoToken(t.BaseURL) {
			continue
		}
		tracks = append(tracks, Track{
			Language:  t.LanguageCode,
			Name:      t.Name.SimpleText,
			Generated: t.Kind == "asr",
			URL:       t.BaseURL,
		})
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: all caption tracks require a PoToken", ErrNoCaptions)
	}
	return tracks, nil
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

func (y *YouTubeIndex) scrapeWatchPage(ctx context.Context, videoID string) (playerResponse, error) {
	watchURL := y.BaseURL + "/watch?v=" + videoID

	resp, err := retry.HTTP(ctx, y.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgentChrome)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return y.Client.Do(req)
	})
	if err != nil {
		return playerResponse{}, &NetworkError{Op: "watch page", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return playerResponse{}, &NetworkError{Op: "watch page", Err: &retry.StatusError{StatusCode: resp.StatusCode}}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWatchPageBytes))
	if err != nil {
		return playerResponse{}, &NetworkError{Op: "read watch page", Err: err}
	}

	idx := bytes.Index(body, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return playerResponse{}, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return playerResponse{}, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var player playerResponse
	if err := json.Unmarshal(jsonData, &player); err != nil {
		return playerResponse{}, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return player, nil
}

// queryPlayer uses the ANDROID Innertube /player endpoint.
func (y *YouTubeIndex) queryPlayer(ctx context.Context, videoID string) (playerResponse, error) {
	reqBody, err := json.Marshal(innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return playerResponse{}, err
	}

	resp, err := retry.HTTP(ctx, y.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.BaseURL+"/youtubei/v1/player?prettyPrint=false", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		return y.Client.Do(req)
	})
	if err != nil {
		return playerResponse{}, &NetworkError{Op: "android innertube", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return playerResponse{}, &NetworkError{Op: "android innertube", Err: &retry.StatusError{StatusCode: resp.StatusCode}}
	}

	var player playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&player); err != nil {
		return playerResponse{}, &NetworkError{Op: "decode player", Err: err}
	}
	return player, nil
}

// FetchTrack downloads a timedtext document and returns its segments.
func (y *YouTubeIndex) FetchTrack(ctx context.Context, track Track) ([]string, error) {
	resp, err := retry.HTTP(ctx, y.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.URL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgentChrome)
		return y.Client.Do(req)
	})
	if err != nil {
		return nil, &NetworkError{Op: "fetch timedtext", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Op: "fetch timedtext", Err: &retry.StatusError{StatusCode: resp.StatusCode}}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimedTextBytes))
	if err != nil {
		return nil, &NetworkError{Op: "read timedtext", Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty timedtext document", ErrNoCaptions)
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("%w: parse timedtext XML: %v", ErrNoCaptions, err)
	}

	segments := make([]string, 0, len(tt.Lines)+len(tt.Paragraphs))
	for _, line := range tt.Lines {
		segments = append(segments, line.Text)
	}
	for _, p := range tt.Paragraphs {
		var sb strings.Builder
		sb.WriteString(p.Text)
		for _, s := range p.Spans {
			sb.WriteString(s.Text)
		}
		segments = append(segments, sb.String())
	}
	return segments, nil
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
