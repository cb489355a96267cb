package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/amanullahtanweer/video-transcriber/internal/retry"
)

// DirectStrategy downloads the URL as is. It only succeeds for links that
// already point at a media file.
type DirectStrategy struct {
	client   *http.Client
	maxBytes int64
	retry    retry.Config
	logger   *slog.Logger
}

// NewDirectStrategy returns a plain HTTP strategy.
func NewDirectStrategy(client *http.Client, maxBytes int64, rc retry.Config, logger *slog.Logger) *DirectStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectStrategy{client: client, maxBytes: maxBytes, retry: rc, logger: logger}
}

func (s *DirectStrategy) ID() StrategyID { return StrategyDirect }

func (s *DirectStrategy) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errorf(KindNotMedia, "not an http(s) url: %q", rawURL)
	}

	resp, err := retry.HTTP(ctx, s.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "video/*,audio/*,application/octet-stream;q=0.9,*/*;q=0.5")
		return s.client.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("direct fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("direct fetch: %w", &retry.StatusError{StatusCode: resp.StatusCode})
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		return "", errorf(KindNotMedia, "url serves a web page (%s), not media", mediaType)
	}
	if s.maxBytes > 0 && resp.ContentLength > s.maxBytes {
		return "", errorf(KindNotMedia, "media is %d bytes, limit is %d", resp.ContentLength, s.maxBytes)
	}

	s.logger.Debug("direct download", "content_type", contentType, "content_length", resp.ContentLength)
	return saveBody(resp.Body, filepath.Join(dir, "direct"+mediaExt(u, mediaType)), s.maxBytes)
}

// mediaExt keeps the URL's extension so ffmpeg can use it as a demuxer hint.
func mediaExt(u *url.URL, mediaType string) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) > 1 && len(ext) <= 5 {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ".media"
}
