package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/amanullahtanweer/video-transcriber/internal/retry"
)

// Converter service schemas. Only the fields the handshake uses are decoded.

type analyzeRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type analyzeResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Title  string `json:"title"`
	Token  string `json:"token"`
	Error  string `json:"error"`
}

type convertRequest struct {
	ID     string `json:"id"`
	Token  string `json:"token,omitempty"`
	Format string `json:"format"`
}

type convertStatus struct {
	Status      string `json:"status"`
	JobID       string `json:"job_id"`
	DownloadURL string `json:"download_url"`
	Progress    int    `json:"progress"`
	Error       string `json:"error"`
}

const (
	statusError = "error"
	statusDone  = "done"
)

// ProxyOptions configures the converter service strategy.
type ProxyOptions struct {
	BaseURL      string
	APIKey       string
	Format       string
	PollInterval time.Duration
	MaxPolls     int
	MaxBytes     int64
	Retry        retry.Config
}

// ProxyStrategy asks a remote converter service to fetch and transcode the
// video, then downloads the result.
type ProxyStrategy struct {
	opts   ProxyOptions
	client *http.Client
	media  *http.Client
	logger *slog.Logger
}

// NewProxyStrategy returns a converter strategy. client serves the API calls
// and media the final download. An empty BaseURL is allowed and fails every
// fetch as KindToolMissing.
func NewProxyStrategy(opts ProxyOptions, client, media *http.Client, logger *slog.Logger) *ProxyStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	if media == nil {
		media = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Format == "" {
		opts.Format = "mp3"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 30
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &ProxyStrategy{opts: opts, client: client, media: media, logger: logger}
}

func (s *ProxyStrategy) ID() StrategyID { return StrategyProxy }

// Fetch runs analyze → convert → poll → download.
func (s *ProxyStrategy) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	if s.opts.BaseURL == "" {
		return "", errorf(KindToolMissing, "proxy service not configured")
	}

	var analyzed analyzeResponse
	if err := s.call(ctx, http.MethodPost, "/api/analyze", analyzeRequest{URL: rawURL, Format: s.opts.Format}, &analyzed); err != nil {
		return "", err
	}
	if analyzed.Status == statusError {
		return "", fmt.Errorf("proxy analyze: %s", analyzed.Error)
	}
	if analyzed.ID == "" {
		return "", errorf(KindMalformedResponse, "analyze response missing id")
	}

	var job convertStatus
	if err := s.call(ctx, http.MethodPost, "/api/convert", convertRequest{ID: analyzed.ID, Token: analyzed.Token, Format: s.opts.Format}, &job); err != nil {
		return "", err
	}
	if job.Status == statusError {
		return "", fmt.Errorf("proxy convert: %s", job.Error)
	}
	if job.JobID == "" && job.DownloadURL == "" {
		return "", errorf(KindMalformedResponse, "convert response missing job_id")
	}

	downloadURL, err := s.poll(ctx, job)
	if err != nil {
		return "", err
	}
	return s.download(ctx, downloadURL, dir)
}

// poll waits for the conversion job, paced by a limiter so a slow service is
// not hammered.
func (s *ProxyStrategy) poll(ctx context.Context, job convertStatus) (string, error) {
	limiter := rate.NewLimiter(rate.Every(s.opts.PollInterval), 1)
	status := job

	for polls := 0; ; polls++ {
		switch {
		case status.Status == statusError:
			return "", fmt.Errorf("proxy conversion failed: %s", status.Error)
		case status.DownloadURL != "":
			return status.DownloadURL, nil
		case status.Status == statusDone:
			return "", errorf(KindMalformedResponse, "conversion done without download_url")
		case polls >= s.opts.MaxPolls:
			return "", errorf(KindTimeout, "conversion not ready after %d polls", polls)
		}

		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}

		var next convertStatus
		if err := s.call(ctx, http.MethodGet, "/api/convert/"+url.PathEscape(job.JobID), nil, &next); err != nil {
			return "", err
		}
		s.logger.Debug("proxy poll", "job_id", job.JobID, "status", next.Status, "progress", next.Progress)
		status = next
	}
}

func (s *ProxyStrategy) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	resp, err := retry.HTTP(ctx, s.opts.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, s.opts.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
		}
		return s.client.Do(req)
	})
	if err != nil {
		return fmt.Errorf("proxy %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy %s: %w", path, &retry.StatusError{StatusCode: resp.StatusCode})
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return wrap(KindMalformedResponse, err, "proxy %s: undecodable response", path)
	}
	return nil
}

func (s *ProxyStrategy) download(ctx context.Context, downloadURL, dir string) (string, error) {
	u, err := url.Parse(downloadURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", errorf(KindMalformedResponse, "bad download_url %q", downloadURL)
	}

	resp, err := retry.HTTP(ctx, s.opts.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
		if err != nil {
			return nil, err
		}
		return s.media.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("proxy download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy download: %w", &retry.StatusError{StatusCode: resp.StatusCode})
	}

	return saveBody(resp.Body, filepath.Join(dir, "proxy."+s.opts.Format), s.opts.MaxBytes)
}

// saveBody streams body to path. The path is returned even on failure so the
// partial file can be removed.
func saveBody(body io.Reader, path string, maxBytes int64) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	src := body
	if maxBytes > 0 {
		src = io.LimitReader(body, maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return path, fmt.Errorf("write media: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return path, errorf(KindNotMedia, "media exceeds %d bytes", maxBytes)
	}
	return path, nil
}
