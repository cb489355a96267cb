package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanullahtanweer/video-transcriber/internal/command"
	"github.com/amanullahtanweer/video-transcriber/internal/config"
	"github.com/amanullahtanweer/video-transcriber/internal/retry"
)

var fastRetry = retry.Config{MaxRetries: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

type fakeRunner struct {
	args   []string
	result command.Result
	err    error
	write  string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	f.args = args
	if f.write != "" {
		_ = os.WriteFile(f.write, make([]byte, 2048), 0o644)
	}
	return f.result, f.err
}

func TestExtractorStrategyArgsAndPath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "extracted.webm")
	runner := &fakeRunner{write: out, result: command.Result{Stdout: "\n" + out + "\n"}}

	path, err := NewExtractorStrategy("yt-dlp", "", 3, runner).Fetch(context.Background(), "https://youtu.be/abc", dir)
	require.NoError(t, err)
	assert.Equal(t, out, path)

	joined := strings.Join(runner.args, " ")
	assert.Contains(t, joined, "-f bestaudio/best")
	assert.Contains(t, joined, "--no-playlist")
	assert.Contains(t, joined, "--retries 3")
	assert.Contains(t, joined, "--print after_move:filepath")
	assert.Equal(t, "https://youtu.be/abc", runner.args[len(runner.args)-1])
}

func TestExtractorStrategyFailure(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{
		write:  filepath.Join(dir, "extracted.webm.part"),
		result: command.Result{ExitCode: 1, Stderr: "WARNING: x\nERROR: [youtube] abc: Video unavailable\n"},
		err:    errors.New("exit status 1"),
	}

	path, err := NewExtractorStrategy("yt-dlp", "", 1, runner).Fetch(context.Background(), "https://youtu.be/abc", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Video unavailable")
	assert.Equal(t, filepath.Join(dir, "extracted.webm.part"), path, "partial file is reported")
	assert.Equal(t, KindRestricted, testClassifier(t).Classify(err))
}

func TestExtractorStrategyToolMissing(t *testing.T) {
	runner := &fakeRunner{err: &os.PathError{Op: "exec", Path: "yt-dlp", Err: command.ErrNotFound}}
	_, err := NewExtractorStrategy("yt-dlp", "", 1, runner).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir())
	assert.Equal(t, KindToolMissing, testClassifier(t).Classify(err))
}

// converterServer emulates the proxy handshake. The job becomes ready after
// readyAfter polls.
func converterServer(t *testing.T, readyAfter int32, media []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req analyzeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://youtu.be/abc", req.URL)
		fmt.Fprint(w, `{"status":"ok","id":"vid-1","token":"tok"}`)
	})
	mux.HandleFunc("/api/convert", func(w http.ResponseWriter, r *http.Request) {
		var req convertRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "vid-1", req.ID)
		assert.Equal(t, "tok", req.Token)
		fmt.Fprint(w, `{"status":"processing","job_id":"job-9"}`)
	})
	mux.HandleFunc("/api/convert/job-9", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < readyAfter {
			fmt.Fprint(w, `{"status":"processing","progress":50}`)
			return
		}
		fmt.Fprintf(w, `{"status":"done","download_url":"%s/files/job-9.mp3"}`, srv.URL)
	})
	mux.HandleFunc("/files/job-9.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(media)
	})
	srv = httptest.NewServer(mux)
	return srv, &polls
}

func newTestProxy(srv *httptest.Server) *ProxyStrategy {
	return NewProxyStrategy(ProxyOptions{
		BaseURL:      srv.URL,
		APIKey:       "secret",
		PollInterval: time.Millisecond,
		MaxPolls:     5,
		Retry:        fastRetry,
	}, srv.Client(), srv.Client(), quietLogger())
}

func TestProxyStrategyHandshake(t *testing.T) {
	media := make([]byte, 3000)
	srv, polls := converterServer(t, 2, media)
	defer srv.Close()

	dir := t.TempDir()
	path, err := newTestProxy(srv).Fetch(context.Background(), "https://youtu.be/abc", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "proxy.mp3"), path)
	assert.Equal(t, int32(2), polls.Load())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), info.Size())
}

func TestProxyStrategyNeverReady(t *testing.T) {
	srv, _ := converterServer(t, 1000, nil)
	defer srv.Close()

	_, err := newTestProxy(srv).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir())
	assert.Equal(t, KindTimeout, testClassifier(t).Classify(err))
}

func TestProxyStrategyMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	_, err := newTestProxy(srv).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir())
	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, KindMalformedResponse, acqErr.Kind)
}

func TestProxyStrategyServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","error":"This is a private video"}`)
	}))
	defer srv.Close()

	_, err := newTestProxy(srv).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir())
	assert.Equal(t, KindRestricted, testClassifier(t).Classify(err))
}

func TestProxyStrategyUnconfigured(t *testing.T) {
	_, err := NewProxyStrategy(ProxyOptions{}, nil, nil, quietLogger()).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir())
	assert.Equal(t, KindToolMissing, testClassifier(t).Classify(err))
}

func TestDirectStrategy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(make([]byte, 5000))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html></html>")
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(make([]byte, 20000))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewDirectStrategy(srv.Client(), 10000, fastRetry, quietLogger())
	c := testClassifier(t)

	dir := t.TempDir()
	path, err := s.Fetch(context.Background(), srv.URL+"/clip.mp4", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "direct.mp4"), path)

	_, err = s.Fetch(context.Background(), srv.URL+"/page", t.TempDir())
	assert.Equal(t, KindNotMedia, c.Classify(err))

	path, err = s.Fetch(context.Background(), srv.URL+"/big", t.TempDir())
	assert.Equal(t, KindNotMedia, c.Classify(err))
	assert.NotEmpty(t, path)

	_, err = s.Fetch(context.Background(), srv.URL+"/gone", t.TempDir())
	assert.Equal(t, KindNotMedia, c.Classify(err))

	_, err = s.Fetch(context.Background(), "ftp://example.com/a.mp4", t.TempDir())
	assert.Equal(t, KindNotMedia, c.Classify(err))
}

func TestBuildStrategiesFollowsOrder(t *testing.T) {
	cfg := config.Default().Acquire
	strategies, err := BuildStrategies([]string{"direct", "extractor"}, cfg, nil, nil, nil, quietLogger())
	require.NoError(t, err)
	require.Len(t, strategies, 2)
	assert.Equal(t, StrategyDirect, strategies[0].ID())
	assert.Equal(t, StrategyExtractor, strategies[1].ID())

	_, err = BuildStrategies([]string{"torrent"}, cfg, nil, nil, nil, quietLogger())
	assert.Error(t, err)
}

func TestMediaClientAllowsSlowBodies(t *testing.T) {
	const chunks = 6
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		flusher := w.(http.Flusher)
		for i := 0; i < chunks; i++ {
			w.Write(make([]byte, 4096))
			flusher.Flush()
			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer srv.Close()

	// The body takes twice the header timeout to arrive.
	s := NewDirectStrategy(NewMediaClient(300*time.Millisecond), 0, fastRetry, quietLogger())
	path, err := s.Fetch(context.Background(), srv.URL+"/slow.mp4", t.TempDir())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, chunks*4096, info.Size())
}

func TestMediaClientBoundsHeaderWait(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s := NewDirectStrategy(NewMediaClient(100*time.Millisecond), 0, retry.Config{}, quietLogger())
	start := time.Now()
	_, err := s.Fetch(context.Background(), srv.URL+"/stuck.mp4", t.TempDir())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
