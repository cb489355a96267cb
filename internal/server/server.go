package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/amanullahtanweer/video-transcriber/internal/config"
	"github.com/amanullahtanweer/video-transcriber/internal/delivery"
	"github.com/amanullahtanweer/video-transcriber/internal/jobs"
	"github.com/amanullahtanweer/video-transcriber/internal/metrics"
	"github.com/amanullahtanweer/video-transcriber/internal/pipeline"
)

// Runner runs one transcription. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, ref pipeline.Reference) (pipeline.Result, error)
}

type Deps struct {
	Runner   Runner
	Jobs     jobs.Store
	Sender   delivery.Sender
	Counters *metrics.Counters
	Logger   *slog.Logger
}

// Server is the HTTP front door. Each accepted request becomes a background
// run tracked in the job store.
type Server struct {
	config     config.ServerConfig
	deps       Deps
	httpServer *http.Server
	listener   net.Listener

	wg       sync.WaitGroup
	slots    chan struct{}
	runCtx   context.Context
	stopRuns context.CancelFunc

	mu       sync.Mutex
	shutdown bool
}

func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Runner == nil || deps.Jobs == nil || deps.Sender == nil {
		return nil, errors.New("server: runner, job store and sender are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Counters == nil {
		deps.Counters = new(metrics.Counters)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	runCtx, stopRuns := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		deps:     deps,
		slots:    make(chan struct{}, cfg.MaxConcurrent),
		runCtx:   runCtx,
		stopRuns: stopRuns,
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /convert", s.handleConvert)
	mux.HandleFunc("POST /convert-upload", s.handleUpload)
	mux.HandleFunc("GET /jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /test", s.handleTest)
	mux.HandleFunc("GET /{$}", s.handleHome)
	return s.logRequests(mux)
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.deps.Logger.Info("http server listening", "addr", listener.Addr().String(),
		"max_concurrent", s.config.MaxConcurrent)

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops accepting requests and waits for in-flight runs. Runs still
// going when ctx is done are canceled, which still cleans their files up.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.deps.Logger.Warn("shutdown deadline reached, canceling in-flight runs")
		s.stopRuns()
		<-done
	}
	s.stopRuns()
	return err
}

// dispatch starts a background run for job. cleanup, when set, runs after
// the pipeline has finished, success or failure.
func (s *Server) dispatch(job jobs.Job, ref pipeline.Reference, email string, cleanup func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return errors.New("server is shutting down")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if cleanup != nil {
			defer cleanup()
		}
		s.process(job, ref, email)
	}()
	return nil
}

func (s *Server) process(job jobs.Job, ref pipeline.Reference, email string) {
	logger := s.deps.Logger.With("job_id", job.ID)

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-s.runCtx.Done():
		s.updateJob(job.ID, func(j *jobs.Job) {
			j.Status = jobs.StatusFailed
			j.Error = string(pipeline.KindCanceled)
			j.Message = "Transcription was canceled."
		})
		return
	}

	s.updateJob(job.ID, func(j *jobs.Job) { j.Status = jobs.StatusRunning })

	result, err := s.deps.Runner.Run(s.runCtx, ref)
	if err != nil {
		logger.Warn("transcription failed", "error", err)
		s.updateJob(job.ID, func(j *jobs.Job) { applyFailure(j, result, err) })
		return
	}

	doc, sendErr := delivery.Render(result.Title, result.Text)
	if sendErr == nil {
		sendCtx, cancel := context.WithTimeout(s.runCtx, time.Minute)
		defer cancel()
		sendErr = s.deps.Sender.Send(sendCtx, email, doc)
	}
	if sendErr != nil {
		s.deps.Counters.DeliveryErrors.Add(1)
		logger.Error("delivery failed", "error", sendErr)
	} else {
		s.deps.Counters.Deliveries.Add(1)
		logger.Info("transcript delivered", "run_id", result.RunID, "method", result.Method, "bytes", len(doc.Body))
	}

	s.updateJob(job.ID, func(j *jobs.Job) {
		applyResult(j, result)
		j.Delivered = sendErr == nil
		if sendErr != nil {
			j.Status = jobs.StatusFailed
			j.Error = "delivery_failed"
			j.Message = "The transcript was produced but could not be emailed."
		}
	})
}

// updateJob writes job changes even while the server is shutting down.
func (s *Server) updateJob(id string, fn func(*jobs.Job)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Jobs.Update(ctx, id, fn); err != nil {
		s.deps.Logger.Error("failed to update job", "job_id", id, "error", err)
	}
}

func applyResult(j *jobs.Job, r pipeline.Result) {
	j.Status = jobs.StatusSucceeded
	j.RunID = r.RunID
	j.Method = string(r.Method)
	j.Source = string(r.Source)
	j.Title = r.Title
	j.Language = r.Language
	j.Degraded = r.Degraded
	j.Chars = len([]rune(r.Text))
	j.DurationMs = r.DurationMs()
	j.Attempts = attemptsOf(r)
}

func applyFailure(j *jobs.Job, r pipeline.Result, err error) {
	j.Status = jobs.StatusFailed
	j.RunID = r.RunID
	j.DurationMs = r.DurationMs()
	j.Attempts = attemptsOf(r)

	var perr *pipeline.Error
	if errors.As(err, &perr) {
		j.Error = string(perr.Kind)
		j.Message = perr.Message()
		j.Hint = perr.Hint()
		return
	}
	j.Error = "internal"
	j.Message = "Transcription failed."
}

func attemptsOf(r pipeline.Result) []jobs.Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	out := make([]jobs.Attempt, len(r.Attempts))
	for i, a := range r.Attempts {
		out[i] = jobs.Attempt{Strategy: string(a.Strategy), Succeeded: a.Succeeded, Kind: string(a.Kind)}
	}
	return out
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.deps.Logger.Debug("http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
