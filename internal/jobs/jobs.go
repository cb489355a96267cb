// Package jobs tracks the status of asynchronous transcription runs. Records
// expire after a TTL and never hold transcript text.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amanullahtanweer/video-transcriber/internal/config"
)

var ErrNotFound = errors.New("jobs: not found")

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Attempt summarises one acquisition strategy outcome.
type Attempt struct {
	Strategy  string `json:"strategy"`
	Succeeded bool   `json:"succeeded"`
	Kind      string `json:"kind,omitempty"`
}

// Job is the externally visible state of one run.
type Job struct {
	ID         string    `json:"job_id"`
	Status     Status    `json:"status"`
	Input      string    `json:"input"` // "url" or "upload"
	RunID      string    `json:"run_id,omitempty"`
	Method     string    `json:"method,omitempty"`
	Source     string    `json:"source,omitempty"`
	Title      string    `json:"title,omitempty"`
	Language   string    `json:"language,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
	Chars      int       `json:"chars,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Delivered  bool      `json:"delivered"`
	Error      string    `json:"error,omitempty"`
	Message    string    `json:"message,omitempty"`
	Hint       string    `json:"hint,omitempty"`
	Attempts   []Attempt `json:"attempts,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// New returns a queued job with a fresh ID.
func New(input string) Job {
	now := time.Now().UTC()
	return Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store persists jobs for a limited time.
type Store interface {
	Put(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	// Update applies fn to the stored job and saves it.
	Update(ctx context.Context, id string, fn func(*Job)) error
	Close() error
}

// Open returns a Redis store when cfg.RedisURL is set, else a memory store.
func Open(ctx context.Context, cfg config.JobsConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RedisURL == "" {
		logger.Info("jobs: using in-memory store", "ttl", cfg.TTL)
		return NewMemoryStore(cfg.TTL), nil
	}
	s, err := NewRedisStore(ctx, cfg.RedisURL, cfg.KeyPrefix, cfg.TTL)
	if err != nil {
		return nil, err
	}
	logger.Info("jobs: redis connected", "prefix", cfg.KeyPrefix, "ttl", cfg.TTL)
	return s, nil
}
