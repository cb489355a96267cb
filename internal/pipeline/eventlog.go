package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amanullahtanweer/video-transcriber/internal/acquire"
)

// RunLog writes structured JSONL run events to a file. It never records
// transcript text.
type RunLog struct {
	mu    sync.Mutex
	file  *os.File
	runID string
}

type logRecord struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	RunID     string            `json:"run_id"`
	State     State             `json:"state,omitempty"`
	Strategy  string            `json:"strategy,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewRunLog creates a log under outputDir. Filename is timestamp + run id.
// An empty outputDir disables logging and returns a nil *RunLog, which is
// safe to use.
func NewRunLog(outputDir, runID string, started time.Time) (*RunLog, error) {
	if outputDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	shortID := runID
	if len(runID) > 8 {
		shortID = runID[:8]
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_run_%s.jsonl", started.Format("20060102_150405"), shortID))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &RunLog{file: f, runID: runID}, nil
}

// Path is the log file name, or "" when logging is disabled.
func (l *RunLog) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

func (l *RunLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *RunLog) write(rec logRecord) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	rec.RunID = l.runID
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().Format(time.RFC3339Nano)
	}
	_ = json.NewEncoder(l.file).Encode(rec)
}

func (l *RunLog) LogRunStart(ref Reference, started time.Time) {
	kind := "remote"
	if !ref.IsRemote() {
		kind = "local"
	}
	l.write(logRecord{Timestamp: started.Format(time.RFC3339Nano), Event: "run_start", Details: map[string]string{"reference": kind}})
}

func (l *RunLog) LogState(state State) {
	l.write(logRecord{Event: "state", State: state})
}

func (l *RunLog) LogAttempt(a acquire.Attempt) {
	details := map[string]string{
		"succeeded": fmt.Sprint(a.Succeeded),
		"elapsed":   a.Elapsed.String(),
	}
	if a.Err != nil {
		details["error"] = a.Err.Error()
	}
	l.write(logRecord{Event: "attempt", State: StateMediaAcquisition, Strategy: string(a.Strategy), Kind: string(a.Kind), Details: details})
}

func (l *RunLog) LogCaptionMiss(err error) {
	l.write(logRecord{Event: "caption_miss", State: StateCaptionAttempt, Details: map[string]string{"error": err.Error()}})
}

func (l *RunLog) LogRunEnd(ended time.Time, result Result, runErr *Error) {
	rec := logRecord{Timestamp: ended.Format(time.RFC3339Nano), Event: "run_end", Details: map[string]string{}}
	if runErr != nil {
		rec.State = StateFailed
		rec.Kind = string(runErr.Kind)
		rec.Details["stage"] = string(runErr.Stage)
	} else {
		rec.State = StateDone
		rec.Details["method"] = string(result.Method)
		rec.Details["source"] = string(result.Source)
		rec.Details["chars"] = fmt.Sprint(len([]rune(result.Text)))
		rec.Details["degraded"] = fmt.Sprint(result.Degraded)
	}
	l.write(rec)
}
