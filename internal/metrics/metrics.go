package metrics

import (
	"fmt"
	"sync"
	"time"
)

// RunMetrics collects per-run numbers for the end-of-run log line.
type RunMetrics struct {
	RunID            string
	Method           string
	Source           string
	StartTime        time.Time
	EndTime          time.Time
	StrategiesTried  int
	MediaBytes       int64
	AudioDuration    time.Duration
	Utterances       int
	TranscriptLength int
	FirstStageTimes  map[string]time.Duration
	mu               sync.Mutex
}

func NewRunMetrics(runID string) *RunMetrics {
	return &RunMetrics{
		RunID:           runID,
		StartTime:       time.Now(),
		FirstStageTimes: make(map[string]time.Duration),
	}
}

// EnterStage records the offset at which a stage was first entered.
func (m *RunMetrics) EnterStage(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.FirstStageTimes[stage]; !ok {
		m.FirstStageTimes[stage] = time.Since(m.StartTime)
	}
}

func (m *RunMetrics) AddStrategyAttempts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StrategiesTried += n
}

func (m *RunMetrics) SetMediaBytes(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MediaBytes = n
}

func (m *RunMetrics) SetDecoding(audio time.Duration, utterances int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioDuration = audio
	m.Utterances = utterances
}

func (m *RunMetrics) SetTranscript(text, method, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscriptLength = len([]rune(text))
	m.Method = method
	m.Source = source
}

func (m *RunMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

// RealTimeFactor is wall time divided by audio time. It is zero when no
// audio was decoded.
func (m *RunMetrics) RealTimeFactor() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realTimeFactor()
}

func (m *RunMetrics) realTimeFactor() float64 {
	if m.AudioDuration <= 0 || m.EndTime.IsZero() {
		return 0
	}
	return m.EndTime.Sub(m.StartTime).Seconds() / m.AudioDuration.Seconds()
}

// Attrs returns the metrics as slog key/value pairs.
func (m *RunMetrics) Attrs() []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return []any{
		"run_id", m.RunID,
		"method", m.Method,
		"source", m.Source,
		"duration", m.EndTime.Sub(m.StartTime),
		"strategies_tried", m.StrategiesTried,
		"media_bytes", m.MediaBytes,
		"audio_seconds", m.AudioDuration.Seconds(),
		"utterances", m.Utterances,
		"transcript_chars", m.TranscriptLength,
		"rtf", m.realTimeFactor(),
	}
}

func (m *RunMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return fmt.Sprintf(
		"Run: %s\n"+
			"Method: %s\n"+
			"Source: %s\n"+
			"Duration: %v\n"+
			"Strategies Tried: %d\n"+
			"Media Bytes: %d\n"+
			"Audio Duration: %.2f seconds\n"+
			"Utterances: %d\n"+
			"Transcript Length: %d chars\n"+
			"Real-time Factor: %.2fx\n",
		m.RunID,
		m.Method,
		m.Source,
		m.EndTime.Sub(m.StartTime),
		m.StrategiesTried,
		m.MediaBytes,
		m.AudioDuration.Seconds(),
		m.Utterances,
		m.TranscriptLength,
		m.realTimeFactor(),
	)
}
