package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestRunMetricsSummary(t *testing.T) {
	m := NewRunMetrics("run-1")
	m.EnterStage("caption_attempt")
	m.EnterStage("caption_attempt")
	m.AddStrategyAttempts(2)
	m.SetMediaBytes(4096)
	m.SetDecoding(10*time.Second, 3)
	m.SetTranscript("héllo", "speech_decoding", "proxy_fetch")
	m.Finalize()

	if len(m.FirstStageTimes) != 1 {
		t.Errorf("Expected 1 stage time, got %d", len(m.FirstStageTimes))
	}
	if m.TranscriptLength != 5 {
		t.Errorf("Expected rune length 5, got %d", m.TranscriptLength)
	}
	if m.RealTimeFactor() <= 0 {
		t.Error("Expected positive real-time factor")
	}

	summary := m.Summary()
	for _, want := range []string{"Run: run-1", "Strategies Tried: 2", "Media Bytes: 4096", "Utterances: 3"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary missing %q:\n%s", want, summary)
		}
	}
	if len(m.Attrs())%2 != 0 {
		t.Error("Attrs must be key/value pairs")
	}
}

func TestRunMetricsNoAudio(t *testing.T) {
	m := NewRunMetrics("run-2")
	m.Finalize()
	if rtf := m.RealTimeFactor(); rtf != 0 {
		t.Errorf("Expected 0 real-time factor without audio, got %v", rtf)
	}
}

func TestCountersFormat(t *testing.T) {
	var c Counters
	c.RunsStarted.Add(2)
	c.CaptionHits.Add(1)

	out := c.Format()
	if !strings.Contains(out, "runs_started 2\n") {
		t.Errorf("Missing runs_started line:\n%s", out)
	}
	if !strings.Contains(out, "caption_hits 1\n") {
		t.Errorf("Missing caption_hits line:\n%s", out)
	}
	if got := strings.Count(out, "\n"); got != len(counterKeys) {
		t.Errorf("Expected %d lines, got %d", len(counterKeys), got)
	}
}
