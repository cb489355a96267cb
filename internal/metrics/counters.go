package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Counters tracks process-wide operational counters.
type Counters struct {
	RunsStarted      atomic.Int64
	RunsSucceeded    atomic.Int64
	RunsFailed       atomic.Int64
	RunsTimedOut     atomic.Int64
	CaptionHits      atomic.Int64
	CaptionMisses    atomic.Int64
	StrategyFailures atomic.Int64
	MediaAcquired    atomic.Int64
	DecodesDegraded  atomic.Int64
	DecodesFailed    atomic.Int64
	Deliveries       atomic.Int64
	DeliveryErrors   atomic.Int64
}

var counterKeys = []string{
	"runs_started", "runs_succeeded", "runs_failed", "runs_timed_out",
	"caption_hits", "caption_misses",
	"strategy_failures", "media_acquired",
	"decodes_degraded", "decodes_failed",
	"deliveries", "delivery_errors",
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"runs_started":      c.RunsStarted.Load(),
		"runs_succeeded":    c.RunsSucceeded.Load(),
		"runs_failed":       c.RunsFailed.Load(),
		"runs_timed_out":    c.RunsTimedOut.Load(),
		"caption_hits":      c.CaptionHits.Load(),
		"caption_misses":    c.CaptionMisses.Load(),
		"strategy_failures": c.StrategyFailures.Load(),
		"media_acquired":    c.MediaAcquired.Load(),
		"decodes_degraded":  c.DecodesDegraded.Load(),
		"decodes_failed":    c.DecodesFailed.Load(),
		"deliveries":        c.Deliveries.Load(),
		"delivery_errors":   c.DeliveryErrors.Load(),
	}
}

// Format returns counters as a simple text format for the HTTP endpoint.
func (c *Counters) Format() string {
	m := c.Snapshot()
	var sb strings.Builder
	for _, k := range counterKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}
