// Package monitoring tracks event and document failures, analysis cost and
// breaker state, and raises webhook alerts when thresholds are crossed.
package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/sells-group/claims-cli/internal/pipeline"
	"github.com/sells-group/claims-cli/internal/resilience"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	Events       int      `json:"events"`
	EventsFailed int      `json:"events_failed"`
	FailedEvents []string `json:"failed_events,omitempty"`

	Documents        int     `json:"documents"`
	DocumentsFailed  int     `json:"documents_failed"`
	DocumentFailRate float64 `json:"document_fail_rate"`

	Analyses int     `json:"analyses"`
	CostUSD  float64 `json:"cost_usd"`

	OpenBreakers []string `json:"open_breakers,omitempty"`

	Since       time.Time `json:"since"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collector accumulates the outcome of processed events.
type Collector struct {
	breakers *resilience.Breakers

	mu    sync.Mutex
	snap  MetricsSnapshot
	clock func() time.Time
}

// NewCollector creates a Collector. breakers may be nil.
func NewCollector(breakers *resilience.Breakers) *Collector {
	c := &Collector{breakers: breakers, clock: time.Now}
	c.snap.Since = c.clock().UTC()
	return c
}

// Observe records one processed event. rep may be nil when the event failed
// before any sweep ran; eventID names it in that case.
func (c *Collector) Observe(eventID string, rep *pipeline.Report, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.Events++
	if err != nil {
		c.snap.EventsFailed++
		c.snap.FailedEvents = append(c.snap.FailedEvents, eventID)
	}
	if rep == nil {
		return
	}
	for _, st := range rep.Stages {
		if st.Stats == nil {
			continue
		}
		c.snap.Documents += st.Stats.Matched
		c.snap.DocumentsFailed += st.Stats.Failed
	}
	if rep.Analysis != nil {
		c.snap.Analyses++
		c.snap.CostUSD += rep.Analysis.CostUSD
	}
}

// Snapshot returns the accumulated metrics.
func (c *Collector) Snapshot() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Drain returns the accumulated metrics and starts a new window.
func (c *Collector) Drain() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshotLocked()
	c.snap = MetricsSnapshot{Since: snap.CollectedAt}
	return snap
}

func (c *Collector) snapshotLocked() *MetricsSnapshot {
	snap := c.snap
	snap.FailedEvents = append([]string(nil), c.snap.FailedEvents...)
	snap.CollectedAt = c.clock().UTC()
	if snap.Documents > 0 {
		snap.DocumentFailRate = float64(snap.DocumentsFailed) / float64(snap.Documents)
	}
	if c.breakers != nil {
		for name, state := range c.breakers.States() {
			if state == resilience.StateOpen {
				snap.OpenBreakers = append(snap.OpenBreakers, name)
			}
		}
		sort.Strings(snap.OpenBreakers)
	}
	return &snap
}
