// Package stats accumulates per-model and per-tier usage counters for the
// lifetime of a run. Events are funneled through a single aggregator
// goroutine so workers never contend on counters in the hot path.
package stats

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// CallRecord is one append-only model-call event.
type CallRecord struct {
	RecordID string
	Model    string
	Tier     string
	Success  bool
	ErrKind  string
	Duration time.Duration
}

// ModelStats accumulates per-model counters.
type ModelStats struct {
	Calls     int64
	Successes int64
	Failures  int64
}

// TierStats accumulates per-tier counters.
type TierStats struct {
	TotalCalls       int64
	TotalDuration    time.Duration
	FallbackEpisodes int64
}

type event struct {
	call        *CallRecord
	episodeTier string
}

// Collector aggregates call events. Create with NewCollector, feed from any
// number of goroutines, Close exactly once before reading the report.
type Collector struct {
	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	perModel   map[string]*ModelStats
	modelOrder []string
	perTier    map[string]*TierStats
	tierOrder  []string
}

// NewCollector starts the aggregator.
func NewCollector() *Collector {
	c := &Collector{
		events:   make(chan event, 256),
		done:     make(chan struct{}),
		perModel: make(map[string]*ModelStats),
		perTier:  make(map[string]*TierStats),
	}
	go c.loop()
	return c
}

// RecordCall records one model call.
func (c *Collector) RecordCall(r CallRecord) {
	c.events <- event{call: &r}
}

// RecordFallback records one fallback episode for a tier: the moment a
// member left rotation (queued for cooldown or marked quota-exhausted). An
// episode spans until the member returns to rotation; failed probes of an
// already-cooling model extend the episode rather than starting a new one.
func (c *Collector) RecordFallback(tier string) {
	c.events <- event{episodeTier: tier}
}

func (c *Collector) loop() {
	defer close(c.done)
	for ev := range c.events {
		if ev.episodeTier != "" {
			c.tier(ev.episodeTier).FallbackEpisodes++
			continue
		}
		r := ev.call

		ms, ok := c.perModel[r.Model]
		if !ok {
			ms = &ModelStats{}
			c.perModel[r.Model] = ms
			c.modelOrder = append(c.modelOrder, r.Model)
		}
		ms.Calls++
		if r.Success {
			ms.Successes++
		} else {
			ms.Failures++
		}

		ts := c.tier(r.Tier)
		ts.TotalCalls++
		ts.TotalDuration += r.Duration
	}
}

func (c *Collector) tier(name string) *TierStats {
	ts, ok := c.perTier[name]
	if !ok {
		ts = &TierStats{}
		c.perTier[name] = ts
		c.tierOrder = append(c.tierOrder, name)
	}
	return ts
}

// Close drains the event queue and stops the aggregator. The collector is
// read-only afterwards. Safe to call more than once.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.events)
		<-c.done
	})
}

// Model returns the accumulated counters for one model. Only valid after
// Close.
func (c *Collector) Model(key string) ModelStats {
	if ms, ok := c.perModel[key]; ok {
		return *ms
	}
	return ModelStats{}
}

// TierSnapshot returns the accumulated counters for one tier. Only valid
// after Close.
func (c *Collector) TierSnapshot(name string) TierStats {
	if ts, ok := c.perTier[name]; ok {
		return *ts
	}
	return TierStats{}
}

// Report renders the end-of-run usage summary. Only valid after Close.
func (c *Collector) Report() string {
	var b strings.Builder

	b.WriteString("=== usage statistics ===\n")
	b.WriteString("per model:\n")
	if len(c.modelOrder) == 0 {
		b.WriteString("  (no calls made)\n")
	}
	for _, key := range c.modelOrder {
		ms := c.perModel[key]
		fmt.Fprintf(&b, "  %-40s calls=%-5d ok=%-5d failed=%d\n", key, ms.Calls, ms.Successes, ms.Failures)
	}

	b.WriteString("per tier:\n")
	for _, name := range c.tierOrder {
		ts := c.perTier[name]
		fmt.Fprintf(&b, "  %-20s calls=%-5d total=%-12s fallbacks=%d\n",
			name, ts.TotalCalls, ts.TotalDuration.Round(time.Millisecond), ts.FallbackEpisodes)
	}

	return b.String()
}
