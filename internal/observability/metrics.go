package observability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Metrics collects pipeline metrics.
type Metrics interface {
	RecordAttempt(ctx context.Context, labels AttemptLabels, latency time.Duration)
	RecordStep(ctx context.Context, labels StepLabels, latency time.Duration)
}

// AttemptLabels contains the dimensions of one provider attempt.
type AttemptLabels struct {
	Provider string
	Model    string
	Outcome  string
}

// StepLabels contains the dimensions of one step execution.
type StepLabels struct {
	Step  string
	State string
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordAttempt(context.Context, AttemptLabels, time.Duration) {}
func (NopMetrics) RecordStep(context.Context, StepLabels, time.Duration)       {}

// Counter is one aggregated series.
type Counter struct {
	Labels       map[string]string `json:"labels"`
	Count        int64             `json:"count"`
	TotalLatency int64             `json:"total_latency_ms"`
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	Attempts []Counter `json:"attempts"`
	Steps    []Counter `json:"steps"`
}

// Collector is an in-process Metrics implementation safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	attempts map[AttemptLabels]*Counter
	steps    map[StepLabels]*Counter
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		attempts: make(map[AttemptLabels]*Counter),
		steps:    make(map[StepLabels]*Counter),
	}
}

// RecordAttempt counts one provider attempt.
func (c *Collector) RecordAttempt(_ context.Context, labels AttemptLabels, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.attempts[labels]
	if !ok {
		counter = &Counter{Labels: map[string]string{
			"provider": labels.Provider,
			"model":    labels.Model,
			"outcome":  labels.Outcome,
		}}
		c.attempts[labels] = counter
	}
	counter.Count++
	counter.TotalLatency += latency.Milliseconds()
}

// RecordStep counts one step execution.
func (c *Collector) RecordStep(_ context.Context, labels StepLabels, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.steps[labels]
	if !ok {
		counter = &Counter{Labels: map[string]string{
			"step":  labels.Step,
			"state": labels.State,
		}}
		c.steps[labels] = counter
	}
	counter.Count++
	counter.TotalLatency += latency.Milliseconds()
}

// Snapshot copies the current counters in a stable order.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Attempts: make([]Counter, 0, len(c.attempts)),
		Steps:    make([]Counter, 0, len(c.steps)),
	}
	for _, counter := range c.attempts {
		snap.Attempts = append(snap.Attempts, copyCounter(counter))
	}
	for _, counter := range c.steps {
		snap.Steps = append(snap.Steps, copyCounter(counter))
	}
	sortCounters(snap.Attempts, "provider", "model", "outcome")
	sortCounters(snap.Steps, "step", "state")
	return snap
}

func copyCounter(c *Counter) Counter {
	labels := make(map[string]string, len(c.Labels))
	for k, v := range c.Labels {
		labels[k] = v
	}
	return Counter{Labels: labels, Count: c.Count, TotalLatency: c.TotalLatency}
}

func sortCounters(counters []Counter, keys ...string) {
	sort.Slice(counters, func(i, j int) bool {
		for _, k := range keys {
			if counters[i].Labels[k] != counters[j].Labels[k] {
				return counters[i].Labels[k] < counters[j].Labels[k]
			}
		}
		return false
	})
}
