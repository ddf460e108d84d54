package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	instructionsProcessed atomic.Uint64
	instructionsRejected  atomic.Uint64
	settlements           atomic.Uint64
	rateLimited           atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	subscribers atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordInstruction records one executed instruction with latency.
// It satisfies engine.Recorder.
func (m *Metrics) RecordInstruction(typ string, ok bool, latency time.Duration) {
	m.instructionsProcessed.Add(1)
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)

	if !ok {
		m.instructionsRejected.Add(1)
		return
	}
	if typ == "BuyNft" || typ == "SettleAuction" {
		m.settlements.Add(1)
	}
}

// RecordRateLimited records a request refused by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Add(1)
}

// IncrementSubscribers increments stream subscribers by 1.
func (m *Metrics) IncrementSubscribers() {
	m.subscribers.Add(1)
}

// DecrementSubscribers decrements stream subscribers by 1.
func (m *Metrics) DecrementSubscribers() {
	m.subscribers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	InstructionsProcessed uint64    `json:"instructions_processed"`
	InstructionsRejected  uint64    `json:"instructions_rejected"`
	Settlements           uint64    `json:"settlements"`
	RateLimited           uint64    `json:"rate_limited"`
	AvgLatencyNs          int64     `json:"avg_latency_ns"`
	Subscribers           int32     `json:"subscribers"`
	Timestamp             time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		InstructionsProcessed: m.instructionsProcessed.Load(),
		InstructionsRejected:  m.instructionsRejected.Load(),
		Settlements:           m.settlements.Load(),
		RateLimited:           m.rateLimited.Load(),
		AvgLatencyNs:          avgLatency,
		Subscribers:           m.subscribers.Load(),
		Timestamp:             time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.instructionsProcessed.Store(0)
	m.instructionsRejected.Store(0)
	m.settlements.Store(0)
	m.rateLimited.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.subscribers.Store(0)
}
