package deployment

import (
	"sync"
	"time"
)

// healthWindow tracks per-version request/error counters (cumulative for
// the version's lifetime), a bounded ring of recent latencies for the p99
// estimate, and how long the version has been in continuous breach of its
// thresholds (for sustain-window auto-rollback evaluation).
//
// A single mutex guards it, sized for moderate per-request contention
// rather than a lock-free hot path — health sampling is a cold-path concern.
type healthWindow struct {
	mu sync.Mutex

	requests int64
	errors   int64

	latencies []time.Duration // ring of recent latencies for p99 estimation
	cap       int

	breachSince time.Time // zero value means "not currently breaching"
}

const defaultLatencyRingSize = 512

func newHealthWindow() *healthWindow {
	return &healthWindow{cap: defaultLatencyRingSize}
}

// Record adds one observed request outcome to the window.
func (h *healthWindow) Record(latency time.Duration, failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.requests++
	if failed {
		h.errors++
	}
	h.latencies = append(h.latencies, latency)
	if len(h.latencies) > h.cap {
		h.latencies = h.latencies[len(h.latencies)-h.cap:]
	}
}

// Snapshot computes current HealthMetrics from the window.
func (h *healthWindow) Snapshot() HealthMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *healthWindow) snapshotLocked() HealthMetrics {
	m := HealthMetrics{Requests: h.requests, Errors: h.errors}
	if h.requests > 0 {
		m.ErrorRate = float64(h.errors) / float64(h.requests)
		m.SuccessRate = 1 - m.ErrorRate
	} else {
		m.SuccessRate = 1
	}
	m.P99Latency = p99(h.latencies)
	return m
}

// CheckBreach evaluates the window's current metrics against thresholds and
// tracks how long a breach has been continuously observed. It returns true
// once the breach has persisted for at least thresholds.SustainWindow.
func (h *healthWindow) CheckBreach(thresholds HealthThresholds, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := h.snapshotLocked()
	breaching := m.ErrorRate > thresholds.MaxErrorRate ||
		m.P99Latency > thresholds.MaxP99Latency ||
		m.SuccessRate < thresholds.MinSuccessRate

	if !breaching {
		h.breachSince = time.Time{}
		return false
	}
	if h.breachSince.IsZero() {
		h.breachSince = now
	}
	return now.Sub(h.breachSince) >= thresholds.SustainWindow
}

// p99 returns the 99th percentile of observed latencies via a simple
// sort-and-index estimate; adequate for the window sizes this tracker
// carries.
func p99(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	idx := (len(sorted) * 99) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
