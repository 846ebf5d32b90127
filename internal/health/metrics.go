// Package health tracks rolling request outcomes and derives a single
// 0-100 health score for operational decisions.
package health

import (
	"sync"
	"time"
)

const (
	// failureWindowSize bounds the rolling failure-rate window; the oldest
	// entry is evicted once the window is full.
	failureWindowSize = 100

	degradationFailureRate = 0.3
	degradationTripCount   = 2
	degradationMemoryMB    = 500.0
	degradationDiskPercent = 90.0
)

// Metrics accumulates request outcomes for one fetcher. All methods are safe
// for concurrent use.
type Metrics struct {
	mu sync.Mutex

	totalRequests       int64
	successfulRequests  int64
	failedRequests      int64
	circuitBreakerTrips int64
	networkErrors       int64
	validationErrors    int64

	avgResponseTime time.Duration
	timedSamples    int64

	// failureWindow holds the outcome of the most recent requests, true
	// meaning failure.
	failureWindow []bool

	// Resource pressure inputs. The metrics object does not measure these
	// itself; a Sampler (or the host process) populates them.
	memoryUsageMB   float64
	diskUsedPercent float64
}

// NewMetrics returns an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		failureWindow: make([]bool, 0, failureWindowSize),
	}
}

// RecordRequest records one completed request. responseTime contributes to
// the running average only when positive.
func (m *Metrics) RecordRequest(success bool, responseTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}

	if responseTime > 0 {
		m.timedSamples++
		m.avgResponseTime += (responseTime - m.avgResponseTime) / time.Duration(m.timedSamples)
	}

	if len(m.failureWindow) >= failureWindowSize {
		m.failureWindow = m.failureWindow[1:]
	}
	m.failureWindow = append(m.failureWindow, !success)
}

// RecordBreakerTrip counts a circuit breaker trip. Implements
// resilience.TripRecorder.
func (m *Metrics) RecordBreakerTrip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitBreakerTrips++
}

// RecordNetworkError counts a transport-level failure.
func (m *Metrics) RecordNetworkError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkErrors++
}

// RecordValidationError counts a content-validation rejection.
func (m *Metrics) RecordValidationError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validationErrors++
}

// SetResourceUsage updates the externally sampled memory and disk pressure
// inputs consulted by ShouldTriggerDegradation.
func (m *Metrics) SetResourceUsage(memoryMB, diskUsedPercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memoryUsageMB = memoryMB
	m.diskUsedPercent = diskUsedPercent
}

// FailureRate returns the fraction of failures in the rolling window, 0.0
// when the window is empty.
func (m *Metrics) FailureRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failureRateLocked()
}

func (m *Metrics) failureRateLocked() float64 {
	if len(m.failureWindow) == 0 {
		return 0.0
	}
	failures := 0
	for _, failed := range m.failureWindow {
		if failed {
			failures++
		}
	}
	return float64(failures) / float64(len(m.failureWindow))
}

// HealthScore summarizes recent behavior as a number in [0, 100]. A fresh
// instance scores 100.
func (m *Metrics) HealthScore() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalRequests == 0 {
		return 100.0
	}
	successRate := float64(m.successfulRequests) / float64(m.totalRequests)
	penalty := float64(m.circuitBreakerTrips)*5 + m.failureRateLocked()*20
	if penalty > 50 {
		penalty = 50
	}
	score := successRate*100 - penalty
	if score < 0 {
		return 0.0
	}
	return score
}

// ShouldTriggerDegradation reports whether the host should shed work: the
// rolling failure rate, breaker trips, or sampled resource pressure have
// crossed their fixed thresholds.
func (m *Metrics) ShouldTriggerDegradation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failureRateLocked() > degradationFailureRate {
		return true
	}
	if m.circuitBreakerTrips > degradationTripCount {
		return true
	}
	if m.memoryUsageMB > degradationMemoryMB {
		return true
	}
	return m.diskUsedPercent > degradationDiskPercent
}

// Snapshot is a point-in-time copy of the counters, used by the status API.
type Snapshot struct {
	TotalRequests       int64         `json:"total_requests"`
	SuccessfulRequests  int64         `json:"successful_requests"`
	FailedRequests      int64         `json:"failed_requests"`
	CircuitBreakerTrips int64         `json:"circuit_breaker_trips"`
	NetworkErrors       int64         `json:"network_errors"`
	ValidationErrors    int64         `json:"validation_errors"`
	AvgResponseTime     time.Duration `json:"avg_response_time_ns"`
	FailureRate         float64       `json:"failure_rate"`
	HealthScore         float64       `json:"health_score"`
	Degraded            bool          `json:"degraded"`
}

// Snapshot returns a consistent copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	score := m.HealthScore()
	degraded := m.ShouldTriggerDegradation()

	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		TotalRequests:       m.totalRequests,
		SuccessfulRequests:  m.successfulRequests,
		FailedRequests:      m.failedRequests,
		CircuitBreakerTrips: m.circuitBreakerTrips,
		NetworkErrors:       m.networkErrors,
		ValidationErrors:    m.validationErrors,
		AvgResponseTime:     m.avgResponseTime,
		FailureRate:         m.failureRateLocked(),
		HealthScore:         score,
		Degraded:            degraded,
	}
}

// TotalRequests returns the monotonically increasing request count.
func (m *Metrics) TotalRequests() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalRequests
}

// SuccessfulRequests returns the success count.
func (m *Metrics) SuccessfulRequests() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successfulRequests
}

// NetworkErrors returns the transport error count.
func (m *Metrics) NetworkErrors() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkErrors
}

// ValidationErrors returns the content validation failure count.
func (m *Metrics) ValidationErrors() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validationErrors
}
