package chainrpc

import (
	"math"
	"strings"
	"sync"
	"time"
)

// Stats tracks client-local RPC operation statistics. It is intentionally
// self-contained (no Prometheus dependency) so this package stays usable
// outside of the scheduler binary. Callers read it through Snapshot();
// libs/metrics does not read it.
type Stats struct {
	mu sync.RWMutex

	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64

	TotalLatency time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration

	ConnectionErrors int64
	TimeoutErrors    int64
	RejectionErrors  int64
	OtherErrors      int64

	CircuitBreakerTrips int64

	LastOperation       string
	LastOperationStatus string
	LastOperationAt     time.Time
}

// NewStats returns a zeroed Stats ready to record operations.
func NewStats() *Stats {
	return &Stats{MinLatency: time.Duration(math.MaxInt64)}
}

// RecordRequest records one RPC round trip's outcome and latency.
func (s *Stats) RecordRequest(operation string, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalRequests++
	s.LastOperation = operation
	s.LastOperationAt = time.Now()

	s.TotalLatency += duration
	if duration < s.MinLatency {
		s.MinLatency = duration
	}
	if duration > s.MaxLatency {
		s.MaxLatency = duration
	}

	if err == nil {
		s.SuccessfulRequests++
		s.LastOperationStatus = "success"
		return
	}

	s.FailedRequests++
	s.LastOperationStatus = "failed"

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection"), strings.Contains(msg, "dial"):
		s.ConnectionErrors++
	case strings.Contains(msg, "timeout"):
		s.TimeoutErrors++
	case strings.Contains(msg, "custom program error"), strings.Contains(msg, "invalid"):
		s.RejectionErrors++
	default:
		s.OtherErrors++
	}
}

// RecordCircuitBreakerTrip increments the trip counter.
func (s *Stats) RecordCircuitBreakerTrip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CircuitBreakerTrips++
}

// Snapshot is a point-in-time copy of Stats safe to read without holding the
// live lock, for scraping into Prometheus gauges.
type Snapshot struct {
	TotalRequests, SuccessfulRequests, FailedRequests int64
	AvgLatencyMs, MinLatencyMs, MaxLatencyMs           int64
	ConnectionErrors, TimeoutErrors, RejectionErrors, OtherErrors int64
	CircuitBreakerTrips                                int64
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avg time.Duration
	if s.TotalRequests > 0 {
		avg = s.TotalLatency / time.Duration(s.TotalRequests)
	}
	minLatency := s.MinLatency
	if s.TotalRequests == 0 {
		minLatency = 0
	}

	return Snapshot{
		TotalRequests:       s.TotalRequests,
		SuccessfulRequests:  s.SuccessfulRequests,
		FailedRequests:      s.FailedRequests,
		AvgLatencyMs:        avg.Milliseconds(),
		MinLatencyMs:        minLatency.Milliseconds(),
		MaxLatencyMs:        s.MaxLatency.Milliseconds(),
		ConnectionErrors:    s.ConnectionErrors,
		TimeoutErrors:       s.TimeoutErrors,
		RejectionErrors:     s.RejectionErrors,
		OtherErrors:         s.OtherErrors,
		CircuitBreakerTrips: s.CircuitBreakerTrips,
	}
}
