package monitoring

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxResponseSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount     int64
	ErrorCount       int64
	AnalysisCount    int64
	AnalysisFailures int64
	GitHubAPICalls   int64
	LLMAPICalls      int64
	StartTime        time.Time

	scoreSumBits uint64

	responseTimes []time.Duration
	responseMu    sync.RWMutex

	requestCountByStatus map[int]int64
	statusMu             sync.RWMutex

	CircuitBreakerOpens  int64
	CircuitBreakerCloses int64

	externalAPIRequests map[string]int64
	externalAPIErrors   map[string]int64
	externalAPILatency  map[string]time.Duration
	externalMu          sync.RWMutex

	RateLimitBlocks      int64
	RateLimitRedisErrors int64
	RateLimitFallbacks   int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		responseTimes:        make([]time.Duration, 0, maxResponseSamples),
		requestCountByStatus: make(map[int]int64),
		externalAPIRequests:  make(map[string]int64),
		externalAPIErrors:    make(map[string]int64),
		externalAPILatency:   make(map[string]time.Duration),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// RecordAnalysis records the outcome of one analysis pipeline run
func (m *Metrics) RecordAnalysis(score float64, success bool) {
	if !success {
		atomic.AddInt64(&m.AnalysisFailures, 1)
		return
	}

	atomic.AddInt64(&m.AnalysisCount, 1)
	for {
		old := atomic.LoadUint64(&m.scoreSumBits)
		sum := math.Float64frombits(old) + score
		if atomic.CompareAndSwapUint64(&m.scoreSumBits, old, math.Float64bits(sum)) {
			return
		}
	}
}

// RecordResponseTime keeps the most recent samples for percentile queries
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.responseMu.Lock()
	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > maxResponseSamples {
		m.responseTimes = m.responseTimes[1:]
	}
	m.responseMu.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.requestCountByStatus[statusCode]++
}

// RecordCircuitTransition counts breaker openings and closings
func (m *Metrics) RecordCircuitTransition(open bool) {
	if open {
		atomic.AddInt64(&m.CircuitBreakerOpens, 1)
		return
	}
	atomic.AddInt64(&m.CircuitBreakerCloses, 1)
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool, latency time.Duration) {
	switch apiName {
	case "github":
		atomic.AddInt64(&m.GitHubAPICalls, 1)
	case "groq":
		atomic.AddInt64(&m.LLMAPICalls, 1)
	}

	m.externalMu.Lock()
	defer m.externalMu.Unlock()

	m.externalAPIRequests[apiName]++
	m.externalAPILatency[apiName] += latency
	if !success {
		m.externalAPIErrors[apiName]++
	}
}

// IncrementRateLimitBlock counts requests rejected by the limiter
func (m *Metrics) IncrementRateLimitBlock() {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
}

// IncrementRateLimitRedisError counts Redis failures seen by the limiter
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback counts decisions taken by the in-memory limiter
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbacks, 1)
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.responseMu.RLock()
	times := make([]time.Duration, len(m.responseTimes))
	copy(times, m.responseTimes)
	m.responseMu.RUnlock()

	if len(times) == 0 {
		return 0
	}

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()

	distribution := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetExternalAPIStats returns per-upstream request, error and latency figures
func (m *Metrics) GetExternalAPIStats() map[string]interface{} {
	m.externalMu.RLock()
	defer m.externalMu.RUnlock()

	stats := make(map[string]interface{}, len(m.externalAPIRequests))
	for api, requests := range m.externalAPIRequests {
		errors := m.externalAPIErrors[api]
		errorRate := float64(0)
		avgLatency := float64(0)
		if requests > 0 {
			errorRate = float64(errors) / float64(requests) * 100
			avgLatency = float64(m.externalAPILatency[api].Milliseconds()) / float64(requests)
		}

		stats[api] = map[string]interface{}{
			"requests":       requests,
			"errors":         errors,
			"error_rate":     errorRate,
			"avg_latency_ms": avgLatency,
		}
	}
	return stats
}

// ErrorRate returns the percentage of requests that ended with status >= 400
func (m *Metrics) ErrorRate() float64 {
	requests := atomic.LoadInt64(&m.RequestCount)
	if requests == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.ErrorCount)) / float64(requests) * 100
}

// AverageScore returns the mean score of successful analyses
func (m *Metrics) AverageScore() float64 {
	count := atomic.LoadInt64(&m.AnalysisCount)
	if count == 0 {
		return 0
	}
	return math.Float64frombits(atomic.LoadUint64(&m.scoreSumBits)) / float64(count)
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds":     time.Since(m.StartTime).Seconds(),
		"start_time":         m.StartTime.Format(time.RFC3339),
		"total_requests":     atomic.LoadInt64(&m.RequestCount),
		"error_count":        atomic.LoadInt64(&m.ErrorCount),
		"error_rate_percent": m.ErrorRate(),

		"analyses_completed": atomic.LoadInt64(&m.AnalysisCount),
		"analyses_failed":    atomic.LoadInt64(&m.AnalysisFailures),
		"average_score":      m.AverageScore(),
		"github_api_calls":   atomic.LoadInt64(&m.GitHubAPICalls),
		"llm_api_calls":      atomic.LoadInt64(&m.LLMAPICalls),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / float64(time.Millisecond),
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / float64(time.Millisecond),
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / float64(time.Millisecond),
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"external_api_stats":       m.GetExternalAPIStats(),

		"circuit_breaker_opens":  atomic.LoadInt64(&m.CircuitBreakerOpens),
		"circuit_breaker_closes": atomic.LoadInt64(&m.CircuitBreakerCloses),

		"rate_limit_blocks":       atomic.LoadInt64(&m.RateLimitBlocks),
		"rate_limit_redis_errors": atomic.LoadInt64(&m.RateLimitRedisErrors),
		"rate_limit_fallbacks":    atomic.LoadInt64(&m.RateLimitFallbacks),
	}
}
