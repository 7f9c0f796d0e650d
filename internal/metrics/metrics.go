package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts transport attempts by outcome ("ok" or "error").
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicnews",
			Name:      "fetch_total",
			Help:      "Feed fetch attempts per transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	// FallbackTotal counts queries that had to use the secondary transport.
	FallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "topicnews",
			Name:      "fallback_total",
			Help:      "Queries served by the fallback transport",
		},
	)

	QueryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicnews",
			Name:      "query_failures_total",
			Help:      "Queries for which every transport failed",
		},
		[]string{"category"},
	)

	DuplicatesFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicnews",
			Name:      "duplicates_total",
			Help:      "Articles dropped as duplicates or for missing identity",
		},
		[]string{"category"},
	)

	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "topicnews",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scope"},
	)

	SectionArticles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "topicnews",
			Name:      "section_articles",
			Help:      "Articles currently stored per category",
		},
		[]string{"category"},
	)
)

// RecordFetch records one transport attempt.
func RecordFetch(transport string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	FetchTotal.WithLabelValues(transport, outcome).Inc()
}

// Health tracks the state reported by the /health endpoint.
type Health struct {
	mu sync.RWMutex

	RefreshCount          int64
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration

	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Health{IsHealthy: true}

func (m *Health) RecordRefresh(scope string, duration time.Duration) {
	RefreshDuration.WithLabelValues(scope).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.RefreshCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.RefreshCount)
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Health) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Health) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Health) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"refresh_count":              m.RefreshCount,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
	if !m.LastRunTime.IsZero() {
		stats["last_run_time"] = m.LastRunTime.Format(time.RFC3339)
	}
	if !m.LastErrorTime.IsZero() {
		stats["last_error_time"] = m.LastErrorTime.Format(time.RFC3339)
	}
	return stats
}
