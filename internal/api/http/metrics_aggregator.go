package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/resilience"
)

// MetricsAggregator reports process metrics together with the state of the
// circuit breakers guarding outbound fetches.
type MetricsAggregator struct {
	metrics  *monitoring.Metrics
	breakers []*resilience.Breaker
}

// NewMetricsAggregator creates an aggregator. Nil breakers are skipped.
func NewMetricsAggregator(metrics *monitoring.Metrics, breakers ...*resilience.Breaker) *MetricsAggregator {
	ma := &MetricsAggregator{metrics: metrics}
	for _, b := range breakers {
		if b != nil {
			ma.breakers = append(ma.breakers, b)
		}
	}
	return ma
}

// MetricsSnapshot represents a snapshot of all system metrics
type MetricsSnapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Backend   monitoring.Snapshot    `json:"backend"`
	Breakers  map[string]BreakerInfo `json:"breakers,omitempty"`
	Summary   MetricsSummary         `json:"summary"`
}

// BreakerInfo is the state of one circuit breaker.
type BreakerInfo struct {
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests   int64   `json:"total_requests"`
	ErrorRate       float64 `json:"error_rate"`
	SubgameFailRate float64 `json:"subgame_fail_rate"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// GetAggregatedMetrics returns the JSON view of the metrics
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, ma.Collect())
}

// Collect builds a snapshot.
func (ma *MetricsAggregator) Collect() MetricsSnapshot {
	backend := ma.metrics.Snapshot()
	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Backend:   backend,
		Summary:   summarize(backend),
	}
	if len(ma.breakers) > 0 {
		snapshot.Breakers = make(map[string]BreakerInfo, len(ma.breakers))
		for _, b := range ma.breakers {
			counts := b.Counts()
			snapshot.Breakers[b.Name()] = BreakerInfo{
				State:               b.State().String(),
				Requests:            counts.Requests,
				ConsecutiveFailures: counts.ConsecutiveFailures,
			}
		}
	}
	return snapshot
}

func summarize(s monitoring.Snapshot) MetricsSummary {
	var errorRate float64
	if s.TotalRequests > 0 {
		errorRate = float64(s.TotalErrors) / float64(s.TotalRequests)
	}

	var failRate float64
	if games := s.SubgamesOK + s.SubgamesFailed; games > 0 {
		failRate = float64(s.SubgamesFailed) / float64(games)
	}

	return MetricsSummary{
		TotalRequests:   s.TotalRequests,
		ErrorRate:       errorRate,
		SubgameFailRate: failRate,
		UptimeSeconds:   s.UptimeSeconds,
	}
}
