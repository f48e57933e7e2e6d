package http

import (
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
)

// HandlerMetrics wraps handlers with metrics tracking
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// Track starts timing a tournament API operation. The returned function
// records it as ok or error.
func (hm *HandlerMetrics) Track(operation string) func(ok bool) {
	var timer *monitoring.Timer
	if hm != nil {
		timer = monitoring.NewTimer(hm.metrics, "api_"+operation)
	}
	return func(ok bool) {
		if timer == nil {
			return
		}
		if ok {
			timer.Stop(monitoring.StatusOK)
		} else {
			timer.Stop(monitoring.StatusError)
		}
	}
}

// Snapshot returns the current metric values.
func (hm *HandlerMetrics) Snapshot() monitoring.Snapshot {
	if hm == nil {
		return monitoring.Snapshot{}
	}
	return hm.metrics.Snapshot()
}
