package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Every method is safe on a nil
// receiver so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Operation metrics (subgame, module_fetch, store_write, ...)
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Execution context metrics
	ContextsActive     prometheus.Gauge
	ContextsTotal      *prometheus.CounterVec
	ModuleLoads        *prometheus.CounterVec
	ProtocolViolations prometheus.Counter

	// Tournament metrics
	TournamentsActive prometheus.Gauge
	TournamentsTotal  *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON stats endpoint.
type Snapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	ActiveContexts    int64   `json:"activeContexts"`
	ActiveTournaments int64   `json:"activeTournaments"`
	SubgamesOK        int64   `json:"subgamesOk"`
	SubgamesFailed    int64   `json:"subgamesFailed"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// NewMetrics creates a collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "koth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "koth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "koth_operations_total",
				Help: "Total number of operations by outcome",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "koth_operation_duration_seconds",
				Help:    "Operation duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),

		ContextsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "koth_execution_contexts_active",
				Help: "Number of live execution contexts",
			},
		),
		ContextsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "koth_execution_contexts_total",
				Help: "Execution contexts by how they ended",
			},
			[]string{"outcome"},
		),
		ModuleLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "koth_module_loads_total",
				Help: "Module loads by loader mode and status",
			},
			[]string{"mode", "status"},
		),
		ProtocolViolations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "koth_protocol_violations_total",
				Help: "Messages across the isolation boundary that matched no expected state",
			},
		),

		TournamentsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "koth_tournaments_active",
				Help: "Number of running tournaments",
			},
		),
		TournamentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "koth_tournaments_total",
				Help: "Finished tournaments by status",
			},
			[]string{"status"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "koth_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "koth_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "koth_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records one timed operation.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())

	if operation == OpSubgame {
		m.mu.Lock()
		if status == StatusOK {
			m.snapshot.SubgamesOK++
		} else {
			m.snapshot.SubgamesFailed++
		}
		m.mu.Unlock()
	}
}

// ContextStarted records a spawned execution context.
func (m *Metrics) ContextStarted() {
	if m == nil {
		return
	}
	m.ContextsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveContexts++
	m.mu.Unlock()
}

// ContextStopped records a torn-down execution context.
func (m *Metrics) ContextStopped(outcome string) {
	if m == nil {
		return
	}
	m.ContextsActive.Dec()
	m.ContextsTotal.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	m.snapshot.ActiveContexts--
	m.mu.Unlock()
}

// RecordModuleLoad records a module load.
func (m *Metrics) RecordModuleLoad(mode, status string) {
	if m == nil {
		return
	}
	m.ModuleLoads.WithLabelValues(mode, status).Inc()
}

// IncProtocolViolations counts a boundary protocol violation.
func (m *Metrics) IncProtocolViolations() {
	if m == nil {
		return
	}
	m.ProtocolViolations.Inc()
}

// TournamentStarted records a started tournament.
func (m *Metrics) TournamentStarted() {
	if m == nil {
		return
	}
	m.TournamentsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveTournaments++
	m.mu.Unlock()
}

// TournamentEnded records a tournament reaching a final status.
func (m *Metrics) TournamentEnded(status string) {
	if m == nil {
		return
	}
	m.TournamentsActive.Dec()
	m.TournamentsTotal.WithLabelValues(status).Inc()
	m.mu.Lock()
	m.snapshot.ActiveTournaments--
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
