package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation names and statuses used as label values.
const (
	OpSubgame     = "subgame"
	OpModuleFetch = "module_fetch"
	OpStoreWrite  = "store_write"

	StatusOK    = "ok"
	StatusError = "error"
	StatusFatal = "fatal"
)

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
