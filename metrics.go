package redirector

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ReasonHost  = "host"
	ReasonHTTPS = "https"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry    *prometheus.Registry
	redirects   *prometheus.CounterVec
	refreshes   prometheus.Counter
	fetchErrors prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redirector",
			Name:      "redirects_total",
			Help:      "Permanent redirects issued to the primary domain.",
		}, []string{"reason"}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redirector",
			Name:      "cache_refreshes_total",
			Help:      "Domain file refreshes from the hostnames API.",
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redirector",
			Name:      "fetch_errors_total",
			Help:      "Failed requests to the hostnames API.",
		}),
	}
	m.registry.MustRegister(m.redirects, m.refreshes, m.fetchErrors)
	return m
}

func (m *Metrics) Redirected(reason string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheRefreshed() {
	if m == nil {
		return
	}
	m.refreshes.Inc()
}

func (m *Metrics) FetchFailed() {
	if m == nil {
		return
	}
	m.fetchErrors.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
