package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the indexer's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	dispatched    *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	payloadErrors *prometheus.CounterVec
	routeMatches  *prometheus.CounterVec
	routeDropped  *prometheus.CounterVec
	sinkSends     *prometheus.CounterVec
	catalog       *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexkit_dispatched_total",
			Help: "Occurrences handed to a registered handler.",
		}, []string{"kind"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexkit_handler_errors_total",
			Help: "Handler invocations that returned an error.",
		}, []string{"kind"}),
		payloadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexkit_payload_errors_total",
			Help: "Occurrences whose payload could not be constructed.",
		}, []string{"kind"}),
		routeMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexkit_route_matches_total",
			Help: "Occurrences that passed a route's predicates.",
		}, []string{"route"}),
		routeDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexkit_route_dropped_total",
			Help: "Route matches dropped as duplicates.",
		}, []string{"route"}),
		sinkSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexkit_sink_sends_total",
			Help: "Sink deliveries by outcome.",
		}, []string{"sink", "status"}),
		catalog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indexkit_catalog_entries",
			Help: "Catalog names by kind.",
		}, []string{"kind"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.dispatched,
		m.handlerErrors,
		m.payloadErrors,
		m.routeMatches,
		m.routeDropped,
		m.sinkSends,
		m.catalog,
	)
	return m
}

// Dispatched counts one handler invocation.
func (m *Metrics) Dispatched(kind string) {
	if m != nil {
		m.dispatched.WithLabelValues(kind).Inc()
	}
}

// HandlerError counts a failed handler invocation.
func (m *Metrics) HandlerError(kind string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(kind).Inc()
	}
}

// PayloadError counts an occurrence that failed payload construction.
func (m *Metrics) PayloadError(kind string) {
	if m != nil {
		m.payloadErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RouteMatched(route string) {
	if m != nil {
		m.routeMatches.WithLabelValues(route).Inc()
	}
}

func (m *Metrics) RouteDropped(route string) {
	if m != nil {
		m.routeDropped.WithLabelValues(route).Inc()
	}
}

// SinkSend counts a delivery; status is "ok" or "error".
func (m *Metrics) SinkSend(sink, status string) {
	if m != nil {
		m.sinkSends.WithLabelValues(sink, status).Inc()
	}
}

// CatalogSize records how many names of a kind the catalog holds.
func (m *Metrics) CatalogSize(kind string, n int) {
	if m != nil {
		m.catalog.WithLabelValues(kind).Set(float64(n))
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
