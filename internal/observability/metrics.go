// Package observability provides Prometheus metrics and structured logging.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// Every Record method is safe on a nil *Metrics, which records nothing.
type Metrics struct {
	// Ledger metrics
	TransactionsTotal  *prometheus.CounterVec
	ProgramErrors      *prometheus.CounterVec
	TransactionLatency prometheus.Histogram
	CurrentSlot        prometheus.Gauge

	// RPC metrics
	RPCRequests   *prometheus.CounterVec
	RPCLatency    *prometheus.HistogramVec
	WSSubscribers prometheus.Gauge
	WSNotified    prometheus.Counter

	// Indexer metrics
	EventsIndexed   *prometheus.CounterVec
	IndexerErrors   *prometheus.CounterVec
	OpenOffers      prometheus.Gauge
	LastIndexedSlot prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "escrow_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Metrics{
		gatherer: gatherer,

		TransactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Transactions processed by first instruction and outcome",
		}, []string{"instruction", "outcome"}),
		ProgramErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "program_errors_total",
			Help:      "Failed transactions by program error code",
		}, []string{"code"}),
		TransactionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transaction_duration_seconds",
			Help:      "Time to execute and commit one transaction",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		CurrentSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "slot",
			Help:      "Current bank slot",
		}),

		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests by method and status",
		}, []string{"method", "status"}),
		RPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "JSON-RPC call latency by method",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"method"}),
		WSSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "ws_subscriptions",
			Help:      "Active logsSubscribe subscriptions",
		}),
		WSNotified: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "ws_notifications_total",
			Help:      "Log notifications pushed to subscribers",
		}),

		EventsIndexed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_total",
			Help:      "Program events indexed by kind",
		}, []string{"kind"}),
		IndexerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "errors_total",
			Help:      "Indexer failures by stage",
		}, []string{"stage"}),
		OpenOffers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "open_offers",
			Help:      "Escrow offers currently open",
		}),
		LastIndexedSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "last_slot",
			Help:      "Slot of the last indexed transaction",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns the HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Handler serves the registry m was created with.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return Handler()
	}
	return HandlerFor(m.gatherer)
}

// HandlerFor returns the HTTP handler for a specific registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTransaction counts one processed transaction.
// code is the program error code on failure and ignored on success.
func (m *Metrics) RecordTransaction(instruction string, ok bool, code int, seconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failed"
		if code >= 0 {
			m.ProgramErrors.WithLabelValues(strconv.Itoa(code)).Inc()
		}
	}
	m.TransactionsTotal.WithLabelValues(instruction, outcome).Inc()
	m.TransactionLatency.Observe(seconds)
}

// SetSlot records the current bank slot.
func (m *Metrics) SetSlot(slot uint64) {
	if m == nil {
		return
	}
	m.CurrentSlot.Set(float64(slot))
}

// RecordRPC records one JSON-RPC call.
func (m *Metrics) RecordRPC(method string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RPCRequests.WithLabelValues(method, status).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(seconds)
}

// AddSubscribers adjusts the active subscription gauge by delta.
func (m *Metrics) AddSubscribers(delta int) {
	if m == nil {
		return
	}
	m.WSSubscribers.Add(float64(delta))
}

// RecordNotification counts one pushed log notification.
func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.WSNotified.Inc()
}

// RecordEvent counts one indexed program event at slot.
func (m *Metrics) RecordEvent(kind string, slot int64) {
	if m == nil {
		return
	}
	m.EventsIndexed.WithLabelValues(kind).Inc()
	m.LastIndexedSlot.Set(float64(slot))
}

// RecordIndexerError counts an indexer failure at stage.
func (m *Metrics) RecordIndexerError(stage string) {
	if m == nil {
		return
	}
	m.IndexerErrors.WithLabelValues(stage).Inc()
}

// SetOpenOffers records the number of open offers.
func (m *Metrics) SetOpenOffers(n int) {
	if m == nil {
		return
	}
	m.OpenOffers.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
