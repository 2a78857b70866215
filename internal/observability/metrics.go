package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk HTTP dan domain ledger/stok.
// All methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	journalsPosted    *prometheus.CounterVec
	postingsRejected  *prometheus.CounterVec
	eventsRecorded    *prometheus.CounterVec
	movementsApplied  *prometheus.CounterVec
	negativeStock     prometheus.Counter
	documentTransited *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	journals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_journals_posted_total",
		Help: "Journal entries whose balances were applied, by source type.",
	}, []string{"source"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_postings_rejected_total",
		Help: "Posting attempts rejected by the engine, by reason.",
	}, []string{"reason"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_events_total",
		Help: "Business events handed to the translators, by kind and outcome.",
	}, []string{"kind", "outcome"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_movements_total",
		Help: "Stock movements applied to the stock ledger, by movement type.",
	}, []string{"type"})
	negative := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_stock_negative_total",
		Help: "Stock adjustments that left a record below zero.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_document_transitions_total",
		Help: "Workflow transitions applied to movement and expense documents.",
	}, []string{"document", "action"})
	registry.MustRegister(requests, duration, journals, rejected, events, movements, negative, transitions)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		journalsPosted:    journals,
		postingsRejected:  rejected,
		eventsRecorded:    events,
		movementsApplied:  movements,
		negativeStock:     negative,
		documentTransited: transitions,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// JournalPosted counts an entry whose balance deltas were applied.
func (m *Metrics) JournalPosted(source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "manual"
	}
	m.journalsPosted.WithLabelValues(source).Inc()
}

// PostingRejected counts a posting refused by validation or state checks.
func (m *Metrics) PostingRejected(reason string) {
	if m == nil {
		return
	}
	m.postingsRejected.WithLabelValues(reason).Inc()
}

// EventRecorded counts a translated business event and what came of it.
func (m *Metrics) EventRecorded(kind, outcome string) {
	if m == nil {
		return
	}
	m.eventsRecorded.WithLabelValues(kind, outcome).Inc()
}

// MovementApplied counts a stock movement.
func (m *Metrics) MovementApplied(movementType string) {
	if m == nil {
		return
	}
	m.movementsApplied.WithLabelValues(movementType).Inc()
}

// NegativeStock counts a stock record left below zero.
func (m *Metrics) NegativeStock() {
	if m == nil {
		return
	}
	m.negativeStock.Inc()
}

// Transition counts a document workflow transition.
func (m *Metrics) Transition(document, action string) {
	if m == nil {
		return
	}
	m.documentTransited.WithLabelValues(document, action).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
