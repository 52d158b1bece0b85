package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "restaurant"

// Metrics groups the collectors shared by all process modes
type Metrics struct {
	Requests          *prometheus.CounterVec
	LatencyMS         *prometheus.HistogramVec
	OrdersCreated     prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	NumberConflicts   prometheus.Counter
	StaleWrites       prometheus.Counter
	RealtimePublished *prometheus.CounterVec
	RealtimeFailures  *prometheus.CounterVec
	RealtimeDropped   prometheus.Counter
	OutboxPublished   prometheus.Counter
	OutboxFailures    prometheus.Counter
	DeductionsApplied prometheus.Counter
	DeductionsSkipped prometheus.Counter
	LowStockAlerts    prometheus.Counter
}

// New registers every collector on reg. Passing nil uses the default registerer.
func New(service string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "http_requests_total", Help: "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: service,
			Name: "http_request_duration_ms", Help: "HTTP request latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "orders_created_total", Help: "Orders persisted.",
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "order_status_transitions_total", Help: "Applied order status transitions by target status.",
		}, []string{"status"}),
		NumberConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "order_number_conflicts_total", Help: "Order number collisions retried with a fresh number.",
		}),
		StaleWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "order_stale_writes_total", Help: "Optimistic concurrency conflicts on order updates.",
		}),
		RealtimePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "realtime_messages_published_total", Help: "Realtime messages handed to a transport.",
		}, []string{"event"}),
		RealtimeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "realtime_publish_failures_total", Help: "Realtime publishes that failed on a topic.",
		}, []string{"event"}),
		RealtimeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "realtime_messages_dropped_total", Help: "Messages dropped for slow in-process subscribers.",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "outbox_published_total", Help: "Outbox rows delivered to the event bus.",
		}),
		OutboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "outbox_publish_failures_total", Help: "Outbox deliveries that failed and will be retried.",
		}),
		DeductionsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "inventory_deductions_applied_total", Help: "Completed orders whose stock deduction was applied.",
		}),
		DeductionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "inventory_deductions_duplicate_total", Help: "Completion events ignored because the order was already deducted.",
		}),
		LowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "low_stock_alerts_total", Help: "Low stock alerts raised.",
		}),
	}

	reg.MustRegister(
		m.Requests, m.LatencyMS, m.OrdersCreated, m.StatusTransitions, m.NumberConflicts, m.StaleWrites,
		m.RealtimePublished, m.RealtimeFailures, m.RealtimeDropped, m.OutboxPublished, m.OutboxFailures,
		m.DeductionsApplied, m.DeductionsSkipped, m.LowStockAlerts,
	)
	return m
}

// NewNop returns metrics registered on a private registry
func NewNop() *Metrics {
	return New("test", prometheus.NewRegistry())
}

// Handler exposes the default gatherer
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the middleware
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Instrument records request count and latency under the given handler label
func (m *Metrics) Instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		m.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	})
}
