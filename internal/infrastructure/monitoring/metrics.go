package monitoring

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Worker lifecycle
	WorkersCreated prometheus.Counter
	WorkersActive  prometheus.Gauge
	InitFailures   prometheus.Counter

	// Traffic
	MessagesPosted  prometheus.Counter
	MessagesDropped *prometheus.CounterVec
	EventsForwarded *prometheus.CounterVec

	// Page boundary
	PageCalls    *prometheus.CounterVec
	PageDuration *prometheus.HistogramVec
	PageErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. Registering
// the same namespace on the same registerer twice reuses the collectors that
// are already there, so every worker may call NewMetrics freely.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "browserworker"
	}

	m := &Metrics{
		WorkersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_created_total",
			Help:      "Total number of bridged workers constructed",
		}),
		WorkersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_active",
			Help:      "Number of bridged workers that are ready and not terminated",
		}),
		InitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_init_failures_total",
			Help:      "Total number of worker initializations that failed",
		}),
		MessagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_posted_total",
			Help:      "Total number of host messages delivered to in-page workers",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Host messages dropped before reaching an in-page worker",
		}, []string{"reason"}),
		EventsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_forwarded_total",
			Help:      "Events forwarded from in-page workers to the host",
		}, []string{"type"}),
		PageCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_calls_total",
			Help:      "Calls made across the page boundary",
		}, []string{"op", "status"}),
		PageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_call_duration_seconds",
			Help:      "Page boundary call duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op"}),
		PageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_errors_total",
			Help:      "Page boundary calls that returned an error",
		}, []string{"op"}),
	}

	m.WorkersCreated = register(reg, m.WorkersCreated)
	m.WorkersActive = register(reg, m.WorkersActive)
	m.InitFailures = register(reg, m.InitFailures)
	m.MessagesPosted = register(reg, m.MessagesPosted)
	m.MessagesDropped = register(reg, m.MessagesDropped)
	m.EventsForwarded = register(reg, m.EventsForwarded)
	m.PageCalls = register(reg, m.PageCalls)
	m.PageDuration = register(reg, m.PageDuration)
	m.PageErrors = register(reg, m.PageErrors)

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// WorkerCreated records a constructed worker
func (m *Metrics) WorkerCreated() {
	if m == nil {
		return
	}
	m.WorkersCreated.Inc()
}

// WorkerReady records a worker entering the ready state
func (m *Metrics) WorkerReady() {
	if m == nil {
		return
	}
	m.WorkersActive.Inc()
}

// WorkerTerminated records a ready worker leaving service
func (m *Metrics) WorkerTerminated() {
	if m == nil {
		return
	}
	m.WorkersActive.Dec()
}

// InitFailed records a failed initialization
func (m *Metrics) InitFailed() {
	if m == nil {
		return
	}
	m.InitFailures.Inc()
}

// MessagePosted records a delivered host message
func (m *Metrics) MessagePosted() {
	if m == nil {
		return
	}
	m.MessagesPosted.Inc()
}

// MessageDropped records a host message that never reached the worker
func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// EventForwarded records an event forwarded from the page
func (m *Metrics) EventForwarded(eventType string) {
	if m == nil {
		return
	}
	m.EventsForwarded.WithLabelValues(eventType).Inc()
}

// RecordPageCall records a page boundary call
func (m *Metrics) RecordPageCall(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.PageErrors.WithLabelValues(op).Inc()
	}
	m.PageCalls.WithLabelValues(op, status).Inc()
	m.PageDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// TimePageCall starts timing a page call; call the returned func with the
// call's error when it completes.
func (m *Metrics) TimePageCall(op string) func(error) {
	start := time.Now()
	return func(err error) {
		m.RecordPageCall(op, time.Since(start), err)
	}
}
