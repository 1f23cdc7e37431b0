package live

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instrumentation for conversations.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec

	ConnectAttempts  *prometheus.CounterVec
	ConnectFallbacks prometheus.Counter

	MessagesTotal  *prometheus.CounterVec
	ToolCallsTotal *prometheus.CounterVec

	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all collectors registered on
// a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voxkit"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Currently connected sessions",
	})

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total sessions started",
		},
		[]string{"mode", "transport"},
	)

	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"mode"},
	)

	connectAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by outcome",
		},
		[]string{"outcome"},
	)

	connectFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connect_fallbacks_total",
		Help:      "Realtime-to-reliable transport fallbacks",
	})

	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Transcript messages by role",
		},
		[]string{"role"},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Remote tool invocations by name",
		},
		[]string{"tool"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Connection errors by classification",
		},
		[]string{"class"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		connectAttempts,
		connectFallbacks,
		messagesTotal,
		toolCallsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:         registry,
		SessionsActive:   sessionsActive,
		SessionsTotal:    sessionsTotal,
		SessionDuration:  sessionDuration,
		ConnectAttempts:  connectAttempts,
		ConnectFallbacks: connectFallbacks,
		MessagesTotal:    messagesTotal,
		ToolCallsTotal:   toolCallsTotal,
		ErrorsTotal:      errorsTotal,
	}
}

// Registry exposes the private registry, for mounting a /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler serving the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// sessionStarted records a new session and returns a done func that
// records its duration.
func (m *Metrics) sessionStarted(mode, transport string) func() {
	if m == nil {
		return func() {}
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues(mode, transport).Inc()
	start := time.Now()
	return func() {
		m.SessionsActive.Dec()
		m.SessionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) connectOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) fallback() {
	if m == nil {
		return
	}
	m.ConnectFallbacks.Inc()
}

func (m *Metrics) message(role string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(role).Inc()
}

func (m *Metrics) toolCall(name string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) errorClass(class string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(class).Inc()
}
