package server

import (
	"net/http"

	"github.com/FrenchMajesty/chat-widget/chat_widget"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "chat_widget"

// Metrics holds the Prometheus collectors for the widget host and the mock chat API.
// Each instance owns its registry so servers and tests never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// Events counts widget events by type.
	Events *prometheus.CounterVec
	// Failures counts classified failures by kind.
	Failures *prometheus.CounterVec
	// RetryCountdown is the countdown of the current rate limit episode in seconds.
	RetryCountdown prometheus.Gauge
	// AutoRetrying is 1 while an automatic retry is armed.
	AutoRetrying prometheus.Gauge
	// TokensTotal counts prompt and completion tokens of finished replies.
	TokensTotal *prometheus.CounterVec
	// UpstreamRequests counts mock API requests by outcome (allowed, limited, error).
	UpstreamRequests *prometheus.CounterVec
	// SSESubscribers is the number of connected event stream clients.
	SSESubscribers prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_total",
				Help:      "Total number of widget events by type",
			},
			[]string{"type"},
		),
		Failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "failures_total",
				Help:      "Total number of failed chat requests by error kind",
			},
			[]string{"kind"},
		),
		RetryCountdown: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "retry_countdown_seconds",
				Help:      "Seconds left before a rate limited request may be retried",
			},
		),
		AutoRetrying: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "auto_retry_armed",
				Help:      "Automatic retry status (1 = armed, 0 = idle)",
			},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_total",
				Help:      "Total number of tokens used by completed replies",
			},
			[]string{"direction"},
		),
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of mock chat API requests by outcome",
			},
			[]string{"outcome"},
		),
		SSESubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sse_subscribers",
				Help:      "Number of connected widget event stream clients",
			},
		),
	}
}

// ObserveEvent updates the collectors from a widget event.
func (m *Metrics) ObserveEvent(event *chat_widget.Event) {
	m.Events.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case chat_widget.EventErrorClassified:
		if kind, ok := event.Data["kind"].(string); ok {
			m.Failures.WithLabelValues(kind).Inc()
		}
	case chat_widget.EventRetryState:
		if countdown, ok := event.Data["countdown"].(int); ok {
			m.RetryCountdown.Set(float64(countdown))
		}
		if armed, ok := event.Data["is_auto_retrying"].(bool); ok {
			m.AutoRetrying.Set(boolGauge(armed))
		}
	case chat_widget.EventStreamCompleted:
		if tokens, ok := event.Data["prompt_tokens"].(int); ok {
			m.TokensTotal.WithLabelValues("prompt").Add(float64(tokens))
		}
		if tokens, ok := event.Data["completion_tokens"].(int); ok {
			m.TokensTotal.WithLabelValues("completion").Add(float64(tokens))
		}
	case chat_widget.EventSessionRestart:
		m.RetryCountdown.Set(0)
		m.AutoRetrying.Set(0)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
