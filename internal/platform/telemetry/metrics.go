package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "subgate"

// Metrics holds the process collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry             *prometheus.Registry
	webhookNotifications *prometheus.CounterVec
	reconsultFailures    *prometheus.CounterVec
	remoteRequests       *prometheus.CounterVec
	remoteDuration       *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		webhookNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_notifications_total",
			Help:      "Webhook notifications received, by topic and signature outcome",
		}, []string{"topic", "signature"}),
		reconsultFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_reconsult_failures_total",
			Help:      "Times re-fetching the notified resource from Mercado Pago failed",
		}, []string{"topic"}),
		remoteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Requests sent to the Mercado Pago API, by method, endpoint and status code",
		}, []string{"method", "endpoint", "code"}),
		remoteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Latency of requests sent to the Mercado Pago API",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// ObserveWebhook counts one received notification.
func (m *Metrics) ObserveWebhook(topic string, signatureOK bool) {
	if m == nil {
		return
	}
	signature := "invalid"
	if signatureOK {
		signature = "valid"
	}
	m.webhookNotifications.WithLabelValues(topic, signature).Inc()
}

// ObserveReconsultFailure counts a failed re-fetch for the given topic.
func (m *Metrics) ObserveReconsultFailure(topic string) {
	if m == nil {
		return
	}
	m.reconsultFailures.WithLabelValues(topic).Inc()
}

// ObserveRemoteRequest records one remote call. A zero code means the call
// never produced an HTTP response.
func (m *Metrics) ObserveRemoteRequest(method, endpoint string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	codeLabel := "error"
	if code > 0 {
		codeLabel = strconv.Itoa(code)
	}
	m.remoteRequests.WithLabelValues(method, endpoint, codeLabel).Inc()
	m.remoteDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
