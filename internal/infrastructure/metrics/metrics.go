// Package metrics holds the Prometheus collectors of the bot.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus instrumentation on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	messages        *prometheus.CounterVec
	handleDuration  prometheus.Histogram
	notifications   *prometheus.CounterVec
	checkpoints     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classroll_messages_total",
		Help: "Inbound chat messages by outcome",
	}, []string{"outcome"})

	handleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "classroll_message_handle_seconds",
		Help:    "Time spent handling one inbound message",
		Buckets: prometheus.DefBuckets,
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classroll_notifications_total",
		Help: "Outbound student notifications by result",
	}, []string{"result"})

	checkpoints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classroll_checkpoints_total",
		Help: "Snapshot checkpoints by result",
	}, []string{"result"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(messages, handleDuration, notifications, checkpoints, requestDuration, goroutines)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		messages:        messages,
		handleDuration:  handleDuration,
		notifications:   notifications,
		checkpoints:     checkpoints,
		requestDuration: requestDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveMessage records one handled chat message.
func (m *Metrics) ObserveMessage(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
	m.handleDuration.Observe(d.Seconds())
}

// ObserveNotification records a notification attempt.
func (m *Metrics) ObserveNotification(ok bool) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result(ok)).Inc()
}

// ObserveCheckpoint records a snapshot save attempt.
func (m *Metrics) ObserveCheckpoint(ok bool) {
	if m == nil {
		return
	}
	m.checkpoints.WithLabelValues(result(ok)).Inc()
}

// ObserveHTTPRequest records request metrics.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
