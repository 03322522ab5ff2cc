// Package metrics provides Prometheus-based metrics recording for language
// model calls and interview fallback paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records language model request outcomes and fallback events.
type Recorder interface {
	// ObserveRequest records a completed model request.
	ObserveRequest(model, component string, success bool, errorType string, duration time.Duration)
	// ObserveTokens records approximate token usage for a request.
	ObserveTokens(model, component string, promptTokens, completionTokens int)
	// RecordFallback records that a component substituted its deterministic
	// fallback for a failed model call.
	RecordFallback(component, errorType string)
}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec
}

// NewPrometheusRecorder creates a Prometheus-backed metrics recorder.
// Metrics are registered on the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "biographer_llm_requests_total",
				Help: "Total number of LLM requests by model, component, and status",
			},
			[]string{"model", "component", "status", "error_type"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "biographer_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "component"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "biographer_llm_tokens_total",
				Help: "Approximate token usage for LLM requests",
			},
			[]string{"model", "component", "type"},
		),
		fallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "biographer_fallbacks_total",
				Help: "Deterministic fallbacks substituted for failed LLM calls",
			},
			[]string{"component", "error_type"},
		),
	}
}

// ObserveRequest records metrics for a completed model request.
func (p *PrometheusRecorder) ObserveRequest(model, component string, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	} else {
		errorType = ""
	}
	p.requestsTotal.WithLabelValues(model, component, status, errorType).Inc()
	p.requestDuration.WithLabelValues(model, component).Observe(duration.Seconds())
}

// ObserveTokens records approximate token usage for a request.
func (p *PrometheusRecorder) ObserveTokens(model, component string, promptTokens, completionTokens int) {
	p.tokensTotal.WithLabelValues(model, component, "prompt").Add(float64(promptTokens))
	p.tokensTotal.WithLabelValues(model, component, "completion").Add(float64(completionTokens))
}

// RecordFallback records a fallback substitution.
func (p *PrometheusRecorder) RecordFallback(component, errorType string) {
	p.fallbacksTotal.WithLabelValues(component, errorType).Inc()
}

// NopRecorder discards all observations. Used in tests and when metrics are
// disabled.
type NopRecorder struct{}

// ObserveRequest discards the observation.
func (NopRecorder) ObserveRequest(string, string, bool, string, time.Duration) {}

// ObserveTokens discards the observation.
func (NopRecorder) ObserveTokens(string, string, int, int) {}

// RecordFallback discards the observation.
func (NopRecorder) RecordFallback(string, string) {}
