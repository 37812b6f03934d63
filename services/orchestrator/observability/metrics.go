// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the relay.
//
// # Description
//
// This package implements Prometheus metrics for monitoring relayed
// completions. Metrics include:
//   - Request counters (by endpoint and status)
//   - Fragment counters (by endpoint and model)
//   - Latency histograms (time to first fragment, total duration)
//   - Active stream gauges
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint when enabled.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "finhelp"

// Subsystem for relay metrics
const relaySubsystem = "relay"

// StreamingMetrics holds all Prometheus metrics for relayed completions.
//
// # Fields
//
//   - RequestsTotal: Counter of relay requests by endpoint and status
//   - FragmentsTotal: Counter of non-empty fragments forwarded
//   - TimeToFirstFragmentSeconds: Histogram of time to first fragment
//   - StreamDurationSeconds: Histogram of total stream duration
//   - ActiveStreams: Gauge of currently active streams
//   - ErrorsTotal: Counter of errors by type and endpoint
//   - CannedHitsTotal: Counter of utterances answered from the canned table
//
// # Thread Safety
//
// All operations are thread-safe.
type StreamingMetrics struct {
	// RequestsTotal counts relay requests by endpoint and status.
	// Labels: endpoint, status (success, error)
	RequestsTotal *prometheus.CounterVec

	// FragmentsTotal counts fragments forwarded to clients.
	// Labels: endpoint, model
	FragmentsTotal *prometheus.CounterVec

	// TimeToFirstFragmentSeconds measures latency to first fragment.
	// Labels: endpoint
	TimeToFirstFragmentSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: endpoint, status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open relays.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by type and endpoint.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive comments sent on event-stream replies.
	// Labels: endpoint
	KeepAlivesTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts clients that went away mid-stream.
	// Labels: endpoint
	ClientDisconnectsTotal *prometheus.CounterVec

	// CannedHitsTotal counts utterances answered without contacting the provider.
	// Labels: endpoint
	CannedHitsTotal *prometheus.CounterVec
}

// DefaultMetrics is the process-wide instance registered with the default
// Prometheus registerer. Nil until InitMetrics is called.
var DefaultMetrics *StreamingMetrics

var initOnce sync.Once

// InitMetrics initializes DefaultMetrics against the default registerer.
//
// # Description
//
// Safe to call more than once; only the first call registers collectors.
//
// # Examples
//
//	func main() {
//	    observability.InitMetrics()
//	    // ... start server ...
//	}
func InitMetrics() *StreamingMetrics {
	initOnce.Do(func() {
		DefaultMetrics = NewStreamingMetrics(prometheus.DefaultRegisterer)
	})
	return DefaultMetrics
}

// NewStreamingMetrics creates and registers all relay collectors with reg.
//
// # Inputs
//
//   - reg: Registerer to attach collectors to. Tests pass a fresh
//     prometheus.NewRegistry().
//
// # Limitations
//
//   - Panics on duplicate registration against the same registerer.
func NewStreamingMetrics(reg prometheus.Registerer) *StreamingMetrics {
	factory := promauto.With(reg)
	return &StreamingMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "requests_total",
				Help:      "Total number of relay requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		FragmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "fragments_total",
				Help:      "Total non-empty completion fragments forwarded to clients",
			},
			[]string{"endpoint", "model"},
		),

		TimeToFirstFragmentSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "time_to_first_fragment_seconds",
				Help:      "Time from request to first forwarded fragment in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total relay duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open relays",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "errors_total",
				Help:      "Total relay errors by type and endpoint",
			},
			[]string{"endpoint", "error_code"},
		),

		KeepAlivesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive comments sent",
			},
			[]string{"endpoint"},
		),

		ClientDisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during a relay",
			},
			[]string{"endpoint"},
		),

		CannedHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "canned_hits_total",
				Help:      "Total utterances answered from the canned table",
			},
			[]string{"endpoint"},
		),
	}
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates the request body was not a valid conversation.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeUpstreamConnect indicates the provider stream could not be opened.
	ErrorCodeUpstreamConnect ErrorCode = "upstream_connect"

	// ErrorCodeUpstreamStream indicates the provider stream failed mid-flight.
	ErrorCodeUpstreamStream ErrorCode = "upstream_stream"

	// ErrorCodeTimeout indicates the completion timeout elapsed.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents a relay endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointChatStream is the conversation relay endpoint.
	EndpointChatStream Endpoint = "chat_stream"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed relay request.
func (m *StreamingMetrics) RecordRequest(endpoint Endpoint, success bool) {
	m.RequestsTotal.WithLabelValues(string(endpoint), statusLabel(success)).Inc()
}

// RecordError records a relay error.
func (m *StreamingMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordFragments adds n forwarded fragments for model.
func (m *StreamingMetrics) RecordFragments(endpoint Endpoint, model string, n int) {
	if n <= 0 {
		return
	}
	m.FragmentsTotal.WithLabelValues(string(endpoint), model).Add(float64(n))
}

// StreamStarted increments the active streams gauge.
func (m *StreamingMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *StreamingMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordTimeToFirstFragment records the time to first fragment latency.
func (m *StreamingMetrics) RecordTimeToFirstFragment(endpoint Endpoint, seconds float64) {
	m.TimeToFirstFragmentSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordStreamDuration records the total relay duration.
func (m *StreamingMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), statusLabel(success)).Observe(seconds)
}

// RecordKeepAlive increments the keepalive counter.
func (m *StreamingMetrics) RecordKeepAlive(endpoint Endpoint) {
	m.KeepAlivesTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *StreamingMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordCannedHit increments the canned answer counter.
func (m *StreamingMetrics) RecordCannedHit(endpoint Endpoint) {
	m.CannedHitsTotal.WithLabelValues(string(endpoint)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
