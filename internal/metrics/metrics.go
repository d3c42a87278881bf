// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics provides Prometheus metrics for this core's streaming,
// realtime and chat subsystems. Grounded on xg2g's internal/metrics/admission.go
// promauto var-block-plus-Record-helper shape, trimmed to the handful of
// counters/gauges/histograms this spec's components actually emit — no
// per-session or per-user labels, to avoid cardinality explosion.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamBytesServedTotal counts bytes served by the range-capable
	// streaming core, by format.
	StreamBytesServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_stream_bytes_served_total",
		Help: "Total bytes served by the streaming endpoint, by audio format.",
	}, []string{"format"})

	// StreamRequestsTotal counts stream requests by outcome.
	StreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_stream_requests_total",
		Help: "Total streaming requests, by outcome (full/partial/not_satisfiable/error).",
	}, []string{"outcome"})

	// RealtimeConnectionsActive tracks currently open realtime sockets.
	RealtimeConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resonance_realtime_connections_active",
		Help: "Current number of open realtime session connections.",
	})

	// RealtimeMessagesTotal counts inbound realtime messages by type.
	RealtimeMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_realtime_messages_total",
		Help: "Total inbound realtime messages, by message type.",
	}, []string{"type"})

	// ChatRequestsTotal counts chat dispatch outcomes.
	ChatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_chat_requests_total",
		Help: "Total chat dispatch attempts, by outcome (completed/rate_limited/error).",
	}, []string{"outcome"})

	// ChatToolCallsTotal counts tool invocations by tool name and outcome.
	ChatToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_chat_tool_calls_total",
		Help: "Total chat tool invocations, by tool name and outcome.",
	}, []string{"tool", "outcome"})

	// ChatLoopIterations observes how many tool-calling iterations a chat
	// turn took before completing or hitting the cap.
	ChatLoopIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resonance_chat_loop_iterations",
		Help:    "Tool-calling loop iterations per chat turn.",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	// ScrobbleSubmissionsTotal counts ListenBrainz submission outcomes.
	ScrobbleSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_scrobble_submissions_total",
		Help: "Total scrobble submission attempts, by outcome (submitted/queued/failed).",
	}, []string{"outcome"})

	// QueueOperationsTotal counts queue mutation operations by kind.
	QueueOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_queue_operations_total",
		Help: "Total queue mutation operations, by operation name.",
	}, []string{"operation"})
)

// RecordStreamServed increments the bytes-served counter for format.
func RecordStreamServed(format string, n int64) {
	StreamBytesServedTotal.WithLabelValues(format).Add(float64(n))
}

// RecordStreamRequest increments the stream-requests counter for outcome.
func RecordStreamRequest(outcome string) {
	StreamRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordRealtimeMessage increments the realtime message counter for a type.
func RecordRealtimeMessage(messageType string) {
	RealtimeMessagesTotal.WithLabelValues(messageType).Inc()
}

// RecordChatRequest increments the chat-requests counter for outcome.
func RecordChatRequest(outcome string) {
	ChatRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordChatToolCall increments the tool-call counter for tool/outcome.
func RecordChatToolCall(tool, outcome string) {
	ChatToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// ObserveChatLoopIterations records how many loop iterations a turn took.
func ObserveChatLoopIterations(iterations int) {
	ChatLoopIterations.Observe(float64(iterations))
}

// RecordScrobbleSubmission increments the scrobble-submission counter.
func RecordScrobbleSubmission(outcome string) {
	ScrobbleSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordQueueOperation increments the queue-operation counter.
func RecordQueueOperation(operation string) {
	QueueOperationsTotal.WithLabelValues(operation).Inc()
}
