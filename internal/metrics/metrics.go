// Package metrics defines the Prometheus collectors for the hub and the
// ingest pipeline. All collectors are registered via promauto at init time
// and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics
var (
	// HubConnectedClients tracks the current number of admitted subscribers.
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Current number of admitted WebSocket subscribers",
		},
	)

	// HubAdmissionsTotal tracks admission attempts by outcome.
	HubAdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_admissions_total",
			Help: "Subscriber admission attempts by outcome (admitted/quota_exceeded)",
		},
		[]string{"outcome"},
	)

	// HubEvictionsTotal tracks evictions by reason.
	HubEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_evictions_total",
			Help: "Subscriber evictions by reason (disconnect/send_failure/shutdown)",
		},
		[]string{"reason"},
	)

	// HubBroadcastDuration tracks fan-out pass duration in seconds.
	HubBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_broadcast_duration_seconds",
			Help:    "Duration of one broadcast fan-out pass in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// HubCommandChannelDepth tracks the hub actor's command backlog.
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current depth of the hub command channel",
		},
	)
)

// Ingest metrics
var (
	// IngestReadingsTotal tracks accepted readings by persistence outcome.
	IngestReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_readings_total",
			Help: "Accepted sensor readings by persistence outcome (persisted/unpersisted)",
		},
		[]string{"persisted"},
	)

	// StorageErrorsTotal tracks persistence operation failures.
	StorageErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storage_errors_total",
			Help: "Total persistence operation failures",
		},
	)

	// WebSocketMessageSendDuration tracks per-connection write latency.
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message write duration in seconds",
			Buckets: []float64{.0001, .001, .01, .05, .1, .5, 1, 5},
		},
	)

	// WebSocketPingFailures tracks keep-alive ping write failures.
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping write failures",
		},
	)

	// ConnectionsRejectedTotal tracks subscribe connections refused before
	// the upgrade by the per-IP rate limiter.
	ConnectionsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_connections_rate_limited_total",
			Help: "Total WebSocket connection attempts refused by the rate limiter",
		},
	)
)
