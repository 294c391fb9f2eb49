// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveqa_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liveqa_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Moderation metrics
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liveqa_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	QuestionsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liveqa_questions_submitted_total",
			Help: "Total questions submitted",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liveqa_rate_limit_hits_total",
			Help: "Total question submissions rejected by the rate limiter",
		},
	)

	// Real-time metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liveqa_ws_connections",
			Help: "Open WebSocket connections on this instance",
		},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveqa_realtime_events_total",
			Help: "Events sent to groups",
		},
		[]string{"event"},
	)

	DroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liveqa_ws_dropped_messages_total",
			Help: "Messages dropped because a connection's send buffer was full",
		},
	)

	// Export metrics
	ExportJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveqa_export_jobs_total",
			Help: "Transcript export jobs by outcome",
		},
		[]string{"status"}, // "completed", "retried" or "failed"
	)

	// Ticket queue metrics
	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liveqa_tickets_issued_total",
			Help: "Total number of queue tickets handed out",
		},
	)
)
