package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrooms_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrooms_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrooms_rooms_created_total",
			Help: "Total chat rooms created",
		},
		[]string{"room_type"}, // "private" or "group"
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrooms_messages_posted_total",
			Help: "Total messages posted",
		},
	)

	RoomJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrooms_room_joins_total",
			Help: "Total group room joins, implicit joins included",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrooms_rate_limit_hits_total",
			Help: "Total rate limited requests",
		},
	)
)
