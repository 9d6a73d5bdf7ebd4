// Package metrics declares the Prometheus collectors of the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "novel_sessions_active",
		Help: "Number of authenticated WebSocket sessions",
	})

	AuthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novel_auth_failures_total",
		Help: "Connections closed because authentication failed",
	})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novel_messages_total",
		Help: "Protocol messages by type and direction",
	}, []string{"type", "direction"})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novel_errors_total",
		Help: "Error replies by code",
	}, []string{"code"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "novel_stage_duration_seconds",
		Help:    "Collaborator call duration by stage and outcome",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage", "status"})

	StoriesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novel_stories_generated_total",
		Help: "Stories delivered to clients",
	})

	ConversationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "novel_conversations_active",
		Help: "Conversation contexts held in memory",
	})
)

// Message directions
const (
	Inbound  = "inbound"
	Outbound = "outbound"
)
