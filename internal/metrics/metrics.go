// Package metrics provides Prometheus instrumentation for pairchat. It
// exposes gauges for connections, chats and the queue, and counters for
// commands, relayed messages and policy denials.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// CommandsTotal counts handled commands by name and outcome
	// ("ok", "user_error", "policy_denied", "persistence_error").
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_commands_total",
		Help: "Total number of commands handled",
	}, []string{"command", "outcome"})

	// CommandLatency records how long a command holds the coordinator.
	CommandLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pairchat_command_latency_seconds",
		Help:    "Command processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 3},
	}, []string{"command"})

	// MessagesTotal counts relayed text messages, labeled by type:
	// "relayed", "failed" or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_messages_total",
		Help: "Total number of text messages processed",
	}, []string{"type"})

	// DeliveryFailures counts notifications and forwards the transport
	// could not deliver.
	DeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_delivery_failures_total",
		Help: "Total number of failed transport deliveries",
	})

	// RateLimited counts rejected calls per action.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_rate_limited_total",
		Help: "Total number of rate limited calls",
	}, []string{"action"})

	// QuotaDenials counts match attempts rejected for quota.
	QuotaDenials = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_quota_denials_total",
		Help: "Total number of match attempts denied by quota",
	})

	// PremiumUpgrades counts users upgraded through a subscription check.
	PremiumUpgrades = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_premium_upgrades_total",
		Help: "Total number of premium upgrades",
	})

	// Users tracks the number of known users.
	Users = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_users",
		Help: "Number of users in the store",
	})

	// ActiveChats tracks the current number of pairings.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_active_chats",
		Help: "Current number of active chat sessions",
	})

	// MatchQueueSize tracks the current number of waiting users.
	MatchQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_match_queue_size",
		Help: "Current number of users in matching queue",
	})

	// Reports tracks the total number of stored reports.
	Reports = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_reports",
		Help: "Number of reports in the store",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		CommandsTotal,
		CommandLatency,
		MessagesTotal,
		DeliveryFailures,
		RateLimited,
		QuotaDenials,
		PremiumUpgrades,
		Users,
		ActiveChats,
		MatchQueueSize,
		Reports,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
