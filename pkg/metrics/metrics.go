// Package metrics holds the Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthEvents counts ingested authentication events by outcome.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_auth_events_total",
		Help: "Authentication events ingested, by outcome.",
	}, []string{"outcome"})

	// MalformedEvents counts events and log lines dropped as unreadable.
	MalformedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siege_malformed_events_total",
		Help: "Events and auth log lines dropped as malformed.",
	})

	// Blocks counts committed block decisions.
	Blocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siege_blocks_total",
		Help: "Block decisions committed to the store.",
	})

	// Unblocks counts lifted blocks, whatever the reason.
	Unblocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siege_unblocks_total",
		Help: "Blocks lifted by expiry, whitelist or hand.",
	})

	// FirewallErrors counts failed firewall calls.
	FirewallErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siege_firewall_errors_total",
		Help: "Firewall calls that returned an error.",
	})

	// FirewallRetries counts replays of failed firewall calls.
	FirewallRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siege_firewall_retries_total",
		Help: "Replays of previously failed firewall calls.",
	})

	// RetriesAbandoned counts firewall operations dropped after the retry
	// budget ran out.
	RetriesAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siege_firewall_retries_abandoned_total",
		Help: "Firewall operations given up on after exhausting retries.",
	})

	// ActiveBlocks tracks the sources currently blocked.
	ActiveBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siege_active_blocks",
		Help: "Sources currently blocked.",
	})

	// TrackedSources tracks the sources with failures inside the window.
	TrackedSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siege_tracked_sources",
		Help: "Sources with at least one failure inside the window.",
	})
)
