package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "messages_received_total",
			Help:      "Envelopes decoded from the inbound stream, by payload type.",
		},
		[]string{"type"},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "messages_sent_total",
			Help:      "Envelopes written to the outbound stream, by payload type.",
		},
		[]string{"type"},
	)

	RPCAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "rpc_attempts_total",
			Help:      "Outbound request attempts, by outcome (acked, rejected, timeout).",
		},
		[]string{"outcome"},
	)

	// Covers 1ms .. ~4s, which spans the first nine backoff steps.
	RPCDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "murmur",
			Name:      "rpc_duration_seconds",
			Help:      "Time from the first attempt of a request until it is acknowledged.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
	)

	PendingReplies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "murmur",
			Name:      "pending_replies",
			Help:      "Requests currently waiting for a reply.",
		},
	)

	GossipValues = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "gossip_values_total",
			Help:      "Distinct broadcast values learned.",
		},
	)

	UnmatchedReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "unmatched_replies_total",
			Help:      "Replies received for requests that were not outstanding.",
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "murmur",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)
)

func init() {
	Registry.MustRegister(
		MessagesReceived,
		MessagesSent,
		RPCAttempts,
		RPCDuration,
		PendingReplies,
		GossipValues,
		UnmatchedReplies,
		buildInfo,
	)
}

// MetricsHandler exposes the registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}
