// Package metrics provides Prometheus instrumentation for spamguard. It
// exposes counters for moderation outcomes and platform side effects, gauges
// for catalog size and pending notices, and a histogram for per-message
// pipeline latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts messages that reached a pipeline outcome, labeled
	// by outcome: "bypassed", "clean", "flagged".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spamguard_messages_total",
		Help: "Total number of messages processed by the moderation pipeline",
	}, []string{"outcome"})

	// DeletionsTotal counts spam deletions by result: "ok" or "error".
	DeletionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spamguard_deletions_total",
		Help: "Spam message deletions requested from the platform",
	}, []string{"result"})

	// NoticesTotal tracks the notice lifecycle, labeled by result: "sent",
	// "send_failed", "removed", "remove_failed", "abandoned".
	NoticesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spamguard_notices_total",
		Help: "Moderation notice lifecycle events",
	}, []string{"result"})

	// PrivilegeLookupsTotal counts privilege checks by result: "hit",
	// "miss" or "error".
	PrivilegeLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spamguard_privilege_lookups_total",
		Help: "Privilege cache lookups",
	}, []string{"result"})

	// CommandsTotal counts admin commands by command and result.
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spamguard_commands_total",
		Help: "Chat commands handled",
	}, []string{"command", "result"})

	// KeepAlivesTotal counts self-pings by result: "ok" or "error".
	KeepAlivesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spamguard_keepalives_total",
		Help: "Keep-alive pings sent",
	}, []string{"result"})

	// Keywords reports the number of keywords per catalog category.
	Keywords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spamguard_keywords",
		Help: "Number of keywords per category",
	}, []string{"category"})

	// PendingNotices tracks notices waiting for scheduled removal.
	PendingNotices = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spamguard_pending_notices",
		Help: "Moderation notices awaiting removal",
	})

	// ModerationLatency records time spent in the pipeline per message,
	// excluding the notice removal delay.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spamguard_moderation_latency_seconds",
		Help:    "Moderation pipeline latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		DeletionsTotal,
		NoticesTotal,
		PrivilegeLookupsTotal,
		CommandsTotal,
		KeepAlivesTotal,
		Keywords,
		PendingNotices,
		ModerationLatency,
	)
}

// SetKeywordCounts replaces the per-category keyword gauge values.
func SetKeywordCounts(counts map[string]int) {
	Keywords.Reset()
	for category, n := range counts {
		Keywords.WithLabelValues(category).Set(float64(n))
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
