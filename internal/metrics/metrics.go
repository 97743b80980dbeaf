// Package metrics holds the Prometheus collectors of the bot.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	intakeOutcomes    *prometheus.CounterVec
	sweepRuns         prometheus.Counter
	sweepResults      *prometheus.CounterVec
	assistantRequests *prometheus.CounterVec
	assistantLatency  prometheus.Histogram
	broadcastMessages *prometheus.CounterVec
	scoredSubmissions prometheus.Counter
)

// Register initialises the collectors on the default registry.
func Register() {
	registerOnce.Do(func() {
		intakeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contest",
			Subsystem: "intake",
			Name:      "outcomes_total",
			Help:      "Submission dialogue events by outcome.",
		}, []string{"outcome"})

		sweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contest",
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Completed sweeps over the checkpoint table.",
		})

		sweepResults = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contest",
			Subsystem: "sweeper",
			Name:      "drafts_total",
			Help:      "Drafts handled by the sweeper by result.",
		}, []string{"result"})

		assistantRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contest",
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Questions sent to the assistant by status.",
		}, []string{"status"})

		assistantLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contest",
			Subsystem: "assistant",
			Name:      "latency_seconds",
			Help:      "Latency of assistant answers.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20},
		})

		broadcastMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contest",
			Subsystem: "broadcast",
			Name:      "messages_total",
			Help:      "News messages delivered to participants by status.",
		}, []string{"status"})

		scoredSubmissions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contest",
			Subsystem: "scoring",
			Name:      "scored_total",
			Help:      "Scores set by administrators.",
		})

		prometheus.MustRegister(
			intakeOutcomes,
			sweepRuns,
			sweepResults,
			assistantRequests,
			assistantLatency,
			broadcastMessages,
			scoredSubmissions,
		)
	})
}

func IntakeOutcomes() *prometheus.CounterVec {
	Register()
	return intakeOutcomes
}

func SweepRuns() prometheus.Counter {
	Register()
	return sweepRuns
}

// SweepResults is labelled with nudged, expired, quiet_skipped or failed.
func SweepResults() *prometheus.CounterVec {
	Register()
	return sweepResults
}

func AssistantRequests() *prometheus.CounterVec {
	Register()
	return assistantRequests
}

func AssistantLatency() prometheus.Histogram {
	Register()
	return assistantLatency
}

func BroadcastMessages() *prometheus.CounterVec {
	Register()
	return broadcastMessages
}

func ScoredSubmissions() prometheus.Counter {
	Register()
	return scoredSubmissions
}
