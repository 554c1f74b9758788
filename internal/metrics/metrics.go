// Package metrics declares the prometheus instrumentation shared by
// the server-side and client-side runtimes, grouped the way the teacher's
// internal/staging/stage/metrics.go groups its histograms and
// counters: one var block, promauto registration, shared bucket sets.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets mirrors the teacher's internal/util/metrics bucket
// set: sub-millisecond through multi-second, since both apply latency
// and RPC round trips span that range.
var LatencyBuckets = []float64{
	.0005, .001, .002, .005, .01, .02, .05, .1, .2, .5, 1, 2, 5, 10,
}

var (
	// ApplyDurations times Dispatcher.Apply end to end, per entry kind.
	ApplyDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atomix_apply_duration_seconds",
		Help:    "the length of time it took to apply a log entry",
		Buckets: LatencyBuckets,
	}, []string{"kind"})

	// ApplyErrors counts failed Apply calls, tagged by error kind.
	ApplyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atomix_apply_errors_total",
		Help: "the number of entries that failed to apply, by error kind",
	}, []string{"kind"})

	// SessionCount reports the current number of open sessions.
	SessionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atomix_sessions_open",
		Help: "the number of currently open sessions",
	})

	// SessionExpirations counts sessions transitioning to Expired.
	SessionExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atomix_session_expirations_total",
		Help: "the number of sessions that have expired",
	})

	// QueriesParked reports how many queries are currently waiting on
	// a required version that has not yet been applied.
	QueriesParked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atomix_queries_parked",
		Help: "the number of queries parked awaiting a required version",
	})

	// CompactionDecisions counts Filter.Keep outcomes, tagged by entry
	// kind and by keep/discard.
	CompactionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atomix_compaction_decisions_total",
		Help: "the number of compaction keep/discard decisions made",
	}, []string{"kind", "decision"})

	// PublishedEvents counts Publisher.Publish calls, tagged by
	// whether a subscriber was present to receive them.
	PublishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atomix_published_events_total",
		Help: "the number of events handed to the publisher, by delivery outcome",
	}, []string{"outcome"})

	// ClientRetries counts client-side submit retries, tagged by the
	// error kind that triggered the retry.
	ClientRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atomix_client_retries_total",
		Help: "the number of client submit retries, by cause",
	}, []string{"cause"})

	// ClientRegistrations counts successful client session
	// registrations, including re-registration after expiry.
	ClientRegistrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atomix_client_registrations_total",
		Help: "the number of successful session registrations",
	})
)
