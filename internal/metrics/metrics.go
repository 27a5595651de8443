// Package metrics exposes Prometheus collectors for the job pipeline.
//
// Collectors live on the default registry and are registered once through
// MustRegister. The helpers below are safe to call before registration; the
// values simply are not scraped until the daemon registers them.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shortsfactory"

var (
	once sync.Once

	workerOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_outcomes_total",
			Help:      "ProcessOne outcomes per worker-bound state.",
		},
		[]string{"state", "outcome"},
	)

	throttleRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_rejections_total",
			Help:      "Publish releases deferred by the throttle, by reason.",
		},
		[]string{"reason"},
	)

	reviewDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_decisions_total",
			Help:      "Review gate decisions (approved/rejected/reprocess).",
		},
		[]string{"decision"},
	)

	jobsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_ingested_total",
			Help:      "Jobs created by source kind.",
		},
		[]string{"kind"},
	)

	providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Capability provider run time.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"provider", "success"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			workerOutcomes,
			throttleRejections,
			reviewDecisions,
			jobsIngested,
			providerDuration,
		)
	})
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// WorkerOutcome counts one ProcessOne result.
func WorkerOutcome(state, outcome string) {
	workerOutcomes.WithLabelValues(strings.ToUpper(strings.TrimSpace(state)), norm(outcome)).Inc()
}

// ThrottleRejected counts a deferred release.
func ThrottleRejected(reason string) {
	throttleRejections.WithLabelValues(norm(reason)).Inc()
}

// ReviewDecision counts a review gate decision.
func ReviewDecision(decision string) {
	reviewDecisions.WithLabelValues(norm(decision)).Inc()
}

// JobIngested counts a newly created job.
func JobIngested(kind string) {
	jobsIngested.WithLabelValues(norm(kind)).Inc()
}

// ObserveProvider records how long a provider run took.
func ObserveProvider(provider string, elapsed time.Duration, success bool) {
	providerDuration.WithLabelValues(norm(provider), strconv.FormatBool(success)).Observe(elapsed.Seconds())
}

// Recorder adapts the package helpers to the small observer interfaces other
// packages accept, so they do not import prometheus themselves.
type Recorder struct{}

func (Recorder) ObserveReviewDecision(decision string) { ReviewDecision(decision) }

func (Recorder) ObserveWorkerOutcome(state, outcome string) { WorkerOutcome(state, outcome) }

func (Recorder) ObserveProvider(provider string, elapsed time.Duration, success bool) {
	ObserveProvider(provider, elapsed, success)
}

func (Recorder) ObserveThrottleRejection(reason string) { ThrottleRejected(reason) }

func (Recorder) ObserveIngest(kind string) { JobIngested(kind) }
