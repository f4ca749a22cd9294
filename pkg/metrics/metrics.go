package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Replica metrics
	ViewNumber = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "murmesh_replica_view_number",
			Help: "Current PBFT view number observed by this replica",
		},
	)

	CommitNum = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "murmesh_replica_commit_num",
			Help: "Highest consecutively committed op number",
		},
	)

	OpNum = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "murmesh_replica_op_num",
			Help: "Highest op number this replica has assigned or accepted",
		},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "murmesh_requests_total",
			Help: "Total client requests observed by outcome",
		},
		[]string{"outcome"}, // queued, proposed, stale, resent
	)

	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "murmesh_commits_total",
			Help: "Total operations executed against the application state machine",
		},
	)

	ViewChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "murmesh_view_changes_total",
			Help: "Total ViewChange messages observed (recovery itself is out of scope)",
		},
	)

	// Quorum latency: time from PrePrepare assignment to commit execution
	QuorumLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "murmesh_quorum_latency_seconds",
			Help:    "Time from an op's PrePrepare to its commit execution",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Crypto offload metrics
	CryptoQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "murmesh_crypto_queue_depth",
			Help: "Pending jobs queued on the shared signing/verification worker pool",
		},
	)

	CryptoOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "murmesh_crypto_op_duration_seconds",
			Help:    "Time taken to sign or verify a message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"}, // sign, verify, verify_batch
	)

	// Client metrics
	ClientResendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "murmesh_client_resends_total",
			Help: "Total times a client resent an outstanding request after a timeout",
		},
	)

	ClientInvokeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "murmesh_client_invoke_latency_seconds",
			Help:    "Time from an invocation to its matching reply",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Search engine metrics
	SearchStatesDiscovered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "murmesh_search_states_discovered",
			Help: "Total distinct states discovered so far by the current search run",
		},
	)

	SearchStatesPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "murmesh_search_states_per_second",
			Help: "Current exploration rate of the running search",
		},
	)

	SearchResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "murmesh_search_results_total",
			Help: "Completed search runs by final status",
		},
		[]string{"status"}, // goal_found, invariant_violation, err, space_exhausted, timeout
	)
)

func init() {
	prometheus.MustRegister(
		ViewNumber,
		CommitNum,
		OpNum,
		RequestsTotal,
		CommitsTotal,
		ViewChangesTotal,
		QuorumLatency,
		CryptoQueueDepth,
		CryptoOpDuration,
		ClientResendsTotal,
		ClientInvokeLatency,
		SearchStatesDiscovered,
		SearchStatesPerSecond,
		SearchResultsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
