/*
Package metrics provides Prometheus metrics collection and exposition for
a murmesh deployment: replica consensus state, crypto worker offload,
client-observed latency, and model-checker search throughput.

All metrics are registered at package init via prometheus.MustRegister
and exposed over HTTP through Handler(), the same pattern used for every
other instrumented subsystem in this codebase.

# Metrics Catalog

Replica metrics:

murmesh_replica_view_number:
  - Gauge. Current PBFT view number observed by this replica.

murmesh_replica_commit_num:
  - Gauge. Highest consecutively committed op number.

murmesh_replica_op_num:
  - Gauge. Highest op number this replica has assigned or accepted.

murmesh_requests_total{outcome}:
  - Counter. Client requests observed, labeled "queued", "proposed",
    "stale", or "resent".

murmesh_commits_total:
  - Counter. Operations executed against the application state machine.

murmesh_view_changes_total:
  - Counter. ViewChange messages observed. View-change recovery itself
    is out of scope; this only tracks that one was seen.

murmesh_quorum_latency_seconds:
  - Histogram. Time from an op's PrePrepare to its commit execution.

Crypto offload metrics:

murmesh_crypto_queue_depth:
  - Gauge. Pending jobs queued on the shared signing/verification
    worker pool.

murmesh_crypto_op_duration_seconds{op}:
  - Histogram. Time to sign or verify a message, labeled "sign",
    "verify", or "verify_batch".

Client metrics:

murmesh_client_resends_total:
  - Counter. Times a client resent an outstanding request after its
    resend timeout fired.

murmesh_client_invoke_latency_seconds:
  - Histogram. Time from an invocation to its matching reply.

Search engine metrics:

murmesh_search_states_discovered:
  - Gauge. Distinct states discovered so far by the current search run.

murmesh_search_states_per_second:
  - Gauge. Current exploration rate of the running search.

murmesh_search_results_total{status}:
  - Counter. Completed search runs by final status: "goal_found",
    "invariant_violation", "err", "space_exhausted", or "timeout".

# Usage

	import "github.com/cuemby/murmesh/pkg/metrics"

	metrics.ViewNumber.Set(float64(view))
	metrics.CommitsTotal.Inc()
	metrics.RequestsTotal.WithLabelValues("resent").Inc()

	timer := metrics.NewTimer()
	// ... run a quorum round ...
	timer.ObserveDuration(metrics.QuorumLatency)

	timer = metrics.NewTimer()
	// ... sign or verify a message ...
	timer.ObserveDurationVec(metrics.CryptoOpDuration, "sign")

	http.Handle("/metrics", metrics.Handler())

# Integration Points

  - pkg/pbft: updates replica, quorum, and client metrics
  - pkg/worker: reports crypto queue depth
  - pkg/search: reports discovery rate and final result status
  - Prometheus: scrapes /metrics
*/
package metrics
