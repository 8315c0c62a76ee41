// Package metrics exposes the daemon's observability surface via
// github.com/prometheus/client_golang, a direct dependency of the
// teacher repo (and an indirect one of two other examples in the
// retrieval pack), used here for a /metrics endpoint on a small,
// separate HTTP listener. This is passive observability, not part of
// the core data plane spec.md's Non-goals scope out; per SPEC_FULL.md's
// ambient-stack rule it is carried regardless.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "keyvalued",
		Name:      "job_queue_depth",
		Help:      "Current number of jobs waiting in the job queue.",
	})

	workersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "keyvalued",
		Name:      "workers_busy",
		Help:      "Number of worker goroutines currently processing a job.",
	})

	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keyvalued",
		Name:      "operations_total",
		Help:      "Completed operations by type, status and error code.",
	}, []string{"type", "status", "error"})

	connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "keyvalued",
		Name:      "connections_open",
		Help:      "Number of currently open client connections.",
	})
)

// SetQueueDepth records the job queue's current length.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// WorkerStarted/WorkerFinished track how many workers are mid-job.
func WorkerStarted()  { workersBusy.Inc() }
func WorkerFinished() { workersBusy.Dec() }

// ConnectionOpened/ConnectionClosed track open client connections.
func ConnectionOpened() { connections.Inc() }
func ConnectionClosed() { connections.Dec() }

// ObserveOperation records one completed KV engine operation. Callers
// pass the already-stringified type/status/error (job.Type.String() and
// friends) so this package stays free of a dependency on the job
// package, which itself depends on metrics for queue-depth reporting.
func ObserveOperation(opType, status, errCode string) {
	operations.WithLabelValues(opType, status, errCode).Inc()
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
