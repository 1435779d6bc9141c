// Package metrics provides the prometheus collectors grove components
// record their activity on: trees and nodes built by growers, tasks
// run by workers and refreshes of confusion aggregators.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TreesBuilt counts the trees grown and encoded successfully
	TreesBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_trees_built_total",
			Help: "Total number of trees grown",
		},
	)

	// TreeFailures counts the ensemble members whose build failed
	TreeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_tree_failures_total",
			Help: "Total number of tree builds that failed",
		},
	)

	// NodesBuilt counts tree nodes by kind.
	// Labels: kind (split/leaf)
	NodesBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_nodes_built_total",
			Help: "Total number of tree nodes built",
		},
		[]string{"kind"},
	)

	// TasksRun counts the tasks run by runtimes and workers.
	// Labels: handler, status (success/failure)
	TasksRun = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_tasks_run_total",
			Help: "Total number of cluster tasks run",
		},
		[]string{"handler", "status"},
	)

	// TreesVoted counts the trees applied to vote tables
	TreesVoted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_trees_voted_total",
			Help: "Total number of trees applied to the vote tables of a chunk",
		},
	)

	// RefreshDuration tracks how long confusion refreshes take in seconds
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grove_confusion_refresh_duration_seconds",
			Help:    "Duration of confusion matrix refreshes",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	// QueueDepth tracks the tasks on the queue a worker pulls from.
	// Labels: state (pending/running)
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grove_queue_depth",
			Help: "Current number of tasks on the queue",
		},
		[]string{"state"},
	)
)

// Status returns the status label for an operation that
// returned the given error
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveSince records the time elapsed since start in seconds
func ObserveSince(o prometheus.Observer, start time.Time) {
	o.Observe(time.Since(start).Seconds())
}

// Handler returns an http.Handler exposing the collectors
func Handler() http.Handler {
	return promhttp.Handler()
}
