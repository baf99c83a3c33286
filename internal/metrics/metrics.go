package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildsDispatched counts builds handed to a strategy, by strategy mode
	BuildsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildrelay_builds_dispatched_total",
			Help: "Total number of builds dispatched to the CI server",
		},
		[]string{"mode"},
	)

	// DispatchErrors counts failed dispatches, by strategy mode
	DispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildrelay_dispatch_errors_total",
			Help: "Total number of build dispatches that failed",
		},
		[]string{"mode"},
	)

	// BuildsSkipped counts builds dropped because of the skip marker
	BuildsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildrelay_builds_skipped_total",
			Help: "Total number of builds skipped by commit message marker",
		},
	)

	// Callbacks counts build notifications received from the CI server
	Callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildrelay_callbacks_total",
			Help: "Total number of CI build notifications received",
		},
		[]string{"phase", "status"},
	)

	// JobProvisions counts job create/update calls, by mode and result
	JobProvisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildrelay_job_provisions_total",
			Help: "Total number of CI job provisioning calls",
		},
		[]string{"mode", "result"},
	)
)

// Result returns the result label for err
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
