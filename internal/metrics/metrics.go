package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchTotal counts completed dispatches by outcome.
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetadmin",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Total number of dispatched commands by operation, protocol and status",
		},
		[]string{"operation", "protocol", "status"},
	)

	// DispatchDuration tracks wall time of one runner execution.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleetadmin",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Duration of runner executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~3m
		},
		[]string{"operation", "protocol"},
	)

	// TransportFailures counts calls that never got a usable response.
	TransportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetadmin",
			Subsystem: "dispatch",
			Name:      "transport_failures_total",
			Help:      "Total number of calls that failed before a response was read",
		},
		[]string{"operation", "reason"},
	)

	// Rejected counts commands refused before any network I/O.
	Rejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetadmin",
			Subsystem: "dispatch",
			Name:      "rejected_total",
			Help:      "Total number of commands rejected before execution",
		},
		[]string{"reason"},
	)

	// Retries counts re-dispatches after retryable failures.
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetadmin",
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Total number of retried dispatches",
		},
		[]string{"operation"},
	)
)

// WriteTextfile writes a snapshot of the default registry in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
