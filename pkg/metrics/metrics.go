package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Connectivity metrics
	ConnectivityState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edgeagent_connectivity_state",
			Help: "Last sampled connectivity state (1 for the current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	// Retry metrics
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeagent_retry_attempts_total",
			Help: "Total number of attempts made by retry loops by operation",
		},
		[]string{"operation"},
	)

	Remediations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeagent_remediations_total",
			Help: "Total number of remediation actions fired by operation",
		},
		[]string{"operation"},
	)

	// Reconciler metrics
	ArtifactsUpdated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeagent_artifacts_updated_total",
			Help: "Total number of artifacts replaced locally",
		},
		[]string{"artifact"},
	)

	ArtifactFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeagent_artifact_fetch_failures_total",
			Help: "Total number of failed artifact downloads",
		},
		[]string{"artifact"},
	)

	ScheduleRewrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeagent_schedule_rewrites_total",
			Help: "Total number of schedule table rewrites",
		},
	)

	// Node sync metrics
	NodeStoreMutations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeagent_node_store_mutations_total",
			Help: "Total number of node store writes",
		},
	)

	// Telemetry metrics
	TelemetryReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeagent_telemetry_reports_total",
			Help: "Total number of telemetry reports by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Pass metrics
	PassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgeagent_pass_duration_seconds",
			Help:    "Duration of agent passes in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(ConnectivityState)
	prometheus.MustRegister(RetryAttempts)
	prometheus.MustRegister(Remediations)
	prometheus.MustRegister(ArtifactsUpdated)
	prometheus.MustRegister(ArtifactFetchFailures)
	prometheus.MustRegister(ScheduleRewrites)
	prometheus.MustRegister(NodeStoreMutations)
	prometheus.MustRegister(TelemetryReports)
	prometheus.MustRegister(PassDuration)
}

// SetConnectivity marks state as the current connectivity state
func SetConnectivity(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectivityState.WithLabelValues(s).Set(v)
	}
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
