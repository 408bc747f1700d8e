/*
Package metrics exposes Prometheus collectors for the edge agent.

Collectors are registered on the default registry at init time and updated by
the components as they run:

  - edgeagent_connectivity_state{state}: last sampled LED classification
  - edgeagent_retry_attempts_total{operation} and
    edgeagent_remediations_total{operation}: retry loop activity
  - edgeagent_artifacts_updated_total{artifact},
    edgeagent_artifact_fetch_failures_total{artifact} and
    edgeagent_schedule_rewrites_total: reconciler activity
  - edgeagent_node_store_mutations_total: tunnel node writes
  - edgeagent_telemetry_reports_total{kind,result}: control-plane reports
  - edgeagent_pass_duration_seconds{command}: wall time per pass

Each agent invocation is a short one-shot pass, so nothing serves /metrics.
Instead WriteTextfile dumps the registry at the end of a pass for the
node_exporter textfile collector:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PassDuration, "update")
	...
	_ = metrics.WriteTextfile("/var/lib/node_exporter/edgeagent.prom")
*/
package metrics
