/*
Package reconciler keeps the files an edge router runs from in step with
their published copies.

An update pass has three stages, each of which converges one piece of
on-device state and leaves it alone when nothing drifted:

	┌──────────────────────────┐
	│  ArtifactSyncer          │  fetch each artifact, compare BLAKE3
	│                          │  fingerprints, replace atomically (0755)
	└────────────┬─────────────┘
	             ▼
	┌──────────────────────────┐
	│  Base-location bootstrap │  only when the location file is absent
	└────────────┬─────────────┘
	             ▼
	┌──────────────────────────┐
	│  ScheduleReconciler      │  render the crontab, rewrite and reload
	│                          │  cron only on a whitespace-trimmed mismatch
	└──────────────────────────┘

Artifacts that declare a restart service trigger one restart of that
service once the schedule step is done. A completion notice is sent after
every full pass and its failure never fails the pass.

# Fingerprints

Local and remote content is compared by a 32-byte BLAKE3 digest. A missing
local file never matches, so the artifact is installed. A file whose digest
matches is not touched at all: its bytes and modification time stay as
they were.

# Failure handling

A fetch failure is logged, counted in edgeagent_artifact_fetch_failures_total
and skipped; the remaining artifacts are still processed. Empty downloads
are treated as failures so a misbehaving mirror cannot truncate an
installed binary.
*/
package reconciler
