/*
Package storage keeps a local journal of agent passes in BoltDB.

Every invocation of the agent (watchdog, heartbeat, update and so on)
appends one PassRecord when it finishes. Records live in a single "passes"
bucket keyed by the big-endian start time followed by the 16-byte pass
UUID, so a cursor walks them in chronological order and List can return the
newest first by iterating backwards.

The journal is bounded: after recording, callers prune it to a fixed number
of entries so the database stays small on flash storage.

Passes started by cron may overlap. BoltDB holds an exclusive file lock
while the database is open, so NewBoltStore waits a few seconds for a
concurrent pass before giving up.
*/
package storage
