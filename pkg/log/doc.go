/*
Package log provides structured logging for the edge agent using zerolog.

A single global Logger is configured once per invocation with Init. Each pass
then calls WithPass so that every line emitted during the pass carries the
pass_id and command fields, and components derive their own child loggers with
WithComponent:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: false})
	log.WithPass(passID, "sync-node")
	logger := log.WithComponent("nodesync")
	logger.Info().Str("uuid", node.UUID).Msg("Node store updated")

Output defaults to stderr. Console output is uncoloured because the agent runs
under cron and its output ends up in syslog or mail.

Leveled adapts a zerolog logger to the key/value interface used by the
retrying HTTP client, so transport retries show up in the same stream.
*/
package log
