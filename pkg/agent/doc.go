// Package agent wires configuration into the components and exposes one
// method per pass. Every pass is short-lived: it builds what it needs from
// the Env, runs to completion and returns an Outcome for the journal.
package agent
