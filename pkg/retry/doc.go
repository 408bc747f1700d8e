// Package retry implements the bounded retry loops shared by every agent
// component: Do retries an operation until it succeeds and escalates once on
// exhaustion, Watch samples a classified outcome and escalates after a run of
// consecutive adverse observations.
package retry
