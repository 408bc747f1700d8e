package retry

import (
	"context"

	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
)

// Rules classifies the outcomes observed by Watch
type Rules[O comparable] struct {
	// Adverse outcomes increment the consecutive counter
	Adverse O

	// Stop outcomes end the loop immediately
	Stop []O
}

func (r Rules[O]) stops(o O) bool {
	for _, s := range r.Stop {
		if s == o {
			return true
		}
	}
	return false
}

// Result is what a Watch loop ended with
type Result[O comparable] struct {
	// Outcome is the last observed outcome
	Outcome O

	// Exhausted is true when the attempt budget ran out without a Stop
	// outcome
	Exhausted bool

	Attempts     int
	Remediations int
}

// Watch samples op up to MaxAttempts times. Every Adverse outcome increments
// a consecutive counter and any other outcome resets it. When the counter
// reaches Threshold the remediation fires once and the counter starts over.
// A Stop outcome returns at once.
func Watch[O comparable](ctx context.Context, p Policy, rules Rules[O], op func(ctx context.Context, attempt int) O) (Result[O], error) {
	logger := log.WithComponent("retry")
	max := p.attempts()

	var res Result[O]
	consecutive := 0
	for attempt := 1; attempt <= max; attempt++ {
		metrics.RetryAttempts.WithLabelValues(p.name()).Inc()

		outcome := op(ctx, attempt)
		res.Outcome = outcome
		res.Attempts = attempt

		if rules.stops(outcome) {
			return res, nil
		}

		if outcome == rules.Adverse {
			consecutive++
			logger.Debug().
				Str("operation", p.name()).
				Int("attempt", attempt).
				Int("consecutive", consecutive).
				Msg("Adverse outcome")
			if p.Threshold > 0 && consecutive >= p.Threshold {
				p.remediate(ctx)
				res.Remediations++
				consecutive = 0
			}
		} else {
			consecutive = 0
		}

		if attempt == max {
			break
		}
		if err := p.sleep(ctx, p.DelayFor(attempt)); err != nil {
			return res, err
		}
	}

	res.Exhausted = true
	return res, nil
}
