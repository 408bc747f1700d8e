package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
)

// Backoff selects how the delay grows between attempts
type Backoff string

const (
	BackoffNone        Backoff = "none"
	BackoffExponential Backoff = "exponential"
)

// ErrExhausted is matched by errors.Is when every attempt of Do failed
var ErrExhausted = errors.New("retry budget exhausted")

// Policy configures a retry loop. A Policy is a value and is never mutated
// by the loops that use it.
type Policy struct {
	// Name labels logs and metrics for this loop
	Name string

	// MaxAttempts is the total number of invocations, including the first
	MaxAttempts int

	// Delay is the pause after the first failed attempt
	Delay time.Duration

	// Backoff doubles Delay after every attempt when exponential
	Backoff Backoff

	// MaxDelay caps the exponential delay. Zero means uncapped.
	MaxDelay time.Duration

	// Threshold is the number of consecutive adverse outcomes that fire
	// Remediation in Watch. Do ignores it.
	Threshold int

	// Remediation is the escalation action. It may be nil.
	Remediation func(ctx context.Context) error

	// Sleep replaces the context-aware sleep, mostly for tests
	Sleep func(ctx context.Context, d time.Duration) error
}

// DelayFor returns the pause after the given 1-based attempt
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Delay
	if p.Backoff != BackoffExponential {
		return d
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) name() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// remediate fires the remediation action. A failing remediation is logged
// and never changes the outcome of the loop.
func (p Policy) remediate(ctx context.Context) {
	if p.Remediation == nil {
		return
	}
	metrics.Remediations.WithLabelValues(p.name()).Inc()
	logger := log.WithComponent("retry")
	logger.Warn().Str("operation", p.name()).Msg("Escalating to remediation")
	if err := p.Remediation(ctx); err != nil {
		logger.Error().Err(err).Str("operation", p.name()).Msg("Remediation failed")
	}
}

// Sleep pauses for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExhaustedError is returned by Do after the last attempt failed
type ExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts failed: %v", e.Operation, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. Do returns it unwrapped on the spot
// and does not escalate.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do invokes op until it succeeds or the attempt budget is spent. Failed
// attempts are separated by the policy delay; there is no pause after the
// final attempt. On exhaustion Remediation fires once and the returned error
// matches ErrExhausted and wraps the last failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	logger := log.WithComponent("retry")
	max := p.attempts()

	var last error
	for attempt := 1; attempt <= max; attempt++ {
		metrics.RetryAttempts.WithLabelValues(p.name()).Inc()

		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		last = err

		logger.Warn().
			Err(err).
			Str("operation", p.name()).
			Int("attempt", attempt).
			Int("max_attempts", max).
			Msg("Attempt failed")

		if attempt == max {
			break
		}
		if err := p.sleep(ctx, p.DelayFor(attempt)); err != nil {
			return zero, err
		}
	}

	p.remediate(ctx)
	return zero, &ExhaustedError{Operation: p.name(), Attempts: max, Last: last}
}
