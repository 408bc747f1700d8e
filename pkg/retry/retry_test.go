package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects sleeps and remediation calls instead of waiting
type recorder struct {
	sleeps       []time.Duration
	remediations int
}

func (r *recorder) policy(p Policy) Policy {
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		r.sleeps = append(r.sleeps, d)
		return nil
	}
	p.Remediation = func(ctx context.Context) error {
		r.remediations++
		return nil
	}
	return p
}

func TestDelayFor(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"constant", Policy{Delay: time.Second, Backoff: BackoffNone}, 3, time.Second},
		{"exponential first", Policy{Delay: time.Second, Backoff: BackoffExponential}, 1, time.Second},
		{"exponential third", Policy{Delay: time.Second, Backoff: BackoffExponential}, 3, 4 * time.Second},
		{"exponential capped", Policy{Delay: time.Second, Backoff: BackoffExponential, MaxDelay: 3 * time.Second}, 5, 3 * time.Second},
		{"zero attempt", Policy{Delay: time.Second, Backoff: BackoffExponential}, 0, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.DelayFor(tt.attempt))
		})
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	rec := &recorder{}
	p := rec.policy(Policy{Name: "test", MaxAttempts: 3, Delay: time.Second})

	calls := 0
	v, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.sleeps)
	assert.Equal(t, 0, rec.remediations)
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	rec := &recorder{}
	p := rec.policy(Policy{Name: "test", MaxAttempts: 5, Delay: time.Second, Backoff: BackoffExponential})

	v, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		if attempt < 3 {
			return 0, errors.New("transient")
		}
		return attempt, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.sleeps)
	assert.Equal(t, 0, rec.remediations)
}

func TestDoExhaustsAndEscalatesOnce(t *testing.T) {
	rec := &recorder{}
	p := rec.policy(Policy{Name: "test", MaxAttempts: 4, Delay: time.Second, Backoff: BackoffExponential})

	boom := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (struct{}, error) {
		calls++
		return struct{}{}, boom
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 4, calls)
	// No pause after the final attempt
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.sleeps)
	assert.Equal(t, 1, rec.remediations)

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 4, ex.Attempts)
}

func TestDoPermanentStopsWithoutEscalation(t *testing.T) {
	rec := &recorder{}
	p := rec.policy(Policy{Name: "test", MaxAttempts: 5, Delay: time.Second})

	notFound := errors.New("device not found")
	calls := 0
	_, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, Permanent(notFound)
	})

	assert.Equal(t, notFound, err)
	assert.False(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.sleeps)
	assert.Equal(t, 0, rec.remediations)
}

func TestDoContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{Name: "test", MaxAttempts: 3, Delay: time.Hour}
	_, err := Do(ctx, p, func(ctx context.Context, attempt int) (int, error) {
		return 0, errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermanentNil(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
