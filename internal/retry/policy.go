// Package retry runs outbound operations with bounded exponential backoff and
// per-call jitter.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

const jitterFraction = 0.25

type Options struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterEnabled     bool
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterEnabled:     true,
	}
}

// Normalize clamps nonsensical values instead of rejecting them.
func (o Options) Normalize() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay < 0 {
		o.InitialDelay = 0
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = o.InitialDelay
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = 1
	}
	return o
}

type Result[T any] struct {
	Value    T
	Success  bool
	Attempts int
	Elapsed  time.Duration
	Err      error
}

type Policy struct {
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

type PolicyOption func(*Policy)

// WithSleep replaces the context-aware sleeper, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) PolicyOption {
	return func(p *Policy) { p.sleep = fn }
}

// WithRand replaces the jitter source; fn must return values in [0, 1).
func WithRand(fn func() float64) PolicyOption {
	return func(p *Policy) { p.rand = fn }
}

func New(opts Options, options ...PolicyOption) *Policy {
	p := &Policy{
		opts:  opts.Normalize(),
		sleep: sleepContext,
		rand:  rand.Float64,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

func (p *Policy) Options() Options {
	return p.opts
}

// Delay returns the wait before the retry that follows attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := float64(p.opts.InitialDelay) * math.Pow(p.opts.BackoffMultiplier, float64(attempt-1))
	capped := math.Min(base, float64(p.opts.MaxDelay))

	if p.opts.JitterEnabled && capped > 0 {
		capped += capped * jitterFraction * (2*p.rand() - 1)
	}
	if capped < 0 {
		capped = 0
	}
	return time.Duration(capped)
}

// Execute runs op up to MaxRetries+1 times. Transient errors and a true
// shouldRetry verdict trigger another attempt; permanent errors and
// cancellation end the loop at once. When shouldRetry still asks for a retry
// after the last attempt the final value is returned as a success.
func Execute[T any](
	ctx context.Context,
	p *Policy,
	operation string,
	op func(context.Context) (T, error),
	shouldRetry func(T) bool,
) Result[T] {
	start := time.Now()
	maxAttempts := p.opts.MaxRetries + 1

	var result Result[T]

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return failResult(result, operation, start, err)
		}
		result.Attempts = attempt

		value, err := op(ctx)
		result.Value = value

		if err != nil {
			if ctx.Err() != nil {
				return failResult(result, operation, start, ctx.Err())
			}

			kind := Classify(err)
			if kind != KindTransient || attempt == maxAttempts {
				return failResult(result, operation, start, err)
			}

			if sleepErr := p.wait(ctx, operation, attempt, err); sleepErr != nil {
				return failResult(result, operation, start, sleepErr)
			}
			continue
		}

		if shouldRetry != nil && attempt < maxAttempts && shouldRetry(value) {
			if sleepErr := p.wait(ctx, operation, attempt, nil); sleepErr != nil {
				return failResult(result, operation, start, sleepErr)
			}
			continue
		}

		result.Success = true
		result.Elapsed = time.Since(start)

		evt := log.Debug()
		if attempt > 1 {
			evt = log.Info()
		}
		evt.
			Str("operation", operation).
			Int("attempts", attempt).
			Dur("elapsed", result.Elapsed).
			Msg("operation succeeded")

		return result
	}

	result.Elapsed = time.Since(start)
	return result
}

// ExecuteBool retries whenever op reports false.
func ExecuteBool(ctx context.Context, p *Policy, operation string, op func(context.Context) (bool, error)) Result[bool] {
	return Execute(ctx, p, operation, op, func(ok bool) bool { return !ok })
}

func (p *Policy) wait(ctx context.Context, operation string, attempt int, cause error) error {
	delay := p.Delay(attempt)

	evt := log.Warn().
		Str("operation", operation).
		Int("attempt", attempt).
		Int("maxAttempts", p.opts.MaxRetries+1).
		Dur("delay", delay)
	if cause != nil {
		evt = evt.Err(cause)
		if status := StatusCodeOf(cause); status != 0 {
			evt = evt.Int("status", status)
		}
	}
	evt.Msg("retrying operation")

	return p.sleep(ctx, delay)
}

func failResult[T any](result Result[T], operation string, start time.Time, err error) Result[T] {
	result.Success = false
	result.Err = err
	result.Elapsed = time.Since(start)

	kind := Classify(err)
	evt := log.Error()
	if kind == KindCancelled {
		evt = log.Warn()
	}
	evt.
		Err(err).
		Str("operation", operation).
		Str("kind", kind.String()).
		Int("attempts", result.Attempts).
		Dur("elapsed", result.Elapsed).
		Msg("operation failed")

	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
