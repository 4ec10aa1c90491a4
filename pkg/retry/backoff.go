package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay before the given 1-based attempt
	NextDelay(attempt int) time.Duration
	// Reset resets the backoff strategy to initial state
	Reset()
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultExponentialBackoff returns the backoff used for page navigation
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	return finish(delay, eb.MaxDelay, eb.JitterFactor)
}

// Reset is a no-op; the delay is a pure function of the attempt number
func (eb *ExponentialBackoff) Reset() {}

// LinearBackoff grows the delay by Increment on every attempt.
// A zero MaxDelay leaves the delay uncapped.
type LinearBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Increment    time.Duration
	JitterFactor float64
}

// Multiples returns a jitter-free backoff whose nth delay is n*unit
func Multiples(unit time.Duration) *LinearBackoff {
	return &LinearBackoff{BaseDelay: unit, Increment: unit}
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))
	return finish(delay, lb.MaxDelay, lb.JitterFactor)
}

// Reset is a no-op for linear backoff
func (lb *LinearBackoff) Reset() {}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Reset is a no-op for constant backoff
func (cb *ConstantBackoff) Reset() {}

func finish(delay float64, max time.Duration, jitterFactor float64) time.Duration {
	if max > 0 && delay > float64(max) {
		delay = float64(max)
	}
	if jitterFactor > 0 {
		jitter := delay * jitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Jitter returns base plus a random duration in [0, spread)
func Jitter(base, spread time.Duration) time.Duration {
	if spread <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(spread)))
}

// WaitFunc sleeps for d or returns early with the context's error.
// Components take one so tests can record delays instead of sleeping.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Wait waits for the specified duration or until context is cancelled.
// An already-cancelled context returns immediately even for a zero delay.
func Wait(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
