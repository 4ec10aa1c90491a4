package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "followsweep/pkg/errors"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
	}

	for _, test := range tests {
		if delay := backoff.NextDelay(test.attempt); delay != test.expected {
			t.Errorf("attempt %d: expected %v, got %v", test.attempt, test.expected, delay)
		}
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	delays := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		delay := backoff.NextDelay(2)
		if delay < 140*time.Millisecond || delay > 260*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±30%% of 200ms", delay)
		}
		delays[delay] = true
	}
	if len(delays) < 2 {
		t.Error("expected jitter to produce different delays")
	}
}

func TestLinearBackoff(t *testing.T) {
	backoff := &LinearBackoff{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
		Increment: 100 * time.Millisecond,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{5, 500 * time.Millisecond},
		{6, 500 * time.Millisecond},
	}

	for _, test := range tests {
		if delay := backoff.NextDelay(test.attempt); delay != test.expected {
			t.Errorf("attempt %d: expected %v, got %v", test.attempt, test.expected, delay)
		}
	}
}

func TestMultiplesIsUncapped(t *testing.T) {
	backoff := Multiples(time.Minute)
	for attempt := 1; attempt <= 10; attempt++ {
		want := time.Duration(attempt) * time.Minute
		if got := backoff.NextDelay(attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestJitter(t *testing.T) {
	if got := Jitter(5*time.Second, 0); got != 5*time.Second {
		t.Errorf("expected no spread to return base, got %v", got)
	}
	for i := 0; i < 50; i++ {
		got := Jitter(5*time.Second, time.Second)
		if got < 5*time.Second || got >= 6*time.Second {
			t.Fatalf("jitter %v outside [5s, 6s)", got)
		}
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancelled context to short-circuit zero wait, got %v", err)
	}

	start := time.Now()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("wait did not return promptly")
	}
}

func TestRetryWithSuccess(t *testing.T) {
	attempts := 0
	var waited []time.Duration

	err := Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		RetryIf:     func(err error) bool { return true },
		Context:     context.Background(),
		Wait: func(_ context.Context, d time.Duration) error {
			waited = append(waited, d)
			return nil
		},
	})

	if err != nil {
		t.Errorf("expected success after retries, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(waited) != 2 {
		t.Errorf("expected 2 waits, got %d", len(waited))
	}
}

func TestRetryWithMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	cause := errors.New("persistent error")

	err := Do(func() error {
		attempts++
		return cause
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
	})

	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnSessionFatal(t *testing.T) {
	attempts := 0
	err := Do(func() error {
		attempts++
		return errs.Wrap(errs.ErrorTypeChannelDisconnected, "navigate", errors.New("browser gone"))
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
	})

	if !errors.Is(err, errs.ErrChannelDisconnected) {
		t.Errorf("expected disconnect error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("flaky"), true},
		{"cancelled", context.Canceled, false},
		{"store", errs.Wrap(errs.ErrorTypeStoreIO, "write", errors.New("io")), false},
		{"rate limit", errs.ErrRateLimitExhausted, false},
		{"not logged in", errs.ErrNotLoggedIn, false},
		{"layout", errs.ErrLayoutTimeout, true},
	}
	for _, tt := range tests {
		if got := DefaultRetryIf(tt.err); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 100 * time.Millisecond},
		RetryIf:     func(err error) bool { return true },
		Context:     ctx,
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts before cancellation, got %d", attempts)
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("temporary error")
		}
		return "https://x.com/alice", nil
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if result != "https://x.com/alice" {
		t.Errorf("unexpected result %q", result)
	}
}
