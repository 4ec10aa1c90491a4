package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"followsweep/pkg/channel"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/extractor"
	"followsweep/pkg/logger"
	"followsweep/pkg/retry"
)

// State is where the guard stands after its last probe
type State int

const (
	// Clear means no throttling indicator was seen.
	Clear State = iota
	// Suspected means the indicator was seen and a backoff is about to start.
	Suspected
	// Backoff means the guard is waiting out the throttle.
	Backoff
)

func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Suspected:
		return "suspected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// GuardConfig configures a Guard
type GuardConfig struct {
	// BaseWait is multiplied by the attempt number to get each backoff
	BaseWait time.Duration
	// Settle is waited after pressing the retry affordance
	Settle      time.Duration
	MaxAttempts int
	Wait        retry.WaitFunc
	Logger      logger.Logger
	Subject     string
}

// Guard detects the remote page's throttle indicator and waits it out.
// The attempt counter persists across Check calls until a clear probe.
type Guard struct {
	probe       channel.Locator
	backoff     retry.BackoffStrategy
	settle      time.Duration
	maxAttempts int
	wait        retry.WaitFunc
	log         logger.Logger
	subject     string

	mu      sync.Mutex
	state   State
	attempt int
}

// NewGuard creates a guard with linear backoff of BaseWait per attempt
func NewGuard(cfg GuardConfig) *Guard {
	g := &Guard{
		probe:       extractor.RetryButton,
		backoff:     retry.Multiples(cfg.BaseWait),
		settle:      cfg.Settle,
		maxAttempts: cfg.MaxAttempts,
		wait:        cfg.Wait,
		log:         cfg.Logger,
		subject:     cfg.Subject,
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 10
	}
	if g.wait == nil {
		g.wait = retry.Wait
	}
	if g.log == nil {
		g.log = logger.GetLogger()
	}
	return g
}

// State returns the current state
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Attempts returns the number of consecutive throttled probes
func (g *Guard) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempt
}

func (g *Guard) set(s State, attempt int) {
	g.mu.Lock()
	g.state = s
	g.attempt = attempt
	g.mu.Unlock()
}

// Check probes page and returns nil once it is clear. While throttled it
// waits attempt*BaseWait, presses the retry affordance, waits Settle and
// probes again. It fails with RateLimitExhausted past MaxAttempts, or with
// the context's error when cancelled.
func (g *Guard) Check(ctx context.Context, page channel.Page) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		btn, err := page.Query(ctx, g.probe)
		if errors.Is(err, channel.ErrNotFound) {
			g.set(Clear, 0)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !page.Connected() {
				return errs.Wrap(errs.ErrorTypeChannelDisconnected, "ratelimit.probe", err)
			}
			// an unreadable probe is not evidence of throttling
			g.log.WithError(err).Warn("Rate limit probe failed")
			return nil
		}

		attempt := g.Attempts() + 1
		g.set(Suspected, attempt)
		if attempt > g.maxAttempts {
			return errs.New(errs.ErrorTypeRateLimitExhausted, "ratelimit.check", "retry limit reached")
		}

		delay := g.backoff.NextDelay(attempt)
		g.set(Backoff, attempt)
		g.log.WithFields(map[string]interface{}{
			"subject": g.subject,
			"attempt": attempt,
			"wait":    delay,
		}).Warn("Rate limit detected, backing off")
		if err := g.wait(ctx, delay); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := btn.Click(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.WithError(err).Debug("Retry affordance click failed")
		}
		if err := g.wait(ctx, g.settle); err != nil {
			return err
		}
	}
}
