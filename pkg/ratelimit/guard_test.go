package ratelimit

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"followsweep/pkg/channel"
	"followsweep/pkg/channel/channeltest"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/extractor"
	"followsweep/pkg/logger"
)

// throttled returns a page that shows the retry affordance for the next n
// probes; each click on it consumes one.
func throttled(n int) (*channeltest.Page, *channeltest.Node) {
	var mu sync.Mutex
	remaining := n
	page := channeltest.NewPage()
	btn := &channeltest.Node{}
	btn.OnClick = func() {
		mu.Lock()
		remaining--
		mu.Unlock()
	}
	page.QueryFunc = func(ctx context.Context, loc channel.Locator) (channel.Node, error) {
		mu.Lock()
		defer mu.Unlock()
		if loc == extractor.RetryButton && remaining > 0 {
			return btn, nil
		}
		return nil, channel.ErrNotFound
	}
	return page, btn
}

func newTestGuard(sleeps *channeltest.Sleeps, max int) *Guard {
	return NewGuard(GuardConfig{
		BaseWait:    time.Minute,
		Settle:      10 * time.Second,
		MaxAttempts: max,
		Wait:        sleeps.Wait,
		Logger:      logger.NewNopLogger(),
		Subject:     "alice",
	})
}

func TestGuardClearPage(t *testing.T) {
	sleeps := &channeltest.Sleeps{}
	g := newTestGuard(sleeps, 10)
	page, _ := throttled(0)

	if err := g.Check(context.Background(), page); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if g.State() != Clear || g.Attempts() != 0 {
		t.Errorf("state = %v attempts = %d, want clear/0", g.State(), g.Attempts())
	}
	if len(sleeps.Delays()) != 0 {
		t.Errorf("clear page slept %v", sleeps.Delays())
	}
}

func TestGuardBackoffGrowsLinearly(t *testing.T) {
	sleeps := &channeltest.Sleeps{}
	g := newTestGuard(sleeps, 10)
	page, btn := throttled(3)

	if err := g.Check(context.Background(), page); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	want := []time.Duration{
		time.Minute, 10 * time.Second,
		2 * time.Minute, 10 * time.Second,
		3 * time.Minute, 10 * time.Second,
	}
	if got := sleeps.Delays(); !reflect.DeepEqual(got, want) {
		t.Errorf("delays = %v, want %v", got, want)
	}
	if btn.Clicks() != 3 {
		t.Errorf("retry clicked %d times, want 3", btn.Clicks())
	}
	if g.Attempts() != 0 || g.State() != Clear {
		t.Errorf("after clear pass attempts = %d state = %v, want 0/clear", g.Attempts(), g.State())
	}
}

func TestGuardExhaustion(t *testing.T) {
	sleeps := &channeltest.Sleeps{}
	g := newTestGuard(sleeps, 2)
	page, btn := throttled(100)

	err := g.Check(context.Background(), page)
	if !errors.Is(err, errs.ErrRateLimitExhausted) {
		t.Fatalf("Check() error = %v, want rate limit exhausted", err)
	}
	if btn.Clicks() != 2 {
		t.Errorf("retry clicked %d times, want 2", btn.Clicks())
	}
	if !errs.IsSessionFatal(err) {
		t.Error("exhaustion should end the session")
	}
}

func TestGuardCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleeps := &channeltest.Sleeps{Hook: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}}
	g := newTestGuard(sleeps, 10)
	page, btn := throttled(5)

	err := g.Check(ctx, page)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Check() error = %v, want canceled", err)
	}
	if btn.Clicks() != 0 {
		t.Error("retry affordance pressed after cancellation")
	}
}

func TestGuardProbeFailureOnDeadPage(t *testing.T) {
	g := newTestGuard(&channeltest.Sleeps{}, 10)
	page := channeltest.NewPage()
	page.QueryFunc = func(ctx context.Context, loc channel.Locator) (channel.Node, error) {
		return nil, errors.New("target closed")
	}
	page.Disconnect()

	err := g.Check(context.Background(), page)
	if !errors.Is(err, errs.ErrChannelDisconnected) {
		t.Errorf("Check() error = %v, want channel disconnected", err)
	}
}
