package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(5, time.Second, clock.Now)

	// Test initial capacity
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	// Test exhaustion
	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	// Test refill after the period
	clock.Advance(time.Second)
	if !tb.Allow() {
		t.Error("Expected tokens to be refilled after waiting")
	}

	// Test reset
	tb.tokens = 0
	tb.Reset()
	if tb.tokens != tb.capacity {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestTokenBucketWaitHonorsContext(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() on empty bucket = %v, want deadline exceeded", err)
	}
}

func TestPerMinute(t *testing.T) {
	tb := PerMinute(0)
	if tb.capacity != 1 || tb.refillPeriod != time.Minute {
		t.Errorf("PerMinute(0) = %d per %v", tb.capacity, tb.refillPeriod)
	}
	if tb := PerMinute(20); tb.capacity != 20 {
		t.Errorf("PerMinute(20) capacity = %d", tb.capacity)
	}
}
