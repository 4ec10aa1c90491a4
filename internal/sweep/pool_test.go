package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "followsweep/pkg/errors"
	"followsweep/pkg/models"
)

// mockRemover records calls and fails for configured ids
type mockRemover struct {
	mu      sync.Mutex
	removed map[string]bool
	fail    map[string]error
	delay   time.Duration
	active  int32
	peak    int32
}

func newMockRemover() *mockRemover {
	return &mockRemover{removed: make(map[string]bool), fail: make(map[string]error)}
}

func (m *mockRemover) RemoveRecord(ctx context.Context, sourceID string, block bool) error {
	n := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		p := atomic.LoadInt32(&m.peak)
		if n <= p || atomic.CompareAndSwapInt32(&m.peak, p, n) {
			break
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[sourceID]; ok {
		return err
	}
	m.removed[sourceID] = block
	return nil
}

func (m *mockRemover) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.removed)
}

func records(n int) []models.FollowerRecord {
	out := make([]models.FollowerRecord, n)
	for i := range out {
		id := fmt.Sprintf("user%d", i)
		out[i] = models.FollowerRecord{SourceID: id, Handle: "@" + id}
	}
	return out
}

func TestRunRemovesEveryRecord(t *testing.T) {
	rm := newMockRemover()
	var seen int32
	summary := Run(context.Background(), rm, records(10), true, 3, nil, func(Result) {
		atomic.AddInt32(&seen, 1)
	})

	assert.Equal(t, 10, summary.Done)
	assert.Empty(t, summary.Failed)
	assert.Zero(t, summary.Skipped)
	assert.NoError(t, summary.Err)
	assert.EqualValues(t, 10, atomic.LoadInt32(&seen))
	assert.Equal(t, 10, rm.count())
	assert.True(t, rm.removed["user4"], "block flag passed through")
	assert.Equal(t, "10 done, 0 failed", summary.String())
}

func TestRunKeepsGoingPastSoftFailures(t *testing.T) {
	rm := newMockRemover()
	rm.fail["user2"] = errs.New(errs.ErrorTypeNotFound, "browser.remove", "menu not found")
	rm.fail["user5"] = errors.New("click failed")

	summary := Run(context.Background(), rm, records(8), false, 2, nil, nil)

	assert.Equal(t, 6, summary.Done)
	require.Len(t, summary.Failed, 2)
	assert.Zero(t, summary.Skipped)
	assert.NoError(t, summary.Err)
	ids := []string{summary.Failed[0].Job.SourceID, summary.Failed[1].Job.SourceID}
	assert.ElementsMatch(t, []string{"user2", "user5"}, ids)
}

func TestRunAbortsOnExhaustedRateLimit(t *testing.T) {
	rm := newMockRemover()
	rm.fail["user0"] = errs.New(errs.ErrorTypeRateLimitExhausted, "browser.remove", "too many requests")

	summary := Run(context.Background(), rm, records(50), false, 1, nil, nil)

	require.Error(t, summary.Err)
	kind, ok := errs.TypeOf(summary.Err)
	require.True(t, ok)
	assert.Equal(t, errs.ErrorTypeRateLimitExhausted, kind)
	assert.Positive(t, summary.Skipped)
	assert.Equal(t, 50, summary.Done+len(summary.Failed)+summary.Skipped)
	assert.Contains(t, summary.String(), "skipped")
}

func TestRunAbortsWhenLoggedOut(t *testing.T) {
	rm := newMockRemover()
	rm.fail["user0"] = errs.New(errs.ErrorTypeNotLoggedIn, "browser.remove", "login wall")

	summary := Run(context.Background(), rm, records(20), false, 1, nil, nil)
	require.Error(t, summary.Err)
	assert.Less(t, rm.count(), 20)
}

func TestRunStopsWithContext(t *testing.T) {
	rm := newMockRemover()
	rm.delay = 20 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	summary := Run(ctx, rm, records(100), false, 2, nil, nil)

	assert.ErrorIs(t, summary.Err, context.DeadlineExceeded)
	assert.Positive(t, summary.Skipped)
	assert.Equal(t, 100, summary.Done+len(summary.Failed)+summary.Skipped)
}

func TestWorkerPoolConcurrency(t *testing.T) {
	rm := newMockRemover()
	rm.delay = 20 * time.Millisecond

	summary := Run(context.Background(), rm, records(12), false, 4, nil, nil)

	assert.Equal(t, 12, summary.Done)
	assert.LessOrEqual(t, atomic.LoadInt32(&rm.peak), int32(4))
	assert.Greater(t, atomic.LoadInt32(&rm.peak), int32(1))
}

func TestSubmitAfterAbort(t *testing.T) {
	rm := newMockRemover()
	rm.fail["user0"] = errs.New(errs.ErrorTypeChannelDisconnected, "browser.remove", "browser gone")

	pool := NewWorkerPool(context.Background(), 1, rm, nil)
	pool.Start()
	require.NoError(t, pool.Submit(Job{SourceID: "user0"}))
	r := <-pool.Results()
	require.Error(t, r.Err)

	require.Eventually(t, func() bool { return pool.Err() != nil }, time.Second, 5*time.Millisecond)
	assert.Error(t, pool.Submit(Job{SourceID: "user1"}))
	pool.Stop()
	for range pool.Results() {
	}
}

func TestNewWorkerPoolClampsWorkers(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 0, newMockRemover(), nil)
	assert.Equal(t, 1, pool.numWorkers)
	pool.Start()
	pool.Stop()
}
