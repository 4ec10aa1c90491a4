package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followsweep/pkg/channel"
	"followsweep/pkg/channel/channeltest"
	"followsweep/pkg/collector"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/logger"
)

// blockingRunner runs until its context ends, or returns result when release
// is closed.
type blockingRunner struct {
	started chan string
	release chan struct{}
	result  collector.Result
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 4), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, page channel.Page, subject string) collector.Result {
	r.started <- subject
	select {
	case <-ctx.Done():
		return collector.Result{Outcome: collector.Cancelled}
	case <-r.release:
		return r.result
	}
}

func opener(pages *[]*channeltest.Page, mu *sync.Mutex) PageOpener {
	return func(ctx context.Context, subject string) (channel.Page, error) {
		p := channeltest.NewPage()
		mu.Lock()
		*pages = append(*pages, p)
		mu.Unlock()
		return p, nil
	}
}

func waitResult(t *testing.T, c *Coordinator) collector.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestStartRejectsSecondSession(t *testing.T) {
	var pages []*channeltest.Page
	var mu sync.Mutex
	runner := newBlockingRunner()
	c := New(runner, opener(&pages, &mu), WithLogger(logger.NewNopLogger()))

	require.NoError(t, c.Start("alice"))
	<-runner.started

	err := c.Start("bob")
	assert.ErrorIs(t, err, errs.ErrAlreadyRunning)
	assert.Equal(t, "alice", c.Subject())
	assert.Equal(t, Running, c.Snapshot().State)

	close(runner.release)
	waitResult(t, c)
}

func TestStopCancelsAndAllowsRestart(t *testing.T) {
	var pages []*channeltest.Page
	var mu sync.Mutex
	runner := newBlockingRunner()
	var finished []Snapshot
	c := New(runner, opener(&pages, &mu),
		WithLogger(logger.NewNopLogger()),
		WithFinishHandler(func(s Snapshot) { finished = append(finished, s) }))

	assert.False(t, c.Stop(), "nothing to stop while idle")

	require.NoError(t, c.Start("alice"))
	<-runner.started
	assert.True(t, c.Stop())
	assert.False(t, c.Stop(), "already cancelling")

	res := waitResult(t, c)
	assert.Equal(t, collector.Cancelled, res.Outcome)

	snap := c.Snapshot()
	assert.Equal(t, Stopped, snap.State)
	assert.Equal(t, "cancelled", snap.Outcome)
	require.Len(t, finished, 1)

	mu.Lock()
	assert.True(t, pages[0].Closed(), "page released after the session")
	mu.Unlock()

	require.NoError(t, c.Start("alice"))
	<-runner.started
	c.Stop()
	waitResult(t, c)
}

func TestStoreFailureCallsFatalHandler(t *testing.T) {
	var pages []*channeltest.Page
	var mu sync.Mutex
	runner := newBlockingRunner()
	storeErr := errs.Wrap(errs.ErrorTypeStoreIO, "store.upsert", errors.New("disk full"))
	runner.result = collector.Result{Outcome: collector.Failed, Err: storeErr}

	fatal := make(chan error, 1)
	c := New(runner, opener(&pages, &mu),
		WithLogger(logger.NewNopLogger()),
		WithFatalHandler(func(err error) { fatal <- err }))

	require.NoError(t, c.Start("alice"))
	close(runner.release)
	res := waitResult(t, c)

	assert.Equal(t, collector.Failed, res.Outcome)
	select {
	case err := <-fatal:
		assert.True(t, errs.IsProcessFatal(err))
	case <-time.After(5 * time.Second):
		t.Fatal("fatal handler not called")
	}
	assert.Contains(t, c.Snapshot().Error, "disk full")
}

func TestOpenFailureEndsSessionFailed(t *testing.T) {
	open := func(ctx context.Context, subject string) (channel.Page, error) {
		return nil, errs.New(errs.ErrorTypeNotLoggedIn, "browser.detect", "no profile link")
	}
	c := New(newBlockingRunner(), open, WithLogger(logger.NewNopLogger()))

	require.NoError(t, c.Start("alice"))
	res := waitResult(t, c)

	assert.Equal(t, collector.Failed, res.Outcome)
	assert.ErrorIs(t, res.Err, errs.ErrNotLoggedIn)
	assert.False(t, c.Running())
}

func TestStartRequiresSubject(t *testing.T) {
	c := New(newBlockingRunner(), nil, WithLogger(logger.NewNopLogger()))
	assert.ErrorIs(t, c.Start(""), errs.ErrInvalidInput)
	assert.Equal(t, Idle, c.Snapshot().State)

	res, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestBaseContextCancellationStopsSession(t *testing.T) {
	var pages []*channeltest.Page
	var mu sync.Mutex
	runner := newBlockingRunner()
	base, cancel := context.WithCancel(context.Background())
	c := New(runner, opener(&pages, &mu), WithBaseContext(base), WithLogger(logger.NewNopLogger()))

	require.NoError(t, c.Start("alice"))
	<-runner.started
	cancel()

	assert.Equal(t, collector.Cancelled, waitResult(t, c).Outcome)
}
