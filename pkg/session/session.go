// Package session owns the single collection session a process may run.
//
// A Coordinator moves between Idle, Running, Cancelling and Stopped. Start is
// rejected while a session is Running or Cancelling; it is never queued. Stop
// requests cancellation and returns immediately; the loop observes it at its
// next checkpoint.
package session

import (
	"context"
	"sync"
	"time"

	"followsweep/pkg/channel"
	"followsweep/pkg/collector"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/logger"
)

// State of the coordinator
type State int

const (
	Idle State = iota
	Running
	Cancelling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Cancelling:
		return "cancelling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Runner runs one collection session on an open page
type Runner interface {
	Run(ctx context.Context, page channel.Page, subject string) collector.Result
}

// PageOpener supplies a page showing subject's followers
type PageOpener func(ctx context.Context, subject string) (channel.Page, error)

// Snapshot is a point-in-time view of the coordinator
type Snapshot struct {
	State      State     `json:"state"`
	Subject    string    `json:"subject,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Iterations int       `json:"iterations"`
	Written    int       `json:"written"`
	Error      string    `json:"error,omitempty"`
}

// Option customises a Coordinator
type Option func(*Coordinator)

// WithBaseContext sets the context every session derives from. Cancelling it
// stops the running session.
func WithBaseContext(ctx context.Context) Option { return func(c *Coordinator) { c.base = ctx } }

// WithFatalHandler is called when a session ends on a process-fatal error
func WithFatalHandler(fn func(error)) Option { return func(c *Coordinator) { c.onFatal = fn } }

// WithFinishHandler is called after every session ends
func WithFinishHandler(fn func(Snapshot)) Option { return func(c *Coordinator) { c.onFinish = fn } }

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option { return func(c *Coordinator) { c.log = l } }

// Coordinator runs at most one session at a time
type Coordinator struct {
	runner   Runner
	open     PageOpener
	base     context.Context
	onFatal  func(error)
	onFinish func(Snapshot)
	log      logger.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      State
	subject    string
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc
	done       chan struct{}
	result     *collector.Result
}

// New creates an idle coordinator
func New(runner Runner, open PageOpener, opts ...Option) *Coordinator {
	c := &Coordinator{
		runner: runner,
		open:   open,
		base:   context.Background(),
		log:    logger.GetLogger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start launches a session for subject in the background. It returns an
// AlreadyRunning error if a session is Running or Cancelling.
func (c *Coordinator) Start(subject string) error {
	if subject == "" {
		return errs.New(errs.ErrorTypeInvalidInput, "session.start", "subject account is required")
	}

	c.mu.Lock()
	if c.state == Running || c.state == Cancelling {
		current := c.subject
		c.mu.Unlock()
		return errs.New(errs.ErrorTypeAlreadyRunning, "session.start", "collecting "+current)
	}
	ctx, cancel := context.WithCancel(c.base)
	done := make(chan struct{})
	c.state = Running
	c.subject = subject
	c.startedAt = c.now()
	c.finishedAt = time.Time{}
	c.cancel = cancel
	c.done = done
	c.result = nil
	c.mu.Unlock()

	c.log.WithField("subject", subject).Info("Session started")
	go c.run(ctx, subject, done)
	return nil
}

func (c *Coordinator) run(ctx context.Context, subject string, done chan struct{}) {
	var res collector.Result
	page, err := c.open(ctx, subject)
	switch {
	case err != nil && ctx.Err() != nil:
		res = collector.Result{Outcome: collector.Cancelled}
	case err != nil:
		res = collector.Result{Outcome: collector.Failed, Err: err}
	default:
		res = c.runner.Run(ctx, page, subject)
		if cerr := page.Close(); cerr != nil {
			c.log.WithError(cerr).Debug("Page close failed")
		}
	}
	c.finish(res, done)
}

func (c *Coordinator) finish(res collector.Result, done chan struct{}) {
	c.mu.Lock()
	c.state = Stopped
	c.finishedAt = c.now()
	c.result = &res
	if c.cancel != nil {
		c.cancel()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	defer close(done)

	if errs.IsProcessFatal(res.Err) && c.onFatal != nil {
		c.onFatal(res.Err)
	}
	if c.onFinish != nil {
		c.onFinish(snap)
	}
}

// Stop requests cancellation of the running session. It reports whether a
// session was running.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return false
	}
	c.state = Cancelling
	c.cancel()
	c.log.WithField("subject", c.subject).Info("Session stop requested")
	return true
}

// Running reports whether a session is Running or Cancelling
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Running || c.state == Cancelling
}

// Subject returns the subject of the current or last session
func (c *Coordinator) Subject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject
}

// Snapshot returns the current state
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      c.state,
		Subject:    c.subject,
		StartedAt:  c.startedAt,
		FinishedAt: c.finishedAt,
	}
	if c.result != nil {
		s.Outcome = c.result.Outcome.String()
		s.Iterations = c.result.Iterations
		s.Written = c.result.Written
		if c.result.Err != nil {
			s.Error = c.result.Err.Error()
		}
	}
	return s
}

// Wait blocks until the current session ends and returns its result. With no
// session ever started it returns a zero Result immediately.
func (c *Coordinator) Wait(ctx context.Context) (collector.Result, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return collector.Result{}, nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return collector.Result{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return collector.Result{}, nil
	}
	return *c.result, nil
}
