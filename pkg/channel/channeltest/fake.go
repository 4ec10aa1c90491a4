// Package channeltest provides scripted in-memory implementations of
// channel.Page and channel.Node.
package channeltest

import (
	"context"
	"sync"
	"time"

	"followsweep/pkg/channel"
)

// Page is a scriptable channel.Page. Unset hooks fall back to inert defaults:
// queries find nothing and Eval returns "".
type Page struct {
	EvalFunc     func(ctx context.Context, js string) (string, error)
	QueryFunc    func(ctx context.Context, loc channel.Locator) (channel.Node, error)
	QueryAllFunc func(ctx context.Context, loc channel.Locator) ([]channel.Node, error)
	WaitForFunc  func(ctx context.Context, loc channel.Locator, timeout time.Duration) (channel.Node, error)
	NavigateErr  error

	mu          sync.Mutex
	navigations []string
	evals       []string
	closed      bool
	gone        chan struct{}
	goneOnce    sync.Once
}

var _ channel.Page = (*Page)(nil)

// NewPage returns a connected Page with no script.
func NewPage() *Page {
	return &Page{gone: make(chan struct{})}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.NavigateErr
}

func (p *Page) Query(ctx context.Context, loc channel.Locator) (channel.Node, error) {
	if p.QueryFunc != nil {
		return p.QueryFunc(ctx, loc)
	}
	return nil, channel.ErrNotFound
}

func (p *Page) QueryAll(ctx context.Context, loc channel.Locator) ([]channel.Node, error) {
	if p.QueryAllFunc != nil {
		return p.QueryAllFunc(ctx, loc)
	}
	return nil, nil
}

func (p *Page) WaitFor(ctx context.Context, loc channel.Locator, timeout time.Duration) (channel.Node, error) {
	if p.WaitForFunc != nil {
		return p.WaitForFunc(ctx, loc, timeout)
	}
	n, err := p.Query(ctx, loc)
	if err == channel.ErrNotFound {
		return nil, channel.ErrTimeout
	}
	return n, err
}

func (p *Page) Eval(ctx context.Context, js string) (string, error) {
	p.mu.Lock()
	p.evals = append(p.evals, js)
	p.mu.Unlock()
	if p.EvalFunc != nil {
		return p.EvalFunc(ctx, js)
	}
	return "", nil
}

func (p *Page) Connected() bool {
	select {
	case <-p.gone:
		return false
	default:
		return true
	}
}

func (p *Page) Disconnected() <-chan struct{} {
	return p.gone
}

// Disconnect simulates losing the automation channel.
func (p *Page) Disconnect() {
	p.goneOnce.Do(func() { close(p.gone) })
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.Disconnect()
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Navigations returns the URLs passed to Navigate, in order.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Evals returns every script passed to Eval, in order.
func (p *Page) Evals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}

// Node is a scriptable channel.Node. Data is what Eval returns for any script
// unless EvalFunc is set; Children answers Query by Locator.String().
type Node struct {
	Data     string
	EvalErr  error
	EvalFunc func(ctx context.Context, js string) (string, error)
	Children map[string]*Node
	GoneErr  error
	ClickErr error
	OnClick  func()

	mu       sync.Mutex
	scrolled int
	clicks   int
	waits    []time.Duration
}

var _ channel.Node = (*Node)(nil)

func (n *Node) Eval(ctx context.Context, js string) (string, error) {
	if n.EvalFunc != nil {
		return n.EvalFunc(ctx, js)
	}
	if n.EvalErr != nil {
		return "", n.EvalErr
	}
	return n.Data, nil
}

func (n *Node) Query(ctx context.Context, loc channel.Locator) (channel.Node, error) {
	if c, ok := n.Children[loc.String()]; ok {
		return c, nil
	}
	return nil, channel.ErrNotFound
}

func (n *Node) QueryAll(ctx context.Context, loc channel.Locator) ([]channel.Node, error) {
	if c, ok := n.Children[loc.String()]; ok {
		return []channel.Node{c}, nil
	}
	return nil, nil
}

func (n *Node) ScrollIntoView(ctx context.Context) error {
	n.mu.Lock()
	n.scrolled++
	n.mu.Unlock()
	return ctx.Err()
}

func (n *Node) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	n.clicks++
	n.mu.Unlock()
	if n.OnClick != nil {
		n.OnClick()
	}
	return n.ClickErr
}

func (n *Node) WaitGone(ctx context.Context, timeout time.Duration) error {
	n.mu.Lock()
	n.waits = append(n.waits, timeout)
	n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.GoneErr
}

// Scrolls returns how many times ScrollIntoView was called.
func (n *Node) Scrolls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.scrolled
}

// Clicks returns how many times Click was called.
func (n *Node) Clicks() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clicks
}

// GoneWaits returns the timeouts passed to WaitGone.
func (n *Node) GoneWaits() []time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]time.Duration(nil), n.waits...)
}

// Nodes converts scripted nodes to the interface slice QueryAll returns.
func Nodes(ns ...*Node) []channel.Node {
	out := make([]channel.Node, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}

// Sleeps records every delay requested through Wait instead of sleeping.
type Sleeps struct {
	mu     sync.Mutex
	delays []time.Duration
	// Hook, if set, runs before each recorded wait returns; a non-nil result
	// is returned as the wait error.
	Hook func(ctx context.Context, d time.Duration) error
}

// Wait satisfies retry.WaitFunc.
func (s *Sleeps) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	if s.Hook != nil {
		if err := s.Hook(ctx, d); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Delays returns the recorded delays in order.
func (s *Sleeps) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}
