// Package channel declares the capability set the collector needs from a
// driven web page. The browser package provides the real implementation;
// channeltest provides a scripted one for tests.
package channel

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Query when no node matches the locator.
var ErrNotFound = errors.New("channel: no node matches locator")

// ErrTimeout is returned by the Wait methods when the bound elapses.
var ErrTimeout = errors.New("channel: wait timed out")

// Locator selects nodes declaratively. Text, when set, narrows CSS matches
// to nodes whose visible text equals it.
type Locator struct {
	CSS  string
	Text string
}

func (l Locator) String() string {
	if l.Text == "" {
		return l.CSS
	}
	return l.CSS + " [text=" + l.Text + "]"
}

// Page is a live, driven page.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Query returns the first match without waiting, or ErrNotFound.
	Query(ctx context.Context, loc Locator) (Node, error)
	QueryAll(ctx context.Context, loc Locator) ([]Node, error)
	// WaitFor blocks until loc matches or timeout elapses (ErrTimeout).
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Node, error)
	// Eval runs a JavaScript function expression in the page and returns its
	// result as a string.
	Eval(ctx context.Context, js string) (string, error)
	Connected() bool
	// Disconnected is closed once the underlying channel is lost.
	Disconnected() <-chan struct{}
	Close() error
}

// Node is one element on a Page.
type Node interface {
	// Eval runs a JavaScript function expression with `this` bound to the node.
	Eval(ctx context.Context, js string) (string, error)
	Query(ctx context.Context, loc Locator) (Node, error)
	QueryAll(ctx context.Context, loc Locator) ([]Node, error)
	ScrollIntoView(ctx context.Context) error
	Click(ctx context.Context) error
	// WaitGone blocks until the node is hidden or detached, or timeout
	// elapses (ErrTimeout).
	WaitGone(ctx context.Context, timeout time.Duration) error
}
