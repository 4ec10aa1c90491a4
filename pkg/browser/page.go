package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"followsweep/pkg/channel"
)

// Page adapts a rod page to channel.Page.
type Page struct {
	page *rod.Page

	gone     chan struct{}
	goneOnce sync.Once
	onClose  func(*Page)
}

var _ channel.Page = (*Page)(nil)

func newPage(p *rod.Page, onClose func(*Page)) *Page {
	return &Page{page: p, gone: make(chan struct{}), onClose: onClose}
}

// Rod exposes the underlying page.
func (p *Page) Rod() *rod.Page { return p.page }

func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (p *Page) Query(ctx context.Context, loc channel.Locator) (channel.Node, error) {
	var (
		ok  bool
		el  *rod.Element
		err error
	)
	pg := p.page.Context(ctx)
	if loc.Text != "" {
		ok, el, err = pg.HasR(loc.CSS, textPattern(loc.Text))
	} else {
		ok, el, err = pg.Has(loc.CSS)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, channel.ErrNotFound
	}
	return &Node{el: el}, nil
}

func (p *Page) QueryAll(ctx context.Context, loc channel.Locator) ([]channel.Node, error) {
	els, err := p.page.Context(ctx).Elements(loc.CSS)
	if err != nil {
		return nil, err
	}
	return wrapAll(ctx, els, loc.Text)
}

func (p *Page) WaitFor(ctx context.Context, loc channel.Locator, timeout time.Duration) (channel.Node, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pg := p.page.Context(tctx)
	var (
		el  *rod.Element
		err error
	)
	if loc.Text != "" {
		el, err = pg.ElementR(loc.CSS, textPattern(loc.Text))
	} else {
		el, err = pg.Element(loc.CSS)
	}
	if err != nil {
		return nil, waitErr(ctx, err)
	}
	return &Node{el: el}, nil
}

func (p *Page) Eval(ctx context.Context, js string) (string, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *Page) Connected() bool {
	select {
	case <-p.gone:
		return false
	default:
		return true
	}
}

func (p *Page) Disconnected() <-chan struct{} { return p.gone }

func (p *Page) markGone() {
	p.goneOnce.Do(func() { close(p.gone) })
}

func (p *Page) Close() error {
	defer p.markGone()
	if p.onClose != nil {
		p.onClose(p)
	}
	if !p.Connected() {
		return nil
	}
	return p.page.Close()
}

// Node adapts a rod element to channel.Node.
type Node struct {
	el *rod.Element
}

var _ channel.Node = (*Node)(nil)

func (n *Node) Eval(ctx context.Context, js string) (string, error) {
	res, err := n.el.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (n *Node) Query(ctx context.Context, loc channel.Locator) (channel.Node, error) {
	var (
		ok  bool
		el  *rod.Element
		err error
	)
	e := n.el.Context(ctx)
	if loc.Text != "" {
		ok, el, err = e.HasR(loc.CSS, textPattern(loc.Text))
	} else {
		ok, el, err = e.Has(loc.CSS)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, channel.ErrNotFound
	}
	return &Node{el: el}, nil
}

func (n *Node) QueryAll(ctx context.Context, loc channel.Locator) ([]channel.Node, error) {
	els, err := n.el.Context(ctx).Elements(loc.CSS)
	if err != nil {
		return nil, err
	}
	return wrapAll(ctx, els, loc.Text)
}

func (n *Node) ScrollIntoView(ctx context.Context) error {
	return n.el.Context(ctx).ScrollIntoView()
}

func (n *Node) Click(ctx context.Context) error {
	return n.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// WaitGone treats a detached node as gone.
func (n *Node) WaitGone(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := n.el.Context(tctx).WaitInvisible()
	if err == nil {
		return nil
	}
	if werr := waitErr(ctx, err); errors.Is(werr, channel.ErrTimeout) || ctx.Err() != nil {
		return werr
	}
	return nil
}

func wrapAll(ctx context.Context, els rod.Elements, text string) ([]channel.Node, error) {
	out := make([]channel.Node, 0, len(els))
	for _, el := range els {
		if text != "" {
			got, err := el.Context(ctx).Text()
			if err != nil || got != text {
				continue
			}
		}
		out = append(out, &Node{el: el})
	}
	return out, nil
}

// waitErr maps a bounded wait's deadline onto channel.ErrTimeout, keeping the
// caller's own cancellation distinct.
func waitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return channel.ErrTimeout
	}
	return err
}

func textPattern(text string) string {
	return "^" + regexp.QuoteMeta(text) + "$"
}
