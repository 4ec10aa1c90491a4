// Package browser drives Chromium through rod and hands out pages that
// satisfy channel.Page.
//
// The Controller launches one browser with a persistent profile directory so
// a login survives restarts, optionally seeds session cookies, and watches
// the browser process: when it stops answering, every open page reports
// itself disconnected.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"followsweep/pkg/channel"
	"followsweep/pkg/config"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/extractor"
	"followsweep/pkg/logger"
	"followsweep/pkg/models"
	"followsweep/pkg/retry"
)

// Session cookie names the remote site uses for a logged-in browser.
const (
	AuthCookie = "auth_token"
	CSRFCookie = "ct0"
)

// Controller owns the browser process.
type Controller struct {
	cfg config.BrowserConfig
	log logger.Logger

	mu          sync.Mutex
	browser     *rod.Browser
	lnch        *launcher.Launcher
	pages       map[*Page]struct{}
	cookies     []*proto.NetworkCookieParam
	stopMonitor context.CancelFunc
}

// New creates a controller. The browser is launched on first use.
func New(cfg config.BrowserConfig, log logger.Logger) *Controller {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Controller{
		cfg:   cfg,
		log:   log.WithField("component", "browser"),
		pages: make(map[*Page]struct{}),
	}
}

// SetSession seeds the auth and CSRF cookies into every page opened after
// the call.
func (c *Controller) SetSession(authToken, csrfToken string) {
	domain := cookieDomain(c.cfg.BaseURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = []*proto.NetworkCookieParam{
		{Name: AuthCookie, Value: authToken, Domain: domain, Path: "/", Secure: true, HTTPOnly: true},
		{Name: CSRFCookie, Value: csrfToken, Domain: domain, Path: "/", Secure: true},
	}
}

func cookieDomain(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Hostname() == "" {
		return ".x.com"
	}
	return "." + strings.TrimPrefix(u.Hostname(), "www.")
}

// Start launches and connects the browser if it is not running yet.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Controller) startLocked(ctx context.Context) error {
	if c.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(c.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if c.cfg.Bin != "" {
		l = l.Bin(c.cfg.Bin)
	}
	if c.cfg.UserDataDir != "" {
		l = l.UserDataDir(c.cfg.UserDataDir)
	}

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("browser: connect: %w", err)
	}

	if len(c.cookies) > 0 {
		if err := b.SetCookies(c.cookies); err != nil {
			c.log.WithError(err).Warn("Failed to seed session cookies")
		}
	}

	c.browser = b
	c.lnch = l
	mctx, cancel := context.WithCancel(context.Background())
	c.stopMonitor = cancel
	go c.monitor(mctx, b)

	c.log.WithFields(map[string]interface{}{
		"headless": c.cfg.Headless,
		"profile":  c.cfg.UserDataDir,
	}).Info("Browser started")
	return nil
}

// monitor polls the browser and disconnects every page once it stops
// answering.
func (c *Controller) monitor(ctx context.Context, b *rod.Browser) {
	interval := c.cfg.MonitorInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := (proto.BrowserGetVersion{}).Call(b); err != nil {
				c.log.WithError(err).Warn("Browser stopped responding")
				c.disconnectAll()
				return
			}
		}
	}
}

func (c *Controller) disconnectAll() {
	c.mu.Lock()
	pages := make([]*Page, 0, len(c.pages))
	for p := range c.pages {
		pages = append(pages, p)
	}
	c.browser = nil
	c.mu.Unlock()

	for _, p := range pages {
		p.markGone()
	}
}

// Close closes every page and shuts the browser down.
func (c *Controller) Close() error {
	c.mu.Lock()
	b, l, stop := c.browser, c.lnch, c.stopMonitor
	c.browser, c.lnch, c.stopMonitor = nil, nil, nil
	pages := c.pages
	c.pages = make(map[*Page]struct{})
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	for p := range pages {
		p.markGone()
	}
	var err error
	if b != nil {
		err = b.Close()
	}
	// a launcher without a profile dir made a throwaway one
	if l != nil && c.cfg.UserDataDir == "" {
		l.Cleanup()
	}
	return err
}

// OpenURL opens a new page at target. Navigation is retried with
// exponential backoff.
func (c *Controller) OpenURL(ctx context.Context, target string) (channel.Page, error) {
	c.mu.Lock()
	if err := c.startLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	b := c.browser
	c.mu.Unlock()

	var rp *rod.Page
	var err error
	if c.cfg.Stealth {
		rp, err = stealth.Page(b)
	} else {
		rp, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	if c.cfg.UserAgent != "" {
		if err := rp.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.cfg.UserAgent}); err != nil {
			c.log.WithError(err).Debug("User agent override failed")
		}
	}

	page := newPage(rp, c.forget)
	c.mu.Lock()
	c.pages[page] = struct{}{}
	c.mu.Unlock()

	err = retry.Do(func() error {
		nctx, cancel := context.WithTimeout(ctx, c.navigationTimeout())
		defer cancel()
		return page.Navigate(nctx, target)
	}, &retry.Config{
		MaxAttempts: 3,
		Backoff:     retry.DefaultExponentialBackoff(),
		// a per-attempt timeout is worth retrying; the caller's cancellation is not
		RetryIf: func(error) bool { return ctx.Err() == nil },
		Context: ctx,
		Logger:  c.log,
	})
	if err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

func (c *Controller) forget(p *Page) {
	c.mu.Lock()
	delete(c.pages, p)
	c.mu.Unlock()
}

func (c *Controller) navigationTimeout() time.Duration {
	if c.cfg.NavigationTimeout > 0 {
		return c.cfg.NavigationTimeout
	}
	return 30 * time.Second
}

// DetectAccount returns the handle of the logged-in account, lowercased. It
// fails with NotLoggedIn when the profile link is absent.
func (c *Controller) DetectAccount(ctx context.Context) (string, error) {
	page, err := c.OpenURL(ctx, c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	defer page.Close()
	return detectAccount(ctx, page, c.cfg.LoginTimeout)
}

// Reads of the profile link's href before giving up on detection.
const detectAttempts = 3

var detectRetryDelay = 300 * time.Millisecond

func detectAccount(ctx context.Context, page channel.Page, timeout time.Duration) (string, error) {
	link, err := page.WaitFor(ctx, extractor.ProfileLink, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errs.Wrap(errs.ErrorTypeNotLoggedIn, "browser.detect", err)
	}

	// The link can render before its href is filled in.
	account, err := retry.DoWithResult(func() (string, error) {
		href, err := link.Eval(ctx, extractor.ProfileHrefScript)
		if err != nil {
			return "", err
		}
		if account := models.SourceIDFromURL(href); account != "" {
			return account, nil
		}
		return "", fmt.Errorf("profile link has no handle: %q", href)
	}, &retry.Config{
		MaxAttempts: detectAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: detectRetryDelay},
		RetryIf:     func(error) bool { return ctx.Err() == nil },
		Context:     ctx,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errs.Wrap(errs.ErrorTypeNotLoggedIn, "browser.detect", err)
	}
	return account, nil
}

// FollowersURL is the followers list of subject.
func FollowersURL(base, subject string) string {
	return strings.TrimRight(base, "/") + "/" + subject + "/followers"
}

// ProfileURL is the profile page of handle.
func ProfileURL(base, handle string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimPrefix(handle, "@")
}

// OpenFollowers opens subject's followers list. An empty subject means the
// logged-in account.
func (c *Controller) OpenFollowers(ctx context.Context, subject string) (channel.Page, error) {
	if subject == "" {
		acct, err := c.DetectAccount(ctx)
		if err != nil {
			return nil, err
		}
		subject = acct
	}
	return c.OpenURL(ctx, FollowersURL(c.cfg.BaseURL, subject))
}
