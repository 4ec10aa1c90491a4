package browser

import (
	"context"
	"errors"
	"time"

	"followsweep/pkg/channel"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/extractor"
	"followsweep/pkg/logger"
	"followsweep/pkg/ratelimit"
)

// URLOpener opens a page at a URL
type URLOpener func(ctx context.Context, url string) (channel.Page, error)

// Actions performs operator actions on follower profiles: removing a
// follower, or blocking them. Each action is paced by the limiter.
type Actions struct {
	open    URLOpener
	baseURL string
	limiter ratelimit.Limiter
	timeout time.Duration
	log     logger.Logger
}

// NewActions creates an action runner. timeout bounds each wait for a menu
// element to render.
func NewActions(open URLOpener, baseURL string, limiter ratelimit.Limiter, timeout time.Duration, log logger.Logger) *Actions {
	if log == nil {
		log = logger.GetLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Actions{open: open, baseURL: baseURL, limiter: limiter, timeout: timeout, log: log}
}

// Remove removes handle from the logged-in account's followers.
func (a *Actions) Remove(ctx context.Context, handle string) error {
	return a.perform(ctx, "remove", handle, extractor.RemoveFollowerItem)
}

// Block blocks handle, which also removes them as a follower.
func (a *Actions) Block(ctx context.Context, handle string) error {
	return a.perform(ctx, "block", handle, extractor.BlockItem(handle))
}

func (a *Actions) perform(ctx context.Context, action, handle string, item channel.Locator) error {
	if handle == "" {
		return errs.New(errs.ErrorTypeInvalidInput, "browser."+action, "handle is required")
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	page, err := a.open(ctx, ProfileURL(a.baseURL, handle))
	if err != nil {
		return err
	}
	defer page.Close()

	for _, loc := range []channel.Locator{extractor.UserActions, item, extractor.ConfirmSheet} {
		node, err := page.WaitFor(ctx, loc, a.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, channel.ErrTimeout) {
				return errs.Wrapf(errs.ErrorTypeNotFound, "browser."+action, err, "%s not found on %s's profile", loc, handle)
			}
			return err
		}
		if err := node.Click(ctx); err != nil {
			return err
		}
	}

	a.log.WithFields(map[string]interface{}{
		"action": action,
		"handle": handle,
	}).Info("Follower action completed")
	return nil
}
