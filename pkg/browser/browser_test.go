package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followsweep/pkg/channel"
	"followsweep/pkg/channel/channeltest"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/extractor"
	"followsweep/pkg/logger"
	"followsweep/pkg/ratelimit"
)

func TestURLs(t *testing.T) {
	assert.Equal(t, "https://x.com/alice/followers", FollowersURL("https://x.com/", "alice"))
	assert.Equal(t, "https://x.com/bob", ProfileURL("https://x.com", "@bob"))
	assert.Equal(t, ".x.com", cookieDomain("https://www.x.com"))
	assert.Equal(t, ".x.com", cookieDomain("::"))
}

func TestDetectAccount(t *testing.T) {
	page := channeltest.NewPage()
	page.WaitForFunc = func(ctx context.Context, loc channel.Locator, timeout time.Duration) (channel.Node, error) {
		require.Equal(t, extractor.ProfileLink, loc)
		return &channeltest.Node{Data: "https://x.com/Alice"}, nil
	}

	acct, err := detectAccount(context.Background(), page, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "alice", acct)
}

func TestDetectAccountLoggedOut(t *testing.T) {
	page := channeltest.NewPage()

	_, err := detectAccount(context.Background(), page, time.Second)
	assert.ErrorIs(t, err, errs.ErrNotLoggedIn)
}

func TestDetectAccountRetriesUnfilledHref(t *testing.T) {
	defer func(d time.Duration) { detectRetryDelay = d }(detectRetryDelay)
	detectRetryDelay = time.Millisecond

	reads := 0
	link := &channeltest.Node{EvalFunc: func(ctx context.Context, js string) (string, error) {
		reads++
		switch reads {
		case 1:
			return "", errors.New("execution context was destroyed")
		case 2:
			return "https://x.com/", nil
		}
		return "https://x.com/Alice", nil
	}}
	page := channeltest.NewPage()
	page.WaitForFunc = func(ctx context.Context, loc channel.Locator, timeout time.Duration) (channel.Node, error) {
		return link, nil
	}

	acct, err := detectAccount(context.Background(), page, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "alice", acct)
	assert.Equal(t, 3, reads)
}

func TestDetectAccountGivesUpOnEmptyHref(t *testing.T) {
	defer func(d time.Duration) { detectRetryDelay = d }(detectRetryDelay)
	detectRetryDelay = time.Millisecond

	reads := 0
	link := &channeltest.Node{EvalFunc: func(ctx context.Context, js string) (string, error) {
		reads++
		return "", nil
	}}
	page := channeltest.NewPage()
	page.WaitForFunc = func(ctx context.Context, loc channel.Locator, timeout time.Duration) (channel.Node, error) {
		return link, nil
	}

	_, err := detectAccount(context.Background(), page, time.Second)
	assert.ErrorIs(t, err, errs.ErrNotLoggedIn)
	assert.Equal(t, detectAttempts, reads)
}

// menuPage renders every locator in present and records clicks in order.
func menuPage(present map[string]bool, clicked *[]string) *channeltest.Page {
	page := channeltest.NewPage()
	page.WaitForFunc = func(ctx context.Context, loc channel.Locator, timeout time.Duration) (channel.Node, error) {
		if !present[loc.String()] {
			return nil, channel.ErrTimeout
		}
		name := loc.String()
		return &channeltest.Node{OnClick: func() { *clicked = append(*clicked, name) }}, nil
	}
	return page
}

func TestBlockClicksThroughMenu(t *testing.T) {
	var clicked []string
	item := extractor.BlockItem("bob")
	page := menuPage(map[string]bool{
		extractor.UserActions.String():  true,
		item.String():                   true,
		extractor.ConfirmSheet.String(): true,
	}, &clicked)

	var opened []string
	open := func(ctx context.Context, url string) (channel.Page, error) {
		opened = append(opened, url)
		return page, nil
	}
	a := NewActions(open, "https://x.com", ratelimit.PerMinute(10), time.Second, logger.NewNopLogger())

	require.NoError(t, a.Block(context.Background(), "bob"))
	assert.Equal(t, []string{"https://x.com/bob"}, opened)
	assert.Equal(t, []string{extractor.UserActions.String(), item.String(), extractor.ConfirmSheet.String()}, clicked)
	assert.True(t, page.Closed())
}

func TestRemoveMissingMenuItem(t *testing.T) {
	var clicked []string
	page := menuPage(map[string]bool{extractor.UserActions.String(): true}, &clicked)
	open := func(ctx context.Context, url string) (channel.Page, error) { return page, nil }
	a := NewActions(open, "https://x.com", nil, time.Second, logger.NewNopLogger())

	err := a.Remove(context.Background(), "carol")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Len(t, clicked, 1)
}

func TestActionsRequireHandle(t *testing.T) {
	a := NewActions(nil, "https://x.com", nil, time.Second, logger.NewNopLogger())
	assert.ErrorIs(t, a.Remove(context.Background(), ""), errs.ErrInvalidInput)
}
