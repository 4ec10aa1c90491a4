package extractor

import (
	"fmt"
	"strconv"

	"followsweep/pkg/channel"
)

// Every piece of knowledge about the remote page's layout lives in this file.
// The remote DOM changes often; when collection breaks, start here.

var (
	// FollowerTimeline is the scrolling container of the followers list.
	FollowerTimeline = channel.Locator{CSS: `[aria-label="Timeline: Followers"]`}

	// UserCell is one rendered follower entry.
	UserCell = channel.Locator{CSS: `button[data-testid="UserCell"]`}

	// RetryButton is rendered in place of new entries while throttled.
	RetryButton = channel.Locator{CSS: `[aria-label="Timeline: Followers"] button`, Text: "Retry"}

	// ProfileLink is only present in the navigation bar of a logged-in session.
	ProfileLink = channel.Locator{CSS: `a[aria-label="Profile"]`}

	// UserActions opens the overflow menu on a profile page.
	UserActions = channel.Locator{CSS: `[data-testid="userActions"]`}

	// ConfirmSheet confirms a destructive menu action.
	ConfirmSheet = channel.Locator{CSS: `[data-testid="confirmationSheetConfirm"]`}

	// RemoveFollowerItem and BlockItem are entries of the UserActions menu.
	RemoveFollowerItem = channel.Locator{CSS: `[role="menuitem"]`, Text: "Remove this follower"}
)

// BlockItem is the menu entry that blocks handle.
func BlockItem(handle string) channel.Locator {
	return channel.Locator{CSS: `[role="menuitem"]`, Text: "Block @" + handle}
}

// HeightScript reads the min-height of the timeline's first div, which grows
// as the list renders more entries. Returns "" when the container is absent.
const HeightScript = `() => {
	const div = document.querySelector('[aria-label="Timeline: Followers"] > div');
	if (!div) return "";
	return String(div.style.minHeight || "");
}`

// NudgeScript scrolls the document down by the given offset in pixels.
func NudgeScript(offset int) string {
	return fmt.Sprintf(`() => {
	const root = document.querySelector('html');
	root.scrollTo(0, root.scrollTop + %d);
	return "";
}`, offset)
}

// ProfileHrefScript returns the href of a link node.
const ProfileHrefScript = `function () { return this.href || ""; }`

// cellScript runs against one UserCell and serializes its fields as JSON.
// Link and avatar are required; text fields default to "".
const cellScript = `function () {
	const text = (sel) => {
		const n = this.querySelector(sel);
		return n ? n.textContent.trim() : "";
	};
	const link = this.querySelector('a');
	const img = this.querySelector('img');
	return JSON.stringify({
		url: link ? link.href.trim() : "",
		img: img ? img.src.trim() : "",
		username: text('div > div:last-child > div:first-child > div:first-child > div > div:first-child'),
		account: text('div > div:last-child > div:first-child > div:first-child > div > div:last-child > div:first-child'),
		bio: text('div > div[dir="auto"]:not([id])'),
	});
}`

// ParseHeight turns a CSS pixel length like "12345px" into a number.
// Empty or malformed values yield 0, which the loop treats as no change.
func ParseHeight(raw string) float64 {
	if len(raw) > 2 && raw[len(raw)-2:] == "px" {
		raw = raw[:len(raw)-2]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
