package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide explains how to copy the session cookies out of a
// logged-in browser.
func ShowCookieExtractionGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"SESSION COOKIE GUIDE",
		rule,
		"",
		"followsweep drives a browser that must be logged in to your account.",
		"Either log in once in the browser profile it uses (run with headless: false),",
		"or copy two cookies from a browser where you are already logged in:",
		"",
		"1. Open https://x.com and log in.",
		"2. Open Developer Tools (F12, or Cmd+Option+I on a Mac).",
		"3. Chrome/Edge: Application tab > Cookies > https://x.com",
		"   Firefox:     Storage tab > Cookies > https://x.com",
		"4. Copy the Value column of these two rows:",
		"",
		"   auth_token   40 hex characters",
		"   ct0          the CSRF token, a long hex string",
		"",
		"Copy the whole value, without quotes or semicolons.",
		"The cookies stay valid until you log out of that browser.",
		"",
		"WARNING: these cookies grant full access to your account.",
		"They are kept in the system keychain or an encrypted file, never in plain text.",
		rule,
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

// ShowQuickExtractGuide is the one-line reminder shown at each prompt
func ShowQuickExtractGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 > Application/Storage > Cookies > https://x.com > copy auth_token and ct0 (type 'help' for details)")
}
