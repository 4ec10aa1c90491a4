// Package retry provides backoff strategies, a context-aware Wait and a
// generic retry loop.
//
// The collection loop uses LinearBackoff for its stall sub-loop, the
// rate-limit guard uses Multiples(60*time.Second) so the nth throttled
// attempt waits n minutes, and the browser session retries navigation with
// DefaultExponentialBackoff through Do.
//
//	err := retry.Do(func() error {
//		return page.Navigate(url)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		RetryIf:     retry.DefaultRetryIf,
//		Context:     ctx,
//	})
package retry
