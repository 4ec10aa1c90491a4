// Package ratelimit paces traffic against the remote site.
//
// Guard handles the throttling the remote page signals on its own: when the
// followers timeline renders its Retry button, the guard waits attempt*BaseWait,
// presses the button, lets the page settle and probes again, giving up after
// MaxAttempts consecutive detections. A clear probe resets the counter.
//
// TokenBucket paces operator actions (remove, block) on our side:
//
//	limiter := ratelimit.PerMinute(cfg.RateLimit.BlockActionsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
