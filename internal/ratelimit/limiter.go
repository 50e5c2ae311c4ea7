package ratelimit

import "context"

// RateLimiter bounds refresh enqueues per caller. Allow reports whether
// the caller identified by key may proceed within the current window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
