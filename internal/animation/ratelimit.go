// Package animation holds the time-sliced generators behind the LED rainbow
// and the servo sweep. Nothing here sleeps: every generator is advanced by the
// control loop with the current time and decides for itself whether a step is
// due.
package animation

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter admits at most one event per interval. The caller supplies the
// time of every check, which keeps the limiter independent of the wall clock.
type RateLimiter struct {
	interval time.Duration
	lim      *rate.Limiter
}

// NewRateLimiter returns a limiter whose first Allow always succeeds.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{
		interval: interval,
		lim:      rate.NewLimiter(limit, 1),
	}
}

// Allow reports whether at least one interval has passed since the last
// admitted event, and if so records now as that event.
func (r *RateLimiter) Allow(now time.Time) bool {
	return r.lim.AllowN(now, 1)
}

// Interval returns the configured interval.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}
