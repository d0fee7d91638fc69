package device

import (
	"time"

	"discoball-controller/internal/animation"
)

// TimerFunc runs from the control loop when its interval has elapsed.
type TimerFunc func(now time.Time, st *State)

type timer struct {
	limiter *animation.RateLimiter
	fn      TimerFunc
}

// Timers runs interval callbacks on the control loop's goroutine. A timer
// fires on the first Run after it is added and then once per interval.
type Timers struct {
	timers []timer
}

// Every registers fn to run every d.
func (t *Timers) Every(d time.Duration, fn TimerFunc) {
	t.timers = append(t.timers, timer{
		limiter: animation.NewRateLimiter(d),
		fn:      fn,
	})
}

// Run fires every timer that is due.
func (t *Timers) Run(now time.Time, st *State) {
	for _, tm := range t.timers {
		if tm.limiter.Allow(now) {
			tm.fn(now, st)
		}
	}
}

// Len returns the number of registered timers.
func (t *Timers) Len() int { return len(t.timers) }
