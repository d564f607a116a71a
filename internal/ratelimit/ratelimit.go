// Package ratelimit implements the per-conversation sliding-window request
// limiter. It never sleeps: in a cooperative-scheduling host a blocking
// sleep would stall every conversation sharing the loop, so a throttled
// request is answered immediately with the seconds left to wait.
package ratelimit

import (
	"math"
	"time"

	"github.com/oversightlab/sysguard/internal/state"
)

// Outcome is the limiter's decision for one model call.
type Outcome struct {
	Proceed    bool
	RetryAfter time.Duration // set when throttled
}

// RetryAfterSeconds rounds the wait up to whole seconds for user messaging.
func (o Outcome) RetryAfterSeconds() int {
	return int(math.Ceil(o.RetryAfter.Seconds()))
}

// Limiter counts requests against a window stored in conversation state.
// The zero value is unusable; construct with quota and window.
type Limiter struct {
	Quota  int
	Window time.Duration
}

func New(quota int, window time.Duration) Limiter {
	return Limiter{Quota: quota, Window: window}
}

// CheckAndRecord applies the window algorithm:
//
//   - no window yet: start one at now with count 1, proceed
//   - incremented count within quota: persist it, proceed
//   - over quota, window still open: throttle with the remaining time and
//     leave state untouched, so the same throttle applies until expiry
//   - over quota, window expired: reset to count 1 at now, proceed
func (l Limiter) CheckAndRecord(st *state.Manager, now time.Time) Outcome {
	nowSecs := float64(now.UnixNano()) / float64(time.Second)

	windowStart, ok := st.GetTempFloat(state.KeyRateWindowStart)
	if !ok {
		st.SetTemp(state.KeyRateWindowStart, nowSecs)
		st.SetTemp(state.KeyRateRequestCount, 1)
		return Outcome{Proceed: true}
	}

	count, _ := st.GetTempInt(state.KeyRateRequestCount)
	count++

	if count <= l.Quota {
		st.SetTemp(state.KeyRateRequestCount, count)
		return Outcome{Proceed: true}
	}

	elapsed := time.Duration((nowSecs - windowStart) * float64(time.Second))
	remaining := l.Window - elapsed
	if remaining > 0 {
		return Outcome{Proceed: false, RetryAfter: remaining}
	}

	// Window expired; start fresh.
	st.SetTemp(state.KeyRateWindowStart, nowSecs)
	st.SetTemp(state.KeyRateRequestCount, 1)
	st.SetTemp(state.KeyRateLimited, false)
	return Outcome{Proceed: true}
}
