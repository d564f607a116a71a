package ratelimit

import (
	"testing"
	"time"

	"github.com/oversightlab/sysguard/internal/state"
)

func TestFirstRequestStartsWindow(t *testing.T) {
	st := state.NewManager(nil)
	l := New(10, time.Minute)
	now := time.Unix(1700000000, 0)

	out := l.CheckAndRecord(st, now)
	if !out.Proceed {
		t.Fatal("first request must proceed")
	}
	if count, _ := st.GetTempInt(state.KeyRateRequestCount); count != 1 {
		t.Errorf("request_count = %d, want 1", count)
	}
	if _, ok := st.GetTempFloat(state.KeyRateWindowStart); !ok {
		t.Error("window start not recorded")
	}
}

func TestQuotaExhaustionThrottles(t *testing.T) {
	st := state.NewManager(nil)
	l := New(10, time.Minute)
	base := time.Unix(1700000000, 0)

	for i := 0; i < 10; i++ {
		out := l.CheckAndRecord(st, base.Add(time.Duration(i)*time.Second))
		if !out.Proceed {
			t.Fatalf("request %d throttled within quota", i+1)
		}
	}

	// Eleventh request, 10 seconds into a 60 second window.
	out := l.CheckAndRecord(st, base.Add(10*time.Second))
	if out.Proceed {
		t.Fatal("request over quota must throttle")
	}
	if secs := out.RetryAfterSeconds(); secs != 50 {
		t.Errorf("RetryAfterSeconds = %d, want 50", secs)
	}

	// Throttling leaves counters untouched so the wait time keeps shrinking.
	if count, _ := st.GetTempInt(state.KeyRateRequestCount); count != 10 {
		t.Errorf("request_count after throttle = %d, want 10", count)
	}

	out = l.CheckAndRecord(st, base.Add(30*time.Second))
	if out.Proceed {
		t.Fatal("still over quota within window")
	}
	if secs := out.RetryAfterSeconds(); secs != 30 {
		t.Errorf("RetryAfterSeconds = %d, want 30", secs)
	}
}

func TestWindowExpiryResets(t *testing.T) {
	st := state.NewManager(nil)
	l := New(10, time.Minute)
	base := time.Unix(1700000000, 0)

	for i := 0; i < 10; i++ {
		l.CheckAndRecord(st, base)
	}
	if out := l.CheckAndRecord(st, base.Add(time.Second)); out.Proceed {
		t.Fatal("over quota must throttle")
	}

	out := l.CheckAndRecord(st, base.Add(61*time.Second))
	if !out.Proceed {
		t.Fatal("expired window must reset and proceed")
	}
	if count, _ := st.GetTempInt(state.KeyRateRequestCount); count != 1 {
		t.Errorf("request_count after reset = %d, want 1", count)
	}
	if limited, ok := st.GetTemp(state.KeyRateLimited); !ok || limited != false {
		t.Errorf("rate_limited after reset = %v, %v, want false", limited, ok)
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	out := Outcome{Proceed: false, RetryAfter: 12500 * time.Millisecond}
	if secs := out.RetryAfterSeconds(); secs != 13 {
		t.Errorf("RetryAfterSeconds = %d, want 13", secs)
	}
}

func TestWindowStateSurvivesSerialization(t *testing.T) {
	st := state.NewManager(nil)
	l := New(2, time.Minute)
	base := time.Unix(1700000000, 0)

	l.CheckAndRecord(st, base)
	l.CheckAndRecord(st, base.Add(time.Second))

	// Simulate a persistence round-trip: ints come back as float64.
	if c, ok := st.GetTemp(state.KeyRateRequestCount); ok {
		if n, isInt := c.(int); isInt {
			st.SetTemp(state.KeyRateRequestCount, float64(n))
		}
	}

	if out := l.CheckAndRecord(st, base.Add(2*time.Second)); out.Proceed {
		t.Error("round-tripped counter must still enforce the quota")
	}
}
