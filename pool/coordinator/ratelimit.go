package coordinator

import (
	"context"
	"sync"
	"time"
)

// rateWindow is the accounting window for per-source request budgets.
const rateWindow = time.Minute

// SourceLimiter paces outbound calls to one source. A call may proceed
// only when (a) the current window still has request budget and (b) at
// least window/limit has elapsed since the source's last request. The
// spacing check smooths bursts inside a window instead of just capping
// totals.
//
// A limiter belongs to exactly one source. Wait serializes concurrent
// callers on the same source through the mutex.
type SourceLimiter struct {
	mu          sync.Mutex
	limit       int       // requests per window
	windowStart time.Time // zero until the first request
	count       int       // requests granted in the current window
	lastRequest time.Time

	// Clock hooks, replaced in tests. Production uses the real clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSourceLimiter returns a limiter granting limit requests per minute.
// A non-positive limit falls back to 1.
func NewSourceLimiter(limit int) *SourceLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &SourceLimiter{
		limit: limit,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Wait blocks until the source's budget and spacing both allow another
// request, then records the request. Returns early with the context error
// if ctx is cancelled while waiting.
func (rl *SourceLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := rl.now()

		if rl.windowStart.IsZero() || now.Sub(rl.windowStart) >= rateWindow {
			rl.windowStart = now
			rl.count = 0
		}

		var wait time.Duration
		spacing := rateWindow / time.Duration(rl.limit)
		if !rl.lastRequest.IsZero() {
			if sinceLast := now.Sub(rl.lastRequest); sinceLast < spacing {
				wait = spacing - sinceLast
			}
		}
		if rl.count >= rl.limit {
			if untilReset := rl.windowStart.Add(rateWindow).Sub(now); untilReset > wait {
				wait = untilReset
			}
		}

		if wait <= 0 {
			rl.count++
			rl.lastRequest = now
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		if err := rl.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Snapshot returns the limiter's current window state for stats and
// debugging.
func (rl *SourceLimiter) Snapshot() (windowStart time.Time, count int, lastRequest time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.windowStart, rl.count, rl.lastRequest
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
