package browser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Throttled spaces page launches so bursts of acquisitions do not hit the
// platform with many fresh sessions at once.
type Throttled struct {
	next    Launcher
	limiter *rate.Limiter
}

// Throttle wraps l so that launches happen at most once per interval after
// an initial burst. A non-positive interval returns l unchanged.
func Throttle(l Launcher, interval time.Duration, burst int) Launcher {
	if interval <= 0 {
		return l
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: l, limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Open waits for a launch slot, then opens a page.
func (t *Throttled) Open(ctx context.Context, opts Options) (Page, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for launch slot: %w", err)
	}
	return t.next.Open(ctx, opts)
}
