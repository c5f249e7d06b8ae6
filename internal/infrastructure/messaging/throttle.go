package messaging

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// THROTTLE - Token Bucket for outbound gateway calls
// ══════════════════════════════════════════════════════════════════════════════

// ErrThrottleTimeout is returned when no send slot frees up within WaitTimeout.
var ErrThrottleTimeout = errors.New("timeout waiting for send slot")

// ThrottleConfig bounds the rate of outbound messages.
type ThrottleConfig struct {
	// PerSecond is the sustained send rate. Zero disables throttling.
	PerSecond float64

	// Burst is how many messages may go out back to back.
	Burst int

	// WaitTimeout caps how long one send waits for a slot.
	WaitTimeout time.Duration
}

// DefaultThrottleConfig keeps bulk notifications under typical gateway limits.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		PerSecond:   5,
		Burst:       10,
		WaitTimeout: 30 * time.Second,
	}
}

// Throttle is a token bucket. A nil *Throttle never blocks.
type Throttle struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	pausedUntil time.Time

	now func() time.Time
}

// NewThrottle returns nil when PerSecond is not positive.
func NewThrottle(config ThrottleConfig) *Throttle {
	if config.PerSecond <= 0 {
		return nil
	}
	if config.Burst < 1 {
		config.Burst = 1
	}
	t := &Throttle{
		maxTokens:   float64(config.Burst),
		refillRate:  config.PerSecond,
		tokens:      float64(config.Burst),
		waitTimeout: config.WaitTimeout,
		now:         time.Now,
	}
	t.lastRefill = t.now()
	return t
}

// Wait blocks until a token is available, ctx is done or WaitTimeout passes.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if t.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.waitTimeout)
		defer cancel()
	}

	for {
		wait, ok := t.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrThrottleTimeout
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes a token without blocking.
func (t *Throttle) TryAcquire() bool {
	if t == nil {
		return true
	}
	_, ok := t.tryAcquire()
	return ok
}

// Pause empties the bucket and holds sends for d, after the gateway answered 429.
func (t *Throttle) Pause(d time.Duration) {
	if t == nil || d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens = 0
	if until := t.now().Add(d); until.After(t.pausedUntil) {
		t.pausedUntil = until
		t.lastRefill = until
	}
}

func (t *Throttle) tryAcquire() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Before(t.pausedUntil) {
		return t.pausedUntil.Sub(now), false
	}
	t.refill(now)

	if t.tokens < 1 {
		need := 1 - t.tokens
		return time.Duration(need / t.refillRate * float64(time.Second)), false
	}
	t.tokens--
	return 0, true
}

// Must be called with mu held.
func (t *Throttle) refill(now time.Time) {
	elapsed := now.Sub(t.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	t.tokens += elapsed * t.refillRate
	if t.tokens > t.maxTokens {
		t.tokens = t.maxTokens
	}
	t.lastRefill = now
}
