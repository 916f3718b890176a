package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RateLimitWindow represents the time window for rate limiting
type RateLimitWindow string

const (
	WindowMinute RateLimitWindow = "minute"
	WindowHour   RateLimitWindow = "hour"
)

// Limits caps failed attempts per window. A zero limit disables that window.
type Limits struct {
	PerMinute int
	PerHour   int
}

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed         bool
	Remaining       int
	ResetAt         time.Time
	ViolatedWindow  RateLimitWindow
	ViolationReason string
}

// RetryAfter returns how long the caller should wait, rounded up to a second
func (r *RateLimitResult) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second) + time.Second
}

// Counter keeps per-key counters that expire on their own
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, keys ...string) error
}

// Limiter throttles repeated failures per key using fixed windows.
// A nil *Limiter allows everything.
type Limiter struct {
	counter   Counter
	namespace string
	limits    Limits
	logger    *zap.Logger
	now       func() time.Time
}

// NewLimiter creates a Limiter storing its counters under namespace
func NewLimiter(counter Counter, namespace string, limits Limits, logger *zap.Logger) *Limiter {
	return &Limiter{
		counter:   counter,
		namespace: namespace,
		limits:    limits,
		logger:    logger,
		now:       time.Now,
	}
}

type window struct {
	name  RateLimitWindow
	size  time.Duration
	limit int
}

func (l *Limiter) windows() []window {
	var out []window
	if l.limits.PerMinute > 0 {
		out = append(out, window{WindowMinute, time.Minute, l.limits.PerMinute})
	}
	if l.limits.PerHour > 0 {
		out = append(out, window{WindowHour, time.Hour, l.limits.PerHour})
	}
	return out
}

// CheckLimit reports whether key may make another attempt
func (l *Limiter) CheckLimit(ctx context.Context, key string) (*RateLimitResult, error) {
	if l == nil {
		return &RateLimitResult{Allowed: true}, nil
	}

	now := l.now()
	result := &RateLimitResult{Allowed: true, Remaining: -1}
	for _, w := range l.windows() {
		start, resetAt := getWindowBounds(now, w.size)
		count, err := l.counter.Count(ctx, l.buildScopeKey(key, w.name, start))
		if err != nil {
			return nil, fmt.Errorf("failed to check %s window: %w", w.name, err)
		}

		if int(count) >= w.limit {
			l.logger.Info("rate limit exceeded",
				zap.String("window", string(w.name)),
				zap.Int64("attempts", count),
				zap.Time("reset_at", resetAt))
			return &RateLimitResult{
				Allowed:         false,
				ResetAt:         resetAt,
				ViolatedWindow:  w.name,
				ViolationReason: fmt.Sprintf("exceeded %d attempts per %s", w.limit, w.name),
			}, nil
		}

		remaining := w.limit - int(count)
		if result.Remaining < 0 || remaining < result.Remaining {
			result.Remaining = remaining
			result.ResetAt = resetAt
		}
	}
	return result, nil
}

// RecordRequest counts one attempt for key in every window
func (l *Limiter) RecordRequest(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}

	now := l.now()
	for _, w := range l.windows() {
		start, _ := getWindowBounds(now, w.size)
		if _, err := l.counter.Incr(ctx, l.buildScopeKey(key, w.name, start), w.size); err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
	}
	return nil
}

// Reset forgets the attempts key made in the current windows
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}

	now := l.now()
	var keys []string
	for _, w := range l.windows() {
		start, _ := getWindowBounds(now, w.size)
		keys = append(keys, l.buildScopeKey(key, w.name, start))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.counter.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// getWindowBounds returns the start and reset time of the fixed window holding now
func getWindowBounds(now time.Time, size time.Duration) (start time.Time, reset time.Time) {
	start = now.Truncate(size)
	return start, start.Add(size)
}

// buildScopeKey builds a unique key for one window of one scope
func (l *Limiter) buildScopeKey(key string, w RateLimitWindow, start time.Time) string {
	return fmt.Sprintf("%s:ratelimit:%s:%s:%d", l.namespace, key, w, start.Unix())
}
