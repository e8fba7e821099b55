package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Check records a request for key and reports the resulting decision.
	// A rejection is a Decision with Allowed false, not an error; the only
	// errors returned come from ctx being cancelled or timing out.
	Check(ctx context.Context, key string) (Decision, error)

	// Config returns the limit the limiter enforces.
	Config() Config
}

// FixedWindowLimiter counts requests per key in fixed windows kept in a
// shared Store. All coordination between processes goes through the store's
// conditional increment; nothing is held in memory.
type FixedWindowLimiter struct {
	store  Store
	config Config
	clock  Clock
	logger *zap.Logger
}

// Option configures a FixedWindowLimiter.
type Option func(*FixedWindowLimiter)

// WithClock sets the time source. It should match the one the store uses.
func WithClock(clock Clock) Option {
	return func(l *FixedWindowLimiter) {
		l.clock = clock
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *FixedWindowLimiter) {
		l.logger = logger
	}
}

// NewFixedWindowLimiter creates a limiter enforcing config against store.
func NewFixedWindowLimiter(store Store, config Config, opts ...Option) (*FixedWindowLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &FixedWindowLimiter{
		store:  store,
		config: config,
		clock:  SystemClock{},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

func (l *FixedWindowLimiter) Config() Config {
	return l.config
}

func (l *FixedWindowLimiter) Check(ctx context.Context, key string) (Decision, error) {
	entry, err := l.store.Get(ctx, key)

	now := l.clock.Now().UnixMilli()
	windowEnd := now + l.config.Window.Milliseconds()

	switch {
	case errors.Is(err, ErrNotFound):
		entry = nil
	case err != nil:
		return l.failOpen(ctx, key, windowEnd, "get", err)
	}

	if !entry.Live(now) {
		return l.startWindow(ctx, key, now, windowEnd)
	}

	return l.increment(ctx, key, entry.ResetTime, windowEnd)
}

// startWindow opens a fresh window for key. The write only lands while no
// live window is stored; if another request opened one first, this request
// is counted against that window instead.
func (l *FixedWindowLimiter) startWindow(ctx context.Context, key string, now, windowEnd int64) (Decision, error) {
	entry := &Entry{
		Key:       key,
		Count:     1,
		ResetTime: windowEnd,
		ExpireAt:  expireAtFor(windowEnd),
	}

	err := l.store.Reset(ctx, entry, now)
	if errors.Is(err, ErrConditionFailed) {
		return l.joinWindow(ctx, key, now, windowEnd)
	}

	if err != nil {
		return l.failOpen(ctx, key, windowEnd, "reset", err)
	}

	return Decision{
		Allowed:   true,
		Remaining: l.config.MaxRequests - entry.Count,
		ResetTime: windowEnd,
	}, nil
}

// joinWindow re-reads the window another request just opened and takes the
// guarded increment path against it.
func (l *FixedWindowLimiter) joinWindow(ctx context.Context, key string, now, windowEnd int64) (Decision, error) {
	current, err := l.store.Get(ctx, key)

	switch {
	case errors.Is(err, ErrNotFound):
		return l.reject(ctx, key, windowEnd), nil
	case err != nil:
		return l.failOpen(ctx, key, windowEnd, "get", err)
	case !current.Live(now):
		return l.reject(ctx, key, windowEnd), nil
	}

	return l.increment(ctx, key, current.ResetTime, windowEnd)
}

// increment adds one to the current window. The expiry is re-affirmed from
// the stored reset time, so traffic inside a window never extends it.
func (l *FixedWindowLimiter) increment(
	ctx context.Context,
	key string,
	resetTime int64,
	windowEnd int64,
) (Decision, error) {
	updated, err := l.store.Increment(ctx, key, l.config.MaxRequests, expireAtFor(resetTime))
	if errors.Is(err, ErrConditionFailed) {
		return l.reject(ctx, key, windowEnd), nil
	}

	if err != nil {
		return l.failOpen(ctx, key, windowEnd, "increment", err)
	}

	return Decision{
		Allowed:   true,
		Remaining: max(0, l.config.MaxRequests-updated.Count),
		ResetTime: resetTime,
	}, nil
}

// reject re-reads the entry to report when the blocking window ends. If the
// read fails the freshly computed window end is reported instead.
func (l *FixedWindowLimiter) reject(ctx context.Context, key string, windowEnd int64) Decision {
	decision := Decision{
		Allowed:   false,
		Remaining: 0,
		ResetTime: windowEnd,
	}

	entry, err := l.store.Get(ctx, key)
	switch {
	case err == nil:
		decision.ResetTime = entry.ResetTime
	case !errors.Is(err, ErrNotFound):
		l.logger.Warn("rate limit reset lookup failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	l.logger.Debug("rate limit exceeded",
		zap.String("key", key),
		zap.Int64("max", l.config.MaxRequests),
		zap.Int64("reset_time", decision.ResetTime),
	)

	return decision
}

// failOpen lets the request through when the store is unavailable. A
// cancelled or expired ctx is returned to the caller instead.
func (l *FixedWindowLimiter) failOpen(
	ctx context.Context,
	key string,
	windowEnd int64,
	op string,
	err error,
) (Decision, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", op, ctxErr)
	}

	l.logger.Error("rate limit store unavailable, allowing request",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)

	return Decision{
		Allowed:   true,
		Remaining: l.config.MaxRequests - 1,
		ResetTime: windowEnd,
	}, nil
}
