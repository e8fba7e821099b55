package ratelimit

import (
	"sync"

	"go.uber.org/zap"
)

// Factory builds limiters that share one store, clock and logger.
// Limiter caches per Config and is meant for the fixed set of configs
// declared on routes. Configs taken from request input go through Build.
type Factory struct {
	store  Store
	clock  Clock
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[Config]*FixedWindowLimiter
}

// NewFactory creates a limiter factory backed by store.
func NewFactory(store Store, clock Clock, logger *zap.Logger) *Factory {
	if clock == nil {
		clock = SystemClock{}
	}

	return &Factory{
		store:    store,
		clock:    clock,
		logger:   logger,
		limiters: make(map[Config]*FixedWindowLimiter),
	}
}

// Limiter returns the limiter for config, creating it on first use.
func (f *Factory) Limiter(config Config) (*FixedWindowLimiter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.limiters[config]; ok {
		return l, nil
	}

	l, err := f.Build(config)
	if err != nil {
		return nil, err
	}

	f.limiters[config] = l

	return l, nil
}

// Build returns a new limiter for config without caching it.
func (f *Factory) Build(config Config) (*FixedWindowLimiter, error) {
	return NewFixedWindowLimiter(f.store, config, WithClock(f.clock), WithLogger(f.logger))
}

// Store returns the underlying rate limit store.
func (f *Factory) Store() Store {
	return f.store
}

// Clock returns the time source shared by the factory's limiters.
func (f *Factory) Clock() Clock {
	return f.clock
}
