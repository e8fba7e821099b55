package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
	"github.com/serroba/mailer-ratelimit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFactory(t *testing.T) {
	t.Run("caches limiters per config", func(t *testing.T) {
		factory := ratelimit.NewFactory(store.NewRateLimitMemoryStore(nil), nil, zap.NewNop())
		cfg := ratelimit.Config{MaxRequests: 3, Window: time.Minute}

		l1, err := factory.Limiter(cfg)
		require.NoError(t, err)

		l2, err := factory.Limiter(cfg)
		require.NoError(t, err)

		assert.Same(t, l1, l2)
	})

	t.Run("returns invalid config errors", func(t *testing.T) {
		factory := ratelimit.NewFactory(store.NewRateLimitMemoryStore(nil), nil, zap.NewNop())

		_, err := factory.Limiter(ratelimit.Config{MaxRequests: -1, Window: time.Minute})

		assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
	})

	t.Run("limiters share the store", func(t *testing.T) {
		clock := ratelimit.NewManualClock(testEpoch)
		memStore := store.NewRateLimitMemoryStore(clock)
		factory := ratelimit.NewFactory(memStore, clock, zap.NewNop())

		strict, err := factory.Limiter(ratelimit.Config{MaxRequests: 1, Window: time.Minute})
		require.NoError(t, err)

		loose, err := factory.Limiter(ratelimit.Config{MaxRequests: 10, Window: time.Minute})
		require.NoError(t, err)

		_, err = loose.Check(context.Background(), "shared")
		require.NoError(t, err)

		decision, err := strict.Check(context.Background(), "shared")

		require.NoError(t, err)
		assert.False(t, decision.Allowed, "the stored count is authoritative for every limiter")
		assert.Same(t, memStore, factory.Store())
		assert.Same(t, clock, factory.Clock())
	})
}
