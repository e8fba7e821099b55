package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
	"github.com/serroba/mailer-ratelimit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newEntry(key string, count int64, reset time.Time) *ratelimit.Entry {
	return &ratelimit.Entry{
		Key:       key,
		Count:     count,
		ResetTime: reset.UnixMilli(),
		ExpireAt:  reset.Unix(),
	}
}

func TestRateLimitMemoryStore(t *testing.T) {
	t.Run("get on missing key returns ErrNotFound", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))

		entry, err := s.Get(context.Background(), "key1")

		assert.Nil(t, entry)
		assert.ErrorIs(t, err, ratelimit.ErrNotFound)
	})

	t.Run("reset then get returns the entry", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))
		want := newEntry("key1", 1, testEpoch.Add(time.Minute))

		require.NoError(t, s.Reset(context.Background(), want, testEpoch.UnixMilli()))

		got, err := s.Get(context.Background(), "key1")

		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("reset refuses to replace a live window", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))
		now := testEpoch.UnixMilli()

		require.NoError(t, s.Reset(context.Background(), newEntry("key1", 9, testEpoch.Add(time.Minute)), now))

		err := s.Reset(context.Background(), newEntry("key1", 1, testEpoch.Add(time.Hour)), now)

		require.ErrorIs(t, err, ratelimit.ErrConditionFailed)

		got, err := s.Get(context.Background(), "key1")

		require.NoError(t, err)
		assert.Equal(t, int64(9), got.Count, "live window must be left untouched")
		assert.Equal(t, testEpoch.Add(time.Minute).UnixMilli(), got.ResetTime)
	})

	t.Run("reset replaces a window that has ended", func(t *testing.T) {
		clock := ratelimit.NewManualClock(testEpoch)
		s := store.NewRateLimitMemoryStore(clock)

		_ = s.Reset(context.Background(), newEntry("key1", 9, testEpoch.Add(time.Second)), testEpoch.UnixMilli())

		// past the reset time, still inside the expiry second
		clock.Advance(time.Second + time.Millisecond)

		next := clock.Now().Add(time.Minute)
		require.NoError(t, s.Reset(context.Background(), newEntry("key1", 1, next), clock.Now().UnixMilli()))

		got, err := s.Get(context.Background(), "key1")

		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Count)
		assert.Equal(t, next.UnixMilli(), got.ResetTime)
	})

	t.Run("reset on the reset millisecond still sees a live window", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))
		reset := testEpoch.Add(time.Minute)

		_ = s.Reset(context.Background(), newEntry("key1", 2, reset), testEpoch.UnixMilli())

		err := s.Reset(context.Background(), newEntry("key1", 1, reset.Add(time.Minute)), reset.UnixMilli())

		assert.ErrorIs(t, err, ratelimit.ErrConditionFailed)
	})

	t.Run("increment counts up to the limit", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))
		reset := testEpoch.Add(time.Minute)
		_ = s.Reset(context.Background(), newEntry("key1", 1, reset), testEpoch.UnixMilli())

		for want := int64(2); want <= 3; want++ {
			got, err := s.Increment(context.Background(), "key1", 3, reset.Unix())

			require.NoError(t, err)
			assert.Equal(t, want, got.Count)
			assert.Equal(t, reset.UnixMilli(), got.ResetTime)
		}

		_, err := s.Increment(context.Background(), "key1", 3, reset.Unix())

		assert.ErrorIs(t, err, ratelimit.ErrConditionFailed)
	})

	t.Run("increment on missing key fails the guard", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))

		_, err := s.Increment(context.Background(), "key1", 3, testEpoch.Unix())

		assert.ErrorIs(t, err, ratelimit.ErrConditionFailed)
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))
		reset := testEpoch.Add(time.Minute)

		_ = s.Reset(context.Background(), newEntry("key1", 5, reset), testEpoch.UnixMilli())
		_ = s.Reset(context.Background(), newEntry("key2", 1, reset), testEpoch.UnixMilli())

		got, err := s.Increment(context.Background(), "key2", 5, reset.Unix())

		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Count, "key2 should have its own counter")
	})

	t.Run("expires rows after their expiry second", func(t *testing.T) {
		clock := ratelimit.NewManualClock(testEpoch)
		s := store.NewRateLimitMemoryStore(clock)
		_ = s.Reset(context.Background(), newEntry("key1", 1, testEpoch.Add(time.Second)), testEpoch.UnixMilli())
		require.Equal(t, 1, s.Len())

		clock.Advance(time.Second)

		_, err := s.Get(context.Background(), "key1")
		require.NoError(t, err, "row is kept through its expiry second")

		clock.Advance(time.Second)

		_, err = s.Get(context.Background(), "key1")
		assert.ErrorIs(t, err, ratelimit.ErrNotFound)
		assert.Equal(t, 0, s.Len(), "expired row is dropped, not just hidden")
	})

	t.Run("honours cancelled contexts", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore(nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Get(ctx, "key1")

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRateLimitMemoryStore_ConcurrentIncrement(t *testing.T) {
	s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))
	reset := testEpoch.Add(time.Minute)
	_ = s.Reset(context.Background(), newEntry("key1", 0, reset), testEpoch.UnixMilli())

	var (
		ok     atomic.Int64
		failed atomic.Int64
		wg     sync.WaitGroup
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := s.Increment(context.Background(), "key1", 10, reset.Unix()); err != nil {
				failed.Add(1)

				return
			}

			ok.Add(1)
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(10), ok.Load())
	assert.Equal(t, int64(40), failed.Load())
}

func TestRateLimitMemoryStore_ConcurrentReset(t *testing.T) {
	s := store.NewRateLimitMemoryStore(ratelimit.NewManualClock(testEpoch))
	reset := testEpoch.Add(time.Minute)

	var (
		won  atomic.Int64
		lost atomic.Int64
		wg   sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := s.Reset(context.Background(), newEntry("key1", 1, reset), testEpoch.UnixMilli())
			if err != nil {
				assert.ErrorIs(t, err, ratelimit.ErrConditionFailed)
				lost.Add(1)

				return
			}

			won.Add(1)
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(1), won.Load(), "only one caller may open the window")
	assert.Equal(t, int64(19), lost.Load())
}
