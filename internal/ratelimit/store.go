package ratelimit

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Store.Get when no live entry exists for a key.
	ErrNotFound = errors.New("rate limit entry not found")

	// ErrConditionFailed is returned when a conditional write lost: by
	// Store.Increment when count < limit did not hold, by Store.Reset when a
	// live window was already stored.
	ErrConditionFailed = errors.New("rate limit condition failed")
)

// Store defines the shared key-value store the limiter coordinates through.
//
// Implementations expire rows on their own once ExpireAt has passed; the
// limiter never deletes entries.
type Store interface {
	// Get returns the entry stored for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Reset writes entry as a new window, but only while no row is stored for
	// entry.Key or the stored ResetTime is before now (epoch ms). Otherwise it
	// returns ErrConditionFailed and leaves the row untouched.
	Reset(ctx context.Context, entry *Entry, now int64) error

	// Increment atomically adds one to the stored count and sets ExpireAt,
	// but only while the stored count is below limit. It returns the updated
	// entry, or ErrConditionFailed when the guard rejected the write.
	Increment(ctx context.Context, key string, limit int64, expireAt int64) (*Entry, error)
}
