package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a Config cannot be used to build a limiter.
var ErrInvalidConfig = errors.New("invalid rate limit config")

// Entry is the persisted state for one client key.
type Entry struct {
	Key string
	// Count is the number of requests recorded in the current window.
	Count int64
	// ResetTime is the epoch-millisecond end of the current window.
	ResetTime int64
	// ExpireAt is the epoch-second timestamp after which the store drops the row.
	ExpireAt int64
}

// Live reports whether the entry's window is still current at nowMs.
func (e *Entry) Live(nowMs int64) bool {
	return e != nil && e.ResetTime >= nowMs
}

// Config bounds the number of requests a key may make per window.
type Config struct {
	MaxRequests int64
	Window      time.Duration
}

// Validate checks that both the limit and the window are positive.
func (c Config) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be positive, got %d", ErrInvalidConfig, c.MaxRequests)
	}

	if c.Window.Milliseconds() <= 0 {
		return fmt.Errorf("%w: window must be at least 1ms, got %s", ErrInvalidConfig, c.Window)
	}

	return nil
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed   bool
	Remaining int64
	// ResetTime is the epoch-millisecond end of the window the decision belongs to.
	ResetTime int64
}

// expireAtFor converts a window end in milliseconds to the store expiry in seconds.
func expireAtFor(resetTime int64) int64 {
	return resetTime / 1000
}
