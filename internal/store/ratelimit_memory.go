package store

import (
	"context"
	"sync"

	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
)

// RateLimitMemoryStore is an in-memory implementation of ratelimit.Store.
// A single mutex makes every operation atomic, which stands in for the
// conditional writes of a shared store within one process.
type RateLimitMemoryStore struct {
	mu      sync.Mutex
	entries map[string]ratelimit.Entry
	clock   ratelimit.Clock
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
// Rows are dropped lazily once the clock passes their ExpireAt second.
func NewRateLimitMemoryStore(clock ratelimit.Clock) *RateLimitMemoryStore {
	if clock == nil {
		clock = ratelimit.SystemClock{}
	}

	return &RateLimitMemoryStore{
		entries: make(map[string]ratelimit.Entry),
		clock:   clock,
	}
}

func (s *RateLimitMemoryStore) Get(ctx context.Context, key string) (*ratelimit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if !ok {
		return nil, ratelimit.ErrNotFound
	}

	return &entry, nil
}

func (s *RateLimitMemoryStore) Reset(ctx context.Context, entry *ratelimit.Entry, now int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.lookup(entry.Key); ok && current.Live(now) {
		return ratelimit.ErrConditionFailed
	}

	s.entries[entry.Key] = *entry

	return nil
}

func (s *RateLimitMemoryStore) Increment(
	ctx context.Context,
	key string,
	limit int64,
	expireAt int64,
) (*ratelimit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if !ok || entry.Count >= limit {
		return nil, ratelimit.ErrConditionFailed
	}

	entry.Count++
	entry.ExpireAt = expireAt
	s.entries[key] = entry

	return &entry, nil
}

// Len returns the number of rows currently held, including rows whose
// window ended but whose expiry second has not passed.
func (s *RateLimitMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// lookup returns the row for key, dropping it if its expiry second has passed.
// Callers must hold s.mu.
func (s *RateLimitMemoryStore) lookup(key string) (ratelimit.Entry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return ratelimit.Entry{}, false
	}

	if s.clock.Now().Unix() > entry.ExpireAt {
		delete(s.entries, key)

		return ratelimit.Entry{}, false
	}

	return entry, true
}

// Compile-time check.
var _ ratelimit.Store = (*RateLimitMemoryStore)(nil)
