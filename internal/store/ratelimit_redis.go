package store

import (
	"context"
	_ "embed" // needed for go:embed
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
)

//go:embed ratelimit_increment.lua
var incrementScriptSource string

//go:embed ratelimit_reset.lua
var resetScriptSource string

var (
	incrementScript = redis.NewScript(incrementScriptSource)
	resetScript     = redis.NewScript(resetScriptSource)
)

// RateLimitRedisStore is a Redis implementation of ratelimit.Store.
//
// Each entry is a hash (count, reset_time, expire_at) whose key expiry is set
// one second past expire_at, so Redis drops it only after the window ended.
type RateLimitRedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRateLimitRedisStore creates a new Redis-backed rate limit store.
// It accepts any redis.Cmdable so cluster and sentinel clients work too.
func NewRateLimitRedisStore(client redis.Cmdable) *RateLimitRedisStore {
	return &RateLimitRedisStore{
		client: client,
		prefix: "ratelimit:",
	}
}

func (r *RateLimitRedisStore) Get(ctx context.Context, key string) (*ratelimit.Entry, error) {
	fields, err := r.client.HGetAll(ctx, r.prefix+key).Result()
	if err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		return nil, ratelimit.ErrNotFound
	}

	entry := &ratelimit.Entry{Key: key}

	for name, dst := range map[string]*int64{
		"count":      &entry.Count,
		"reset_time": &entry.ResetTime,
		"expire_at":  &entry.ExpireAt,
	} {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s for %q: %w", name, key, err)
		}

		*dst = v
	}

	return entry, nil
}

func (r *RateLimitRedisStore) Reset(ctx context.Context, entry *ratelimit.Entry, now int64) error {
	written, err := resetScript.Run(ctx, r.client, []string{r.prefix + entry.Key},
		entry.Count,
		entry.ResetTime,
		entry.ExpireAt,
		now,
	).Int64()
	if err != nil {
		return err
	}

	if written == 0 {
		return ratelimit.ErrConditionFailed
	}

	return nil
}

func (r *RateLimitRedisStore) Increment(
	ctx context.Context,
	key string,
	limit int64,
	expireAt int64,
) (*ratelimit.Entry, error) {
	values, err := incrementScript.Run(ctx, r.client, []string{r.prefix + key}, limit, expireAt).Int64Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ratelimit.ErrConditionFailed
		}

		return nil, err
	}

	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected increment result for %q: %v", key, values)
	}

	return &ratelimit.Entry{
		Key:       key,
		Count:     values[0],
		ResetTime: values[1],
		ExpireAt:  expireAt,
	}, nil
}

// Compile-time check.
var _ ratelimit.Store = (*RateLimitRedisStore)(nil)
