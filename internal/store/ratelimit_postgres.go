package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
)

// RateLimitPostgresStore is a PostgreSQL implementation of ratelimit.Store.
//
// Rows whose expire_at second has passed are invisible to reads and to the
// guarded increment. The reset upsert reuses the row for the next window.
type RateLimitPostgresStore struct {
	pool  *pgxpool.Pool
	clock ratelimit.Clock
}

// NewRateLimitPostgresStore creates a new PostgreSQL-backed rate limit store.
func NewRateLimitPostgresStore(pool *pgxpool.Pool, clock ratelimit.Clock) *RateLimitPostgresStore {
	if clock == nil {
		clock = ratelimit.SystemClock{}
	}

	return &RateLimitPostgresStore{pool: pool, clock: clock}
}

func (p *RateLimitPostgresStore) Get(ctx context.Context, key string) (*ratelimit.Entry, error) {
	query := `
		SELECT key, count, reset_time, expire_at
		FROM rate_limit_entries
		WHERE key = $1 AND expire_at >= $2
	`

	var entry ratelimit.Entry

	err := p.pool.QueryRow(ctx, query, key, p.clock.Now().Unix()).Scan(
		&entry.Key,
		&entry.Count,
		&entry.ResetTime,
		&entry.ExpireAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ratelimit.ErrNotFound
		}

		return nil, err
	}

	return &entry, nil
}

// Reset only replaces a row whose window has ended. A concurrent insert of
// the same key waits on the conflicting row and then re-checks the WHERE
// clause against it.
func (p *RateLimitPostgresStore) Reset(ctx context.Context, entry *ratelimit.Entry, now int64) error {
	query := `
		INSERT INTO rate_limit_entries (key, count, reset_time, expire_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			count = EXCLUDED.count,
			reset_time = EXCLUDED.reset_time,
			expire_at = EXCLUDED.expire_at
		WHERE rate_limit_entries.reset_time < $5
	`

	tag, err := p.pool.Exec(ctx, query,
		entry.Key,
		entry.Count,
		entry.ResetTime,
		entry.ExpireAt,
		now,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ratelimit.ErrConditionFailed
	}

	return nil
}

// Increment relies on the row lock taken by UPDATE: concurrent writers queue
// on it and re-check the WHERE clause against the committed count.
func (p *RateLimitPostgresStore) Increment(
	ctx context.Context,
	key string,
	limit int64,
	expireAt int64,
) (*ratelimit.Entry, error) {
	query := `
		UPDATE rate_limit_entries
		SET count = count + 1, expire_at = $3
		WHERE key = $1 AND count < $2 AND expire_at >= $4
		RETURNING key, count, reset_time, expire_at
	`

	var entry ratelimit.Entry

	err := p.pool.QueryRow(ctx, query, key, limit, expireAt, p.clock.Now().Unix()).Scan(
		&entry.Key,
		&entry.Count,
		&entry.ResetTime,
		&entry.ExpireAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ratelimit.ErrConditionFailed
		}

		return nil, err
	}

	return &entry, nil
}

// Compile-time check.
var _ ratelimit.Store = (*RateLimitPostgresStore)(nil)
