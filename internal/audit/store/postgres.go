package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/mailer-ratelimit/internal/audit"
)

// Postgres persists audit events to the rate_limit_events table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL-backed audit store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// SaveRateLimitExceeded inserts the event. Redelivered events are ignored.
func (p *Postgres) SaveRateLimitExceeded(ctx context.Context, event *audit.RateLimitExceededEvent) error {
	query := `
		INSERT INTO rate_limit_events
			(id, endpoint, key, client_ip, user_agent, request_id, max_requests, reset_time, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.Endpoint,
		event.Key,
		event.ClientIP,
		event.UserAgent,
		event.RequestID,
		event.MaxRequests,
		event.ResetTime,
		event.OccurredAt,
	)

	return err
}

// Compile-time checks.
var (
	_ audit.Store = (*Postgres)(nil)
	_ audit.Store = (*Noop)(nil)
)
