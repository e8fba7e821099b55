package store

import (
	"context"

	"github.com/serroba/mailer-ratelimit/internal/audit"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of audit.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op audit store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveRateLimitExceeded(_ context.Context, event *audit.RateLimitExceededEvent) error {
	n.logger.Info("rate limit exceeded event received",
		zap.String("id", event.ID),
		zap.String("endpoint", event.Endpoint),
		zap.String("clientIp", event.ClientIP),
		zap.Int64("maxRequests", event.MaxRequests),
		zap.Time("occurredAt", event.OccurredAt),
	)

	return nil
}
