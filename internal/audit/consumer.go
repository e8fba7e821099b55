package audit

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/mailer-ratelimit/internal/messaging"
	"go.uber.org/zap"
)

// NewConsumer creates a consumer that persists rejection events to store.
func NewConsumer(
	subscriber message.Subscriber,
	store Store,
	logger *zap.Logger,
) *messaging.Consumer[RateLimitExceededEvent] {
	return messaging.NewConsumer(subscriber, TopicRateLimitExceeded, store.SaveRateLimitExceeded, logger)
}
