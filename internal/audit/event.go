package audit

import "time"

// TopicRateLimitExceeded carries one event per rejected request.
const TopicRateLimitExceeded = "ratelimit.exceeded"

// RateLimitExceededEvent records a request rejected by the rate limiter.
type RateLimitExceededEvent struct {
	ID          string    `json:"id"`
	Endpoint    string    `json:"endpoint"`
	Key         string    `json:"key"`
	ClientIP    string    `json:"clientIp"`
	UserAgent   string    `json:"userAgent"`
	RequestID   string    `json:"requestId,omitempty"`
	MaxRequests int64     `json:"maxRequests"`
	ResetTime   int64     `json:"resetTime"`
	OccurredAt  time.Time `json:"occurredAt"`
}
