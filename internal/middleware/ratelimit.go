package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/serroba/mailer-ratelimit/internal/audit"
	"github.com/serroba/mailer-ratelimit/internal/handlers"
	"github.com/serroba/mailer-ratelimit/internal/messaging"
	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
	"go.uber.org/zap"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// identityHeaders are joined with ":" to identify a client.
var identityHeaders = []string{"X-Forwarded-For", "Accept-Language", "User-Agent"}

const unknownIdentity = "unknown"

// RateLimitOptions configures the rate limit middlewares.
type RateLimitOptions struct {
	// Enabled is the global switch. When false requests pass through untouched.
	Enabled bool

	// Clock is used to compute Retry-After. Defaults to the system clock.
	Clock ratelimit.Clock

	Logger *zap.Logger

	// Publish receives one event per rejected request. Optional.
	Publish messaging.Publish[audit.RateLimitExceededEvent]
}

// RateLimitExceededBody is the 429 response body.
type RateLimitExceededBody struct {
	Status     int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Code       string `json:"code"`
	RetryAfter int64  `json:"retryAfter"`
}

// ContentType mirrors huma.ErrorModel so JSON rejections use the problem type.
func (b *RateLimitExceededBody) ContentType(ct string) string {
	if ct == "application/json" {
		return "application/problem+json"
	}

	if ct == "application/cbor" {
		return "application/problem+cbor"
	}

	return ct
}

type rateLimiter struct {
	api     huma.API
	clock   ratelimit.Clock
	logger  *zap.Logger
	publish messaging.Publish[audit.RateLimitExceededEvent]
}

func newRateLimiter(api huma.API, opts RateLimitOptions, clock ratelimit.Clock) *rateLimiter {
	if opts.Clock != nil {
		clock = opts.Clock
	}

	if clock == nil {
		clock = ratelimit.SystemClock{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	publish := opts.Publish
	if publish == nil {
		publish = messaging.Discard[audit.RateLimitExceededEvent]()
	}

	return &rateLimiter{api: api, clock: clock, logger: logger, publish: publish}
}

// RateLimit returns a Huma middleware that limits every request it wraps
// with limiter, keyed by endpoint and the client identity headers.
func RateLimit(
	api huma.API,
	limiter ratelimit.Limiter,
	endpoint string,
	opts RateLimitOptions,
) func(ctx huma.Context, next func(huma.Context)) {
	if !opts.Enabled {
		return func(ctx huma.Context, next func(huma.Context)) {
			next(ctx)
		}
	}

	rl := newRateLimiter(api, opts, nil)

	return func(ctx huma.Context, next func(huma.Context)) {
		rl.handle(ctx, next, limiter, endpoint)
	}
}

// RateLimitByOperation returns a Huma middleware that reads the limit from
// the operation metadata under ratelimit.MetadataKey. Operations without
// metadata, or with Disabled set, are not limited.
func RateLimitByOperation(
	api huma.API,
	factory *ratelimit.Factory,
	opts RateLimitOptions,
) func(ctx huma.Context, next func(huma.Context)) {
	if !opts.Enabled {
		return func(ctx huma.Context, next func(huma.Context)) {
			next(ctx)
		}
	}

	rl := newRateLimiter(api, opts, factory.Clock())

	return func(ctx huma.Context, next func(huma.Context)) {
		cfg := ratelimit.GetEndpointConfig(ctx)
		if cfg == nil {
			next(ctx)

			return
		}

		if cfg.Disabled {
			rl.logger.Debug("rate limiting disabled for endpoint", zap.String("endpoint", cfg.Name))
			next(ctx)

			return
		}

		limiter, err := factory.Limiter(cfg.Config())
		if err != nil {
			rl.logger.Error("invalid rate limit config",
				zap.String("endpoint", cfg.Name),
				zap.Error(err),
			)
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		rl.handle(ctx, next, limiter, cfg.Name)
	}
}

func (rl *rateLimiter) handle(
	ctx huma.Context,
	next func(huma.Context),
	limiter ratelimit.Limiter,
	endpoint string,
) {
	key := endpoint + ":" + clientIdentity(ctx)

	decision, err := limiter.Check(ctx.Context(), key)
	if err != nil {
		rl.logger.Warn("rate limit check aborted",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		_ = huma.WriteErr(rl.api, ctx, http.StatusInternalServerError, "internal server error", err)

		return
	}

	limit := limiter.Config().MaxRequests

	ctx.SetHeader(HeaderLimit, strconv.FormatInt(limit, 10))
	ctx.SetHeader(HeaderRemaining, strconv.FormatInt(decision.Remaining, 10))
	ctx.SetHeader(HeaderReset, strconv.FormatInt(ceilDiv(decision.ResetTime, 1000), 10))

	if decision.Allowed {
		next(ctx)

		return
	}

	retryAfter := max(0, ceilDiv(decision.ResetTime-rl.clock.Now().UnixMilli(), 1000))
	ctx.SetHeader(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))

	meta := handlers.RequestMetaFromContext(ctx.Context())

	rl.logger.Debug("request rejected by rate limit",
		zap.String("endpoint", endpoint),
		zap.String("key", key),
		zap.String("request_id", meta.RequestID),
		zap.Int64("retry_after", retryAfter),
	)

	rl.publishRejection(ctx, endpoint, key, limit, decision, meta)
	rl.writeRejection(ctx, limit, retryAfter)
}

func (rl *rateLimiter) publishRejection(
	ctx huma.Context,
	endpoint, key string,
	limit int64,
	decision ratelimit.Decision,
	meta handlers.RequestMeta,
) {
	event := &audit.RateLimitExceededEvent{
		ID:          uuid.NewString(),
		Endpoint:    endpoint,
		Key:         key,
		ClientIP:    clientIP(ctx),
		UserAgent:   ctx.Header("User-Agent"),
		RequestID:   meta.RequestID,
		MaxRequests: limit,
		ResetTime:   decision.ResetTime,
		OccurredAt:  rl.clock.Now().UTC(),
	}

	if err := rl.publish(ctx.Context(), event); err != nil {
		rl.logger.Warn("failed to publish rate limit event",
			zap.String("endpoint", endpoint),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}

func (rl *rateLimiter) writeRejection(ctx huma.Context, limit, retryAfter int64) {
	body := &RateLimitExceededBody{
		Status:     http.StatusTooManyRequests,
		Title:      http.StatusText(http.StatusTooManyRequests),
		Detail:     fmt.Sprintf("rate limit of %d requests exceeded, retry in %d seconds", limit, retryAfter),
		Code:       "too_many_requests",
		RetryAfter: retryAfter,
	}

	ct, err := rl.api.Negotiate(ctx.Header("Accept"))
	if err != nil {
		ct = "application/json"
	}

	ctx.SetHeader("Content-Type", body.ContentType(ct))
	ctx.SetStatus(http.StatusTooManyRequests)

	if err := rl.api.Marshal(ctx.BodyWriter(), ct, body); err != nil {
		rl.logger.Error("failed to write rate limit response", zap.Error(err))
	}
}

// clientIdentity joins the identity headers, substituting "unknown" for any
// that are missing.
func clientIdentity(ctx huma.Context) string {
	parts := make([]string, len(identityHeaders))

	for i, name := range identityHeaders {
		parts[i] = ctx.Header(name)
		if parts[i] == "" {
			parts[i] = unknownIdentity
		}
	}

	return strings.Join(parts, ":")
}

// ceilDiv divides rounding toward positive infinity.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a > 0) == (b > 0) {
		q++
	}

	return q
}
