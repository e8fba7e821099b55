package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
	"go.uber.org/zap"
)

// RemoteKeyPrefix namespaces keys sent to the check endpoint so callers
// cannot touch the counters kept by the rate limit middleware.
const RemoteKeyPrefix = "remote:"

// Upper bounds for remote check configs.
const (
	MaxRemoteRequests = 1_000_000
	MaxRemoteWindowMs = 366 * 24 * 60 * 60 * 1000
)

// RateLimitHandler exposes the shared limiter over HTTP.
type RateLimitHandler struct {
	factory *ratelimit.Factory
	logger  *zap.Logger
}

// NewRateLimitHandler creates a new rate limit handler.
func NewRateLimitHandler(factory *ratelimit.Factory, logger *zap.Logger) *RateLimitHandler {
	return &RateLimitHandler{
		factory: factory,
		logger:  logger,
	}
}

// Check counts one request against the given key and limit. Limiters are
// built per call since the config comes from the request.
func (h *RateLimitHandler) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	if req.Body.MaxRequests > MaxRemoteRequests || req.Body.WindowMs > MaxRemoteWindowMs {
		return nil, huma.Error400BadRequest("rate limit config exceeds the allowed bounds")
	}

	limiter, err := h.factory.Build(ratelimit.Config{
		MaxRequests: req.Body.MaxRequests,
		Window:      time.Duration(req.Body.WindowMs) * time.Millisecond,
	})
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidConfig) {
			return nil, huma.Error400BadRequest(err.Error())
		}

		return nil, err
	}

	decision, err := limiter.Check(ctx, RemoteKeyPrefix+req.Body.Key)
	if err != nil {
		return nil, err
	}

	resp := &CheckResponse{}
	resp.Body.Allowed = decision.Allowed
	resp.Body.Remaining = decision.Remaining
	resp.Body.ResetTime = decision.ResetTime

	return resp, nil
}

// GetEntry returns the live entry for a key counted by Check.
func (h *RateLimitHandler) GetEntry(ctx context.Context, req *EntryRequest) (*EntryResponse, error) {
	entry, err := h.factory.Store().Get(ctx, RemoteKeyPrefix+req.Key)
	if err != nil {
		if errors.Is(err, ratelimit.ErrNotFound) {
			return nil, huma.Error404NotFound("no rate limit entry for key")
		}

		h.logger.Error("failed to read rate limit entry",
			zap.String("key", req.Key),
			zap.Error(err),
		)

		return nil, huma.Error503ServiceUnavailable("rate limit store unavailable")
	}

	// the store may still hold a row whose window has ended
	if !entry.Live(h.factory.Clock().Now().UnixMilli()) {
		return nil, huma.Error404NotFound("no rate limit entry for key")
	}

	resp := &EntryResponse{}
	resp.Body.Key = req.Key
	resp.Body.Count = entry.Count
	resp.Body.ResetTime = entry.ResetTime
	resp.Body.ExpireAt = entry.ExpireAt

	return resp, nil
}

// Ping is a cheap endpoint for exercising the rate limit middleware.
func (h *RateLimitHandler) Ping(ctx context.Context, _ *struct{}) (*PingResponse, error) {
	resp := &PingResponse{}
	resp.Body.Message = "pong"
	resp.Body.RequestID = RequestMetaFromContext(ctx).RequestID

	return resp, nil
}
