package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
)

// RouteLimits holds the rate limit applied to each route.
type RouteLimits struct {
	Check   ratelimit.EndpointConfig
	Entries ratelimit.EndpointConfig
	Ping    ratelimit.EndpointConfig
}

// RegisterRoutes registers the rate limit routes with per-endpoint rate limit configuration.
func RegisterRoutes(api huma.API, h *RateLimitHandler, limits RouteLimits) {
	huma.Register(api, huma.Operation{
		OperationID: "check-rate-limit",
		Method:      http.MethodPost,
		Path:        "/v1/ratelimit/check",
		Summary:     "Check a rate limit",
		Description: "Counts one request against key and reports whether it is allowed.",
		Tags:        []string{"Rate limits"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: limits.Check,
		},
	}, h.Check)

	huma.Register(api, huma.Operation{
		OperationID: "get-rate-limit-entry",
		Method:      http.MethodGet,
		Path:        "/v1/ratelimit/entries/{key}",
		Summary:     "Get a rate limit entry",
		Description: "Returns the stored counter for key without counting a request.",
		Tags:        []string{"Rate limits"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: limits.Entries,
		},
	}, h.GetEntry)

	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        "/v1/ping",
		Summary:     "Ping",
		Tags:        []string{"Rate limits"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: limits.Ping,
		},
	}, h.Ping)
}
