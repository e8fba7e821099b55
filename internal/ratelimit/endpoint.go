package ratelimit

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint rate limit configuration.
// It is attached to Huma operations via the Metadata field.
type EndpointConfig struct {
	// Name scopes the limiter key. Two operations sharing a Name share
	// counters. When empty the operation ID is used.
	Name string

	MaxRequests int64
	Window      time.Duration

	// Disabled skips rate limiting entirely for this endpoint.
	Disabled bool
}

// Config returns the limiter config described by the endpoint.
func (c EndpointConfig) Config() Config {
	return Config{MaxRequests: c.MaxRequests, Window: c.Window}
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	if cfg.Name == "" {
		cfg.Name = op.OperationID
	}

	return &cfg
}
