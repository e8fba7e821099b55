package container

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jaevor/go-nanoid"
	"github.com/samber/do"
	"github.com/serroba/mailer-ratelimit/internal/audit"
	"github.com/serroba/mailer-ratelimit/internal/handlers"
	"github.com/serroba/mailer-ratelimit/internal/health"
	"github.com/serroba/mailer-ratelimit/internal/messaging"
	"github.com/serroba/mailer-ratelimit/internal/middleware"
	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
	"go.uber.org/zap"
)

const requestIDLength = 21

// HTTPPackage provides the router and the API with every route registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)

		factory, err := do.Invoke[*ratelimit.Factory](i)
		if err != nil {
			return nil, err
		}

		publish, err := do.Invoke[messaging.Publish[audit.RateLimitExceededEvent]](i)
		if err != nil {
			return nil, err
		}

		newRequestID, err := nanoid.Standard(requestIDLength)
		if err != nil {
			return nil, err
		}

		api := humachi.New(router, huma.DefaultConfig("Mailer Rate Limit", "1.0.0"))

		api.UseMiddleware(middleware.RequestMeta(api, newRequestID))
		api.UseMiddleware(middleware.RateLimitByOperation(api, factory, middleware.RateLimitOptions{
			Enabled: opts.RateLimitEnabled,
			Logger:  logger,
			Publish: publish,
		}))

		health.RegisterRoutes(api, health.NewHandler(healthCheckers(i, opts)))
		handlers.RegisterRoutes(api, handlers.NewRateLimitHandler(factory, logger), RouteLimits(opts))

		return api, nil
	})
}

// RouteLimits maps the options to per-route limits.
func RouteLimits(opts *Options) handlers.RouteLimits {
	return handlers.RouteLimits{
		Check: ratelimit.EndpointConfig{
			MaxRequests: int64(opts.DefaultMaxRequests),
			Window:      time.Duration(opts.DefaultWindowMs) * time.Millisecond,
		},
		Entries: ratelimit.EndpointConfig{
			MaxRequests: int64(opts.DefaultMaxRequests),
			Window:      time.Duration(opts.DefaultWindowMs) * time.Millisecond,
		},
		Ping: ratelimit.EndpointConfig{
			MaxRequests: int64(opts.PingMaxRequests),
			Window:      time.Duration(opts.PingWindowMs) * time.Millisecond,
		},
	}
}

// healthCheckers reports only the backends the configuration uses.
func healthCheckers(i *do.Injector, opts *Options) map[string]health.Checker {
	checkers := make(map[string]health.Checker)

	if opts.Store == StoreRedis || opts.PublishEvents {
		if r, err := do.Invoke[*Redis](i); err == nil {
			checkers["redis"] = health.NewRedisChecker(r.Client)
		}
	}

	if opts.Store == StorePostgres {
		if pg, err := do.Invoke[*Postgres](i); err == nil {
			checkers["postgres"] = health.NewPostgresChecker(pg.Pool)
		}
	}

	return checkers
}
