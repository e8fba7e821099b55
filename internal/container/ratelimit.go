package container

import (
	"fmt"

	"github.com/samber/do"
	"github.com/serroba/mailer-ratelimit/internal/ratelimit"
	"github.com/serroba/mailer-ratelimit/internal/store"
	"go.uber.org/zap"
)

// StorePackage provides the rate limit store selected by Options.Store.
func StorePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (ratelimit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		clock := do.MustInvoke[ratelimit.Clock](i)

		switch opts.Store {
		case StoreMemory:
			return store.NewRateLimitMemoryStore(clock), nil
		case StoreRedis:
			r, err := do.Invoke[*Redis](i)
			if err != nil {
				return nil, err
			}

			return store.NewRateLimitRedisStore(r.Client), nil
		case StorePostgres:
			pg, err := do.Invoke[*Postgres](i)
			if err != nil {
				return nil, err
			}

			return store.NewRateLimitPostgresStore(pg.Pool, clock), nil
		default:
			return nil, fmt.Errorf("%w: unknown store %q", errInvalidOption, opts.Store)
		}
	})
}

// RateLimitPackage provides the clock and the limiter factory.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (ratelimit.Clock, error) {
		return ratelimit.SystemClock{}, nil
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.Factory, error) {
		rateLimitStore, err := do.Invoke[ratelimit.Store](i)
		if err != nil {
			return nil, err
		}

		return ratelimit.NewFactory(
			rateLimitStore,
			do.MustInvoke[ratelimit.Clock](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}
