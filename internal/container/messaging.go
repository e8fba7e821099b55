package container

import (
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/samber/do"
	"github.com/serroba/mailer-ratelimit/internal/audit"
	auditstore "github.com/serroba/mailer-ratelimit/internal/audit/store"
	"github.com/serroba/mailer-ratelimit/internal/messaging"
	"go.uber.org/zap"
)

const auditConsumerGroup = "ratelimit-audit"

// PublisherGroupPackage provides the Redis streams publisher and the typed
// publish function for rejection events. With publishing off, events are
// discarded and Redis is never contacted.
func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		r, err := do.Invoke[*Redis](i)
		if err != nil {
			return nil, err
		}

		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     r.Client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, err
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(injector, func(i *do.Injector) (messaging.Publish[audit.RateLimitExceededEvent], error) {
		opts := do.MustInvoke[*Options](i)
		if !opts.PublishEvents {
			return messaging.Discard[audit.RateLimitExceededEvent](), nil
		}

		group, err := do.Invoke[*messaging.PublisherGroup](i)
		if err != nil {
			return nil, err
		}

		return messaging.NewPublishFunc[audit.RateLimitExceededEvent](
			group.Publisher(),
			audit.TopicRateLimitExceeded,
		), nil
	})
}

// AuditPackage provides the store rejection events are persisted to.
func AuditPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (audit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.AuditStore != AuditPostgres {
			return auditstore.NewNoop(logger), nil
		}

		pg, err := do.Invoke[*Postgres](i)
		if err != nil {
			return nil, err
		}

		return auditstore.NewPostgres(pg.Pool), nil
	})
}

// ConsumerGroupPackage provides the consumer group persisting audit events.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		r, err := do.Invoke[*Redis](i)
		if err != nil {
			return nil, err
		}

		auditStore, err := do.Invoke[audit.Store](i)
		if err != nil {
			return nil, err
		}

		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        r.Client,
			Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup: auditConsumerGroup,
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, err
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(audit.NewConsumer(subscriber, auditStore, logger))

		return group, nil
	})
}
