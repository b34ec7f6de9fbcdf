package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fieldsales/crm-api/internal/handlers"
	"github.com/fieldsales/crm-api/internal/platform/config"
	"github.com/fieldsales/crm-api/internal/platform/events"
	pfirestore "github.com/fieldsales/crm-api/internal/platform/firestore"
	"github.com/fieldsales/crm-api/internal/platform/idempotency"
	"github.com/fieldsales/crm-api/internal/platform/observability"
	"github.com/fieldsales/crm-api/internal/repositories"
	firestoreRepo "github.com/fieldsales/crm-api/internal/repositories/firestore"
	"github.com/fieldsales/crm-api/internal/services"
)

const (
	firestoreCheckTimeout = 1500 * time.Millisecond
	pubsubCheckTimeout    = time.Second
	redisCheckTimeout     = 500 * time.Millisecond
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders  services.OrderService
	Catalog services.CatalogService
	System  services.SystemService
}

// Container wires repositories, services, and transport for runtime use.
type Container struct {
	Config   config.Config
	Services Services
	Build    services.BuildInfo

	logger      *zap.Logger
	firestore   *pfirestore.Provider
	pubsub      *pubsub.Client
	topic       *pubsub.Topic
	redis       redis.UniversalClient
	idempotency idempotency.Store
}

// NewContainer constructs the runtime dependencies. Clients are created lazily where the SDK
// allows it, so construction does not require the backends to be reachable.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, startedAt time.Time) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{
		Config: cfg,
		Build: services.BuildInfo{
			Version:     cfg.Build.Version,
			CommitSHA:   cfg.Build.CommitSHA,
			Environment: cfg.Build.Environment,
			StartedAt:   startedAt,
		},
		logger:    logger,
		firestore: pfirestore.NewProvider(cfg.Firestore),
	}

	if err := c.buildInfrastructure(ctx); err != nil {
		_ = c.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := c.buildServices(); err != nil {
		_ = c.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return c, nil
}

func (c *Container) buildInfrastructure(ctx context.Context) error {
	topicName := strings.TrimSpace(c.Config.PubSub.OrderEventsTopic)
	if topicName != "" {
		client, err := pubsub.NewClient(ctx, c.Config.PubSub.ProjectID, pubsubClientOptions(c.Config.PubSub)...)
		if err != nil {
			return fmt.Errorf("di: create pubsub client: %w", err)
		}
		c.pubsub = client
		c.topic = client.Topic(topicName)
		c.topic.EnableMessageOrdering = true
	} else {
		c.logger.Warn("order event publishing disabled: no topic configured")
	}

	store, err := c.newIdempotencyStore()
	if err != nil {
		return err
	}
	c.idempotency = store
	return nil
}

func (c *Container) newIdempotencyStore() (idempotency.Store, error) {
	switch c.Config.Idempotency.Backend {
	case config.IdempotencyBackendFirestore, "":
		return idempotency.NewFirestoreStore(c.firestore, ""), nil
	case config.IdempotencyBackendMemory:
		return idempotency.NewMemoryStore(), nil
	case config.IdempotencyBackendRedis:
		if strings.TrimSpace(c.Config.Redis.Addr) == "" {
			return nil, errors.New("di: redis idempotency backend requires a redis address")
		}
		c.redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		return idempotency.NewRedisStore(c.redis, c.Config.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("di: unknown idempotency backend %q", c.Config.Idempotency.Backend)
	}
}

func pubsubClientOptions(cfg config.PubSubConfig) []option.ClientOption {
	host := strings.TrimSpace(cfg.EmulatorHost)
	if host == "" {
		return nil
	}
	return []option.ClientOption{
		option.WithoutAuthentication(),
		option.WithEndpoint(host),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

func (c *Container) buildServices() error {
	catalogRepo, err := firestoreRepo.NewCatalogRepository(c.firestore)
	if err != nil {
		return fmt.Errorf("di: catalog repository: %w", err)
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(c.firestore)
	if err != nil {
		return fmt.Errorf("di: order repository: %w", err)
	}

	composer, err := services.NewOrderComposer(services.OrderComposerDeps{
		Catalog: catalogRepo,
		Orders:  orderRepo,
		Config: services.ComposerConfig{
			DefaultCurrency:   c.Config.Orders.DefaultCurrency,
			TaxPolicy:         services.NewTaxPolicy(c.Config.Orders.TaxRate),
			LookupConcurrency: c.Config.Orders.LookupConcurrency,
		},
		Clock:  time.Now,
		Logger: observability.EventLogger(c.logger.Named("orders")),
	})
	if err != nil {
		return fmt.Errorf("di: order composer: %w", err)
	}

	var publisher services.OrderEventPublisher
	if c.topic != nil {
		pub, err := events.NewPubSubOrderEventPublisher(c.topic)
		if err != nil {
			return fmt.Errorf("di: order event publisher: %w", err)
		}
		publisher = pub
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Composer: composer,
		Orders:   orderRepo,
		Events:   publisher,
		Clock:    time.Now,
		Logger:   observability.EventLogger(c.logger.Named("orders")),
	})
	if err != nil {
		return fmt.Errorf("di: order service: %w", err)
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{Catalog: catalogRepo})
	if err != nil {
		return fmt.Errorf("di: catalog service: %w", err)
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(c.dependencyChecks())
	if err != nil {
		return fmt.Errorf("di: health repository: %w", err)
	}
	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            time.Now,
		Build:            c.Build,
	})
	if err != nil {
		return fmt.Errorf("di: system service: %w", err)
	}

	c.Services = Services{
		Orders:  orderService,
		Catalog: catalogService,
		System:  systemService,
	}
	return nil
}

func (c *Container) dependencyChecks() []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: firestoreCheckTimeout,
		Check:   c.firestore.Ping,
	}}
	if c.topic != nil {
		topic := c.topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: pubsubCheckTimeout,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					// Publishers commonly lack pubsub.topics.get; the topic is then assumed present.
					if status.Code(err) == codes.PermissionDenied {
						return nil
					}
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}
	if c.redis != nil {
		client := c.redis
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: redisCheckTimeout,
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}
	return checks
}

// Handler assembles the HTTP router with the shared middleware chain.
func (c *Container) Handler() http.Handler {
	httpLogger := c.logger.Named("http")
	projectID := c.Config.Firestore.ProjectID

	idempotencyMiddleware := idempotency.Middleware(
		c.idempotency,
		idempotency.WithHeader(c.Config.Idempotency.Header),
		idempotency.WithTTL(c.Config.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(c.logger.Named("idempotency"))),
	)

	orderHandlers := handlers.NewOrderHandlers(c.Services.Orders, handlers.WithOrderIdempotency(idempotencyMiddleware))
	catalogHandlers := handlers.NewCatalogHandlers(c.Services.Catalog)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.Build),
		handlers.WithHealthSystemService(c.Services.System),
	)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.InjectLoggerMiddleware(httpLogger),
			observability.ActorMiddleware(),
			observability.RequestLoggerMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
		),
		handlers.WithRequestTimeout(c.Config.Server.RequestTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
	)
}

// Close flushes pending events and releases backend clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.pubsub != nil {
		if err := c.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub close: %w", err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.firestore != nil {
		if err := c.firestore.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("firestore close: %w", err))
		}
	}
	return errors.Join(errs...)
}
