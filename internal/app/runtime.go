package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway/coa"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway/gmo"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway/pecorino"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	"github.com/vladislavdragonenkov/ticketing/internal/resilience"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/postgres"
)

// repositories: реализации всех портов хранения выбранного драйвера.
type repositories struct {
	actions      domain.ActionRepository
	transactions domain.TransactionRepository
	orders       domain.OrderRepository
	tasks        domain.TaskRepository
	orgs         domain.OrganizationRepository
	ownership    domain.OwnershipInfoRepository
	outbox       domain.OutboxRepository
	store        *postgres.Store
}

type gateways struct {
	seats    domain.SeatReservationGateway
	cards    domain.CreditCardGateway
	pecorino domain.PecorinoGateway
}

// runtimeDependencies: внешние ресурсы процесса; close освобождает их в обратном порядке.
type runtimeDependencies struct {
	repositories
	gateways
	producer *kafka.Producer
	redis    *redis.Client
	closers  []func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to release runtime dependency")
		}
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, m *metrics.TicketingMetrics, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	repos, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.repositories = repos
	if repos.store != nil {
		deps.closers = append(deps.closers, repos.store.Close)
	}

	limiter := resilience.Limiter(resilience.NewLocalLimiter(cfg.Gateways.GMO.RPS, cfg.Gateways.GMO.Burst))
	if cfg.Redis.Addr != "" {
		client, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("redis is unavailable, using local gmo limiter")
		} else {
			deps.redis = client
			deps.closers = append(deps.closers, client.Close)
			limiter = resilience.NewRedisLimiter(client, "ticketing:gmo", cfg.Gateways.GMO.RPS, cfg.Gateways.GMO.Burst)
			logger.WithField("addr", cfg.Redis.Addr).Info("shared gmo limiter enabled")
		}
	}
	deps.gateways = initGateways(cfg, limiter, m, logger)

	producer, err := initKafkaProducer(cfg.Kafka, logger)
	if err == nil && producer != nil {
		deps.producer = producer
		deps.closers = append(deps.closers, producer.Close)
	}

	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (repositories, error) {
	switch cfg.Storage.Driver {
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return repositories{}, err
		}
		if cfg.Storage.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return repositories{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		logger.Info("postgres storage initialized")
		return repositories{
			actions:      postgres.NewActionRepository(store),
			transactions: postgres.NewTransactionRepository(store),
			orders:       postgres.NewOrderRepository(store),
			tasks:        postgres.NewTaskRepository(store),
			orgs:         postgres.NewOrganizationRepository(store),
			ownership:    postgres.NewOwnershipInfoRepository(store),
			outbox:       postgres.NewOutboxRepository(store),
			store:        store,
		}, nil
	case StorageDriverMemory, "":
		sellers := make([]domain.Organization, 0, len(cfg.Sellers))
		for _, s := range cfg.Sellers {
			sellers = append(sellers, s.organization())
		}
		logger.WithField("sellers", len(sellers)).Info("memory storage initialized")
		return repositories{
			actions:      memory.NewActionRepository(),
			transactions: memory.NewTransactionRepository(),
			orders:       memory.NewOrderRepository(),
			tasks:        memory.NewTaskRepository(),
			orgs:         memory.NewOrganizationRepository(sellers...),
			ownership:    memory.NewOwnershipInfoRepository(),
			outbox:       memory.NewOutboxRepository(),
		}, nil
	default:
		return repositories{}, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func (s SellerConfig) organization() domain.Organization {
	org := domain.Organization{
		ID:        s.ID,
		TypeOf:    domain.ParticipantMovieTheater,
		Name:      s.Name,
		Telephone: s.Phone,
		URL:       s.URL,
		Email:     s.Email,
	}
	if s.ShopID != "" {
		org.GMOInfo = &domain.GMOShopInfo{ShopID: s.ShopID, ShopPass: s.ShopPass}
	}
	return org
}

func initRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func initGateways(cfg Config, limiter resilience.Limiter, m *metrics.TicketingMetrics, logger *log.Entry) gateways {
	if cfg.Gateways.Mode != GatewayModeHTTP {
		logger.Warn("external gateways run as in-memory simulators")
		return gateways{
			seats:    coa.NewSimulator(),
			cards:    gmo.NewSimulator(),
			pecorino: pecorino.NewSimulator(),
		}
	}

	guard := func(name string, extra ...gateway.GuardOption) *gateway.Guard {
		opts := []gateway.GuardOption{
			gateway.WithMetrics(m),
			gateway.WithLogger(logger.WithField("gateway", name)),
			gateway.WithBreaker(resilience.NewCircuitBreaker(
				cfg.Gateways.BreakerFailures,
				cfg.Gateways.BreakerReset,
				logger.WithField("breaker", name),
			)),
		}
		return gateway.NewGuard(name, append(opts, extra...)...)
	}

	gc := cfg.Gateways
	return gateways{
		seats: coa.NewClient(coa.Config{
			Endpoint:     gc.COA.Endpoint,
			RefreshToken: gc.COA.RefreshToken,
			Timeout:      gc.Timeout,
		}, guard("coa")),
		cards: gmo.NewClient(gmo.Config{
			Endpoint: gc.GMO.Endpoint,
			Timeout:  gc.Timeout,
		}, guard("gmo", gateway.WithLimiter(limiter))),
		pecorino: pecorino.NewGateway(pecorino.Config{
			Endpoint:     gc.Pecorino.Endpoint,
			AuthEndpoint: gc.Pecorino.AuthEndpoint,
			ClientID:     gc.Pecorino.ClientID,
			ClientSecret: gc.Pecorino.ClientSecret,
			Scopes:       gc.Pecorino.Scopes,
			Timeout:      gc.Timeout,
		}, guard("pecorino")),
	}
}

// initKafkaProducer возвращает nil, nil без брокеров.
// Ошибка подключения не фатальна: события копятся в outbox до следующего запуска.
func initKafkaProducer(cfg KafkaConfig, logger *log.Entry) (*kafka.Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	producer, err := kafka.NewProducer(cfg.Brokers, cfg.ClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}
	logger.WithField("brokers", cfg.Brokers).Info("kafka producer initialized")
	return producer, nil
}
