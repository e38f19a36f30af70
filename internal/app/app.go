// Package app собирает сервис из конфигурации: хранилище, шлюзы, журнал действий,
// фоновые обработчики и серверы HTTP и gRPC.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/health"
	"github.com/vladislavdragonenkov/ticketing/internal/httpapi"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
	"github.com/vladislavdragonenkov/ticketing/internal/service/notification"
	"github.com/vladislavdragonenkov/ticketing/internal/service/outbox"
	"github.com/vladislavdragonenkov/ticketing/internal/service/sweeper"
	"github.com/vladislavdragonenkov/ticketing/internal/service/task"
	"github.com/vladislavdragonenkov/ticketing/internal/tracing"
	"github.com/vladislavdragonenkov/ticketing/internal/version"
)

const (
	serviceName     = "ticketing"
	shutdownTimeout = 5 * time.Second
)

// App: собранный сервис.
type App struct {
	cfg    Config
	logger *log.Entry
	deps   *runtimeDependencies

	Ledger   *ledger.Ledger
	Services Services
	Tasks    *task.Worker
	Sweeper  *sweeper.Sweeper
	Outbox   *outbox.Worker
	Router   http.Handler

	shutdownTracing tracing.ShutdownFunc
}

// New собирает сервис, не запуская фоновых обработчиков и серверов.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := log.WithField("component", "app")

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    serviceName,
		ServiceVersion: version.Version(),
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.NewTicketingMetrics()
	deps, err := initRuntimeDependencies(ctx, cfg, m, logger)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	renderer, err := notification.NewRenderer()
	if err != nil {
		deps.close(logger)
		_ = shutdownTracing(ctx)
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, deps: deps, shutdownTracing: shutdownTracing}
	a.Ledger = ledger.New(deps.actions,
		ledger.WithOutbox(deps.outbox),
		ledger.WithMetrics(m),
		ledger.WithLogger(log.WithField("component", "ledger")),
	)
	a.Services = newServices(cfg, deps, a.Ledger, renderer)
	a.Tasks = newTaskWorker(cfg, deps, a.Ledger, a.Services, m)
	a.Sweeper = newSweeper(cfg, deps, a.Ledger, a.Services)
	a.Outbox = newOutboxWorker(cfg, deps, m)
	a.Router = httpapi.NewRouter(httpapi.Dependencies{
		Actions:      deps.actions,
		Transactions: deps.transactions,
		Tasks:        deps.tasks,
		Health:       newHealthRegistry(cfg, deps),
		Logger:       log.WithField("component", "httpapi"),
		ServiceName:  serviceName,
	})
	return a, nil
}

// Run запускает обработчики и серверы и блокируется до отмены ctx или ошибки одного из серверов.
func (a *App) Run(ctx context.Context) error {
	logger := a.logger
	httpSrv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.Router, ReadHeaderTimeout: 5 * time.Second}

	grpcServer, healthServer := newGRPCServer(logger)
	lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Tasks.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Outbox.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", a.cfg.HTTPAddr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", a.cfg.GRPCAddr).Info("grpc server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(httpSrv, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Close освобождает подключения и сбрасывает трассы.
func (a *App) Close() {
	a.deps.close(a.logger)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.WithError(err).Warn("failed to flush traces")
	}
}

// Run собирает сервис и запускает его до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func newTaskWorker(cfg Config, deps *runtimeDependencies, l *ledger.Ledger, services Services, m *metrics.TicketingMetrics) *task.Worker {
	var mailer notification.Mailer = notification.LogMailer{Logger: log.WithField("component", "mailer")}
	if cfg.SMTP.Addr != "" {
		mailer = notification.NewSMTPMailer(notification.SMTPConfig{
			Addr:     cfg.SMTP.Addr,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		})
	}
	sender := notification.NewSender(l, mailer, log.WithField("component", "notification"))

	return task.NewWorker(deps.tasks,
		task.NewHandlers(services.Payment, services.ReturnOrder, sender),
		task.WithLogger(log.WithField("component", "task-worker")),
		task.WithMetrics(m),
		task.WithPollInterval(cfg.Tasks.PollInterval),
		task.WithBatchSize(cfg.Tasks.BatchSize),
	)
}

func newSweeper(cfg Config, deps *runtimeDependencies, l *ledger.Ledger, services Services) *sweeper.Sweeper {
	targets := []sweeper.Target{
		{
			Type:     domain.TransactionTypePlaceOrder,
			Exporter: services.PlaceOrder,
			Statuses: []domain.TransactionStatus{
				domain.TransactionStatusConfirmed,
				domain.TransactionStatusCanceled,
				domain.TransactionStatusExpired,
			},
		},
		{
			Type:     domain.TransactionTypeReturnOrder,
			Exporter: services.ReturnOrder,
			Statuses: []domain.TransactionStatus{
				domain.TransactionStatusConfirmed,
				domain.TransactionStatusExpired,
			},
		},
	}
	return sweeper.New(deps.transactions, targets,
		sweeper.WithLogger(log.WithField("component", "sweeper")),
		sweeper.WithEvents(l),
		sweeper.WithInterval(cfg.Sweeper.Interval),
		sweeper.WithBatchSize(cfg.Sweeper.BatchSize),
		sweeper.WithReexportInterval(cfg.Sweeper.ReexportInterval),
		sweeper.WithTasks(deps.tasks, cfg.Sweeper.TaskRetryInterval),
	)
}

func newOutboxWorker(cfg Config, deps *runtimeDependencies, m *metrics.TicketingMetrics) *outbox.Worker {
	opts := []outbox.Option{
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithMetrics(m),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithRetryBaseDelay(cfg.Outbox.RetryDelay),
	}
	var publisher domain.OutboxPublisher = logPublisher{logger: log.WithField("component", "outbox-log")}
	if deps.producer != nil {
		publisher = kafka.NewOutboxPublisher(deps.producer, kafka.TopicTransactions)
		opts = append(opts, outbox.WithDLQPublisher(kafka.NewDLQPublisher(deps.producer)))
	}
	return outbox.NewWorker(deps.outbox, publisher, opts...)
}

// logPublisher сливает outbox в лог, когда Kafka не настроена.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"aggregate_id": msg.AggregateID,
		"event_type":   msg.EventType,
	}).Debug("outbox event dropped without kafka")
	return nil
}

func newHealthRegistry(cfg Config, deps *runtimeDependencies) *health.Registry {
	registry := health.NewRegistry(version.Version(), 0)
	if deps.store != nil {
		registry.Register("postgres", health.NewFuncChecker("postgres", deps.store.Ping))
	}
	if deps.redis != nil {
		registry.Register("redis", health.NewFuncChecker("redis", func(ctx context.Context) error {
			return deps.redis.Ping(ctx).Err()
		}))
	}
	registry.Register("outbox", health.NewBacklogChecker("outbox", cfg.Outbox.MaxPending, func(ctx context.Context) (int, error) {
		stats, err := deps.outbox.Stats(ctx)
		return stats.PendingCount, err
	}))
	return registry
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := grpchealth.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop timed out, forcing grpc shutdown")
		server.Stop()
	}
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
