package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-desk/internal/api/http"
	"github.com/spec-kit/ticket-desk/internal/api/http/handlers"
	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/persistence"
	"github.com/spec-kit/ticket-desk/internal/platform"
	"github.com/spec-kit/ticket-desk/internal/repository"
	"github.com/spec-kit/ticket-desk/internal/service"
	"github.com/spec-kit/ticket-desk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		ticketRepo     repository.TicketRepository
		messageRepo    repository.TicketMessageRepository
		transcriptRepo repository.TranscriptRepository
		guildCfgRepo   repository.GuildConfigRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		ticketRepo = repository.NewTicketRepository(pool)
		messageRepo = repository.NewTicketMessageRepository(pool)
		transcriptRepo = repository.NewTranscriptRepository(pool)
		guildCfgRepo = repository.NewGuildConfigRepository(pool)
	} else {
		logger.Warn("no postgres pool; using volatile in-memory storage")
		mem := repository.NewMemoryStore()
		ticketRepo = mem
		messageRepo = mem
		transcriptRepo = mem
		guildCfgRepo = mem
	}

	var activityCache repository.ActivityCache
	if redis.Client != nil && redis.Ping(ctx) == nil {
		activityCache = repository.NewRedisActivityCache(redis.Client,
			time.Duration(cfg.Scheduler.ActivityTTLHours)*time.Hour)
	} else {
		activityCache = repository.NewMemoryActivityCache()
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	dispatcher := events.NewInMemoryDispatcher()

	channelGateway := platform.NewRetryingGateway(
		platform.NewLoggingGateway(logger),
		cfg.Lifecycle.ChannelRetries,
		cfg.Lifecycle.ChannelBackoff(),
		logger,
	)
	notifier := platform.NewLoggingNotifier(logger)

	lifecycle := service.NewLifecycleService(cfg.Lifecycle, service.LifecycleDependencies{
		TicketRepo:     ticketRepo,
		MessageRepo:    messageRepo,
		TranscriptRepo: transcriptRepo,
		GuildConfigs:   guildCfgRepo,
		Activity:       activityCache,
		Dispatcher:     dispatcher,
		Channels:       channelGateway,
		Metrics:        metrics,
		Logger:         logger,
	})
	transcriptService := service.NewTranscriptService(cfg.Lifecycle, service.TranscriptDependencies{
		TicketRepo:     ticketRepo,
		MessageRepo:    messageRepo,
		TranscriptRepo: transcriptRepo,
		Dispatcher:     dispatcher,
		Archiver:       lifecycle,
		Metrics:        metrics,
		Logger:         logger,
	})
	notificationService := service.NewNotificationService(dispatcher, notifier, ticketRepo, metrics, logger)
	worker.StartSubscribers(notificationService, transcriptService)

	sweeper := worker.NewInactivitySweeper(cfg.Scheduler, lifecycle, ticketRepo, activityCache, metrics, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("failed to start inactivity sweep", zap.Error(err))
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(lifecycle, transcriptRepo),
		GuildConfig:    handlers.NewGuildConfigHandler(guildCfgRepo),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(cfg.App.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	sweeper.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
