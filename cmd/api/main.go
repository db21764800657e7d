package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/tutorlink/session-core/internal/api/http"
	"github.com/tutorlink/session-core/internal/api/http/handlers"
	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/config"
	"github.com/tutorlink/session-core/internal/events"
	"github.com/tutorlink/session-core/internal/observability"
	"github.com/tutorlink/session-core/internal/persistence"
	"github.com/tutorlink/session-core/internal/realtime"
	"github.com/tutorlink/session-core/internal/repository"
	"github.com/tutorlink/session-core/internal/service"
	"github.com/tutorlink/session-core/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envFile := pflag.String("env-file", "", "path to a .env file (defaults to ./.env when present)")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger, *migrateOnly); err != nil {
		logger.Fatal("session-core exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, migrateOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if pg.Enabled() && (cfg.Postgres.RunMigrations || migrateOnly) {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	if migrateOnly {
		if !pg.Enabled() {
			return errors.New("--migrate-only requires POSTGRES_DSN")
		}
		return nil
	}

	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer rdb.Close()

	metrics := observability.NewMetrics()
	stores := buildStores(cfg, pg, rdb, logger)

	tokens := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		Issuer:        cfg.Auth.Issuer,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
	})
	lifecycle := auth.NewLifecycle(tokens, stores.revocations, stores.attempts, auth.LifecycleConfig{
		StoreTimeout:     cfg.Auth.StoreTimeout,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LoginWindow:      cfg.Auth.LoginWindow,
	}, logger.Named("auth"), metrics)

	router := realtime.NewRouter(realtime.NewMemoryRegistry(), stores.users, stores.messages,
		realtime.RouterConfig{PersistTimeout: cfg.Auth.StoreTimeout}, logger.Named("realtime"), metrics)
	gateway := realtime.NewGateway(lifecycle, router, realtime.GatewayConfig{
		AllowedOrigins:   cfg.Realtime.AllowedOrigins,
		OriginRequired:   cfg.Realtime.OriginRequired,
		SendQueueSize:    cfg.Realtime.SendQueueSize,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
		ReadIdleTimeout:  cfg.Realtime.ReadIdleTimeout,
		HeartbeatEvery:   cfg.Realtime.HeartbeatEvery,
		HeartbeatTimeout: cfg.Realtime.HeartbeatTimeout,
		RateEvents:       cfg.Realtime.RateEvents,
		RateWindow:       cfg.Realtime.RateWindow,
	}, logger.Named("gateway"))

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:  stores.users,
		Lifecycle: lifecycle,
		Logger:    logger.Named("auth"),
	})
	notifications := service.NewNotificationService(events.NewInMemoryDispatcher(), router, logger.Named("notifications"))
	worker.StartNotificationWorker(notifications, logger.Named("notifications"))

	app := httptransport.NewApp(httptransport.AppConfig{
		Name:        cfg.App.Name,
		ProxyHeader: cfg.App.ProxyHeader,
		Middleware: httptransport.MiddlewareConfig{
			Timeout:     cfg.App.RequestTimeout(),
			CORSOrigins: cfg.App.CORSOrigins,
		},
	}, logger, metrics, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb),
		Auth:           handlers.NewAuthHandler(authService, handlers.CookieConfig{Secure: cfg.Auth.CookieSecure, MaxAge: cfg.Auth.RefreshTokenTTL}),
		Chat:           handlers.NewChatHandler(router),
		Notify:         handlers.NewNotifyHandler(notifications, router.Registry(), cfg.Notification.ServiceToken),
		AuthMiddleware: auth.NewAuthMiddleware(lifecycle),
		Metrics:        metrics.Handler(),
	})

	wsServer := &http.Server{
		Addr:              cfg.Realtime.Addr,
		Handler:           gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sweeper := worker.NewSweeper(stores.revocations, stores.attempts, worker.SweeperConfig{
		Interval:     cfg.Auth.SweepInterval,
		Batch:        cfg.Auth.SweepBatch,
		StoreTimeout: cfg.Auth.SweepTimeout,
	}, logger.Named("sweeper"), metrics)
	sweeper.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("realtime listening", zap.String("addr", cfg.Realtime.Addr))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("realtime listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		gateway.CloseAll()
		var errs []error
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("realtime shutdown: %w", err))
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	stop()
	sweeper.Wait()
	return err
}

type storeSet struct {
	users       repository.UserRepository
	messages    repository.MessageRepository
	revocations auth.RevocationStore
	attempts    auth.AttemptStore
}

func buildStores(cfg *config.Config, pg *persistence.Postgres, rdb *persistence.Redis, logger *zap.Logger) storeSet {
	var s storeSet
	if pg.Enabled() {
		s.users = repository.NewUserRepository(pg.PoolHandle())
		s.messages = repository.NewMessageRepository(pg.PoolHandle())
	} else {
		logger.Warn("using in-memory user and message stores; data is lost on restart")
		s.users = repository.NewMemoryUserRepository()
		s.messages = repository.NewMemoryMessageRepository()
	}

	switch cfg.Auth.RevocationBackend {
	case config.BackendPostgres:
		s.revocations = repository.NewRevocationRepository(pg.PoolHandle())
	case config.BackendRedis:
		s.revocations = repository.NewRedisRevocationStore(rdb.Client)
	default:
		s.revocations = repository.NewMemoryRevocationStore()
	}

	switch cfg.Auth.AttemptBackend {
	case config.BackendRedis:
		s.attempts = repository.NewRedisAttemptStore(rdb.Client)
	default:
		s.attempts = repository.NewMemoryAttemptStore()
	}

	logger.Info("stores selected",
		zap.String("revocations", cfg.Auth.RevocationBackend),
		zap.String("attempts", cfg.Auth.AttemptBackend),
		zap.Bool("postgres", pg.Enabled()))
	return s
}
