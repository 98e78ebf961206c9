package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "auth-session-service/internal/adapters/cache"
	eventadapter "auth-session-service/internal/adapters/events"
	httpadapter "auth-session-service/internal/adapters/http"
	"auth-session-service/internal/adapters/postgres"
	"auth-session-service/internal/adapters/security"
	"auth-session-service/internal/application"
	"auth-session-service/internal/observability"
	"auth-session-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger.With("service", cfg.ServiceID))
	logger.Info("bootstrapping auth session service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"credential_store", cfg.CredentialStore,
	)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}

	var (
		users     ports.CredentialStore
		outboxRep ports.OutboxRepository
		cleanup   func(context.Context)
	)
	switch cfg.CredentialStore {
	case StorePostgres:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("gorm sql db: %w", err)
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		users = postgres.NewCredentialRepository(db)
		outboxRep = postgres.NewOutboxRepository(db)
		cleanup = func(context.Context) { _ = sqlDB.Close() }
	case StoreRedis:
		client, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		users = cacheadapter.NewRedisCredentialStore(client)
		outboxRep = cacheadapter.NewRedisOutboxRepository(client)
		cleanup = func(context.Context) { _ = client.Close() }
	}

	accessSecret, refreshSecret := cfg.AccessTokenSecret, cfg.RefreshTokenSecret
	if accessSecret == "" || refreshSecret == "" {
		// Tokens signed with ephemeral secrets do not survive a restart;
		// acceptable for local/dev only and refused above for production.
		logger.Warn("using ephemeral JWT secrets for local/dev runtime")
		accessSecret, refreshSecret = randomSecret(), randomSecret()
	}
	issuer, err := security.NewJWTIssuer(security.JWTConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("init jwt issuer: %w", err)
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			FailedLoginThreshold: cfg.FailedThreshold,
			LockoutDuration:      cfg.LockoutDuration,
			RefreshTokenTTL:      cfg.RefreshTokenTTL,
		},
		Users:  users,
		Outbox: outboxRep,
		Hasher: security.NewBcryptHasher(cfg.BcryptCost),
		Tokens: issuer,
		Logger: logger,
	})

	handler := httpadapter.NewHandler(svc, issuer)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	outbox := eventadapter.NewOutboxWorker(
		logger,
		outboxRep,
		eventadapter.NewLoggingPublisher(logger),
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     outbox,
		cleanupFn: func(shutdownCtx context.Context) {
			cleanup(shutdownCtx)
			observability.FlushSentry()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker started")
	err := r.outbox.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}

func randomSecret() string {
	raw := make([]byte, 32)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}
