package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/piata-ai/signalcore/internal/bus"
	"github.com/piata-ai/signalcore/internal/classifier"
	"github.com/piata-ai/signalcore/internal/console/handler"
	"github.com/piata-ai/signalcore/internal/console/server"
	"github.com/piata-ai/signalcore/internal/console/service"
	"github.com/piata-ai/signalcore/internal/dashboard"
	"github.com/piata-ai/signalcore/internal/infra"
	"github.com/piata-ai/signalcore/internal/infra/auth"
	"github.com/piata-ai/signalcore/internal/replay"
	"github.com/piata-ai/signalcore/internal/repository/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. PostgreSQL: пул плюс прогревочный Ping с ретраями,
	// база может подниматься параллельно с нами (docker-compose)
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer pool.Close()

	signalRepo := postgres.NewSignalRepo(pool)
	r := retry.New(retry.Context(ctx), retry.Attempts(5))
	if err := r.Do(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return signalRepo.Ping(pingCtx)
	}); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}

	// 3. Redis (уведомления и heartbeat-set)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, notifications disabled", zap.Error(err))
	}

	// 4. Метрики Prometheus на отдельном порту
	registry := prometheus.NewRegistry()
	metrics := infra.NewMetrics(registry)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 5. Сборка компонентов (Dependency Injection)
	registryRepo := postgres.NewRegistryRepo(pool)
	userRepo := postgres.NewUserRepo(pool)

	signalBus := bus.NewBus(signalRepo, registryRepo, rdb, metrics, logger)

	cls := classifier.New(metrics, logger)
	if cfg.Classifier.LoadDefaultRules {
		cls.LoadDefaultRules()
	}

	notifier := dashboard.NewNotifier(cfg.Dashboard, rdb, logger)
	dash := dashboard.New(cfg.Dashboard, signalBus, notifier, metrics, logger)
	dash.Start(ctx)
	defer dash.Stop()

	replayEngine := replay.NewEngine(cfg.Replay, signalBus, metrics, logger)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				replayEngine.CleanupSessions()
			}
		}
	}()

	// 6. Аутентификация консоли (RS256)
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key load failed", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key load failed", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)
	authService := service.NewAuthService(userRepo, privateKey, cfg.Auth.TokenTTL)

	// 7. HTTP API
	signalService := service.NewSignalService(signalBus, logger)

	consoleSrv := server.NewConsoleServer(
		cfg,
		logger,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewSignalHandler(signalService, logger),
		handler.NewClassifyHandler(cls, signalService, logger),
		handler.NewDashboardHandler(dash, logger),
		handler.NewReplayHandler(replayEngine, logger),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("api server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", zap.Error(err))
			stop()
		}
	}()

	// 8. Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("bye")
}
