package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/config"
	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/handler"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/cache"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/resilience"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/sqlite"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/telegram"
	"github.com/jerealeksanteri/skilta-piikki/internal/port"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("database_path", cfg.DatabasePath),
		zap.Int("admin_ids", len(cfg.AdminTelegramIDs)),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("init_data_ttl", cfg.InitDataTTL),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "skilta-piikki")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Storage ---
	store, err := sqlite.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close()

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Seed(seedCtx, cfg.AdminTelegramIDs); err != nil {
		cancelSeed()
		logger.Fatal("failed to seed database", zap.Error(err))
	}
	cancelSeed()

	// --- Cache ---
	leaderboardCache := cache.New[[]domain.Member](cfg.CacheTTL)

	// --- Notifications ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
	}
	cb := resilience.NewCircuitBreaker("telegram")

	var sender port.MessageSender
	if cfg.BotToken != "" && !cfg.DevMode {
		notifier, err := telegram.NewNotifier(cfg.BotToken, cfg.HTTPTimeout, cb, resilienceCfg, logger)
		if err != nil {
			logger.Fatal("failed to connect telegram bot", zap.Error(err))
		}
		sender = notifier
	} else {
		logger.Warn("no bot token configured, notifications will be logged only")
		sender = &telegram.LogSender{Logger: logger}
	}

	// --- Services ---
	authSvc := service.NewAuthService(store, cfg.BotToken, cfg.JWTSecret,
		cfg.JWTAccessTTL, cfg.InitDataTTL, cfg.DevMode, logger)
	messagingSvc := service.NewMessagingService(store, sender, metrics, logger)
	directorySvc := service.NewDirectoryService(store, leaderboardCache, metrics, logger)
	catalogSvc := service.NewCatalogService(store, cache.New[[]domain.Product](cfg.CacheTTL), metrics, logger)
	ledgerSvc := service.NewLedgerService(store, messagingSvc, leaderboardCache, metrics, logger)
	fiscalSvc := service.NewFiscalService(store, messagingSvc, leaderboardCache, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Auth:      authSvc,
		Directory: directorySvc,
		Catalog:   catalogSvc,
		Ledger:    ledgerSvc,
		Fiscal:    fiscalSvc,
		Messaging: messagingSvc,
	}, store, metrics, cfg.CORSOrigins, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
