package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/BogdanMod/lego-bot-sub001/internal/config"
	"github.com/BogdanMod/lego-bot-sub001/internal/delivery"
	"github.com/BogdanMod/lego-bot-sub001/internal/jetstream"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/internal/server"
	"github.com/BogdanMod/lego-bot-sub001/internal/storage"
	"github.com/BogdanMod/lego-bot-sub001/internal/usecase"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// How often the state janitor and the broadcast scheduler wake up.
const (
	janitorInterval   = time.Hour
	schedulerInterval = 30 * time.Second
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting bot conversation core",
		zap.String("environment", cfg.Environment),
		zap.String("nats_url", cfg.NATS.URL),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// Initialize JetStream client and ensure the event stream exists
	jsClient, err := jetstream.NewClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}
	streamCtx, streamCancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = jsClient.SetupStream(streamCtx, &nats.StreamConfig{
		Name:      cfg.NATS.Stream,
		Subjects:  cfg.NATS.SubjectList,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(cfg.NATS.MaxAge) * 24 * time.Hour,
	})
	streamCancel()
	if err != nil {
		logger.Log.Fatal("Failed to set up event stream", zap.Error(err))
	}

	// Create repository adapters for the services
	botRepo := storage.NewBotRepoAdapter(postgresRepo)
	userStateRepo := storage.NewUserStateRepoAdapter(postgresRepo)
	customerRepo := storage.NewCustomerRepoAdapter(postgresRepo)
	eventRepo := storage.NewEventRepoAdapter(postgresRepo)
	webhookLogRepo := storage.NewWebhookLogRepoAdapter(postgresRepo)
	broadcastRepo := storage.NewBroadcastRepoAdapter(postgresRepo)

	// Outbound delivery: platform API client and SSRF-guarded webhook sender
	platformClient := delivery.NewAPIClient(cfg.Platform.APIBaseURL, cfg.Platform.Timeout)
	guard := delivery.NewGuard(cfg.Webhook.AllowedHosts, cfg.Webhook.AllowHTTP)
	webhookSender := delivery.NewSender(cfg.Webhook, guard, webhookLogRepo)

	// Core services
	classifier := usecase.NewKeywordClassifier(cfg.Classifier)
	notifier := usecase.NewNotificationService(cfg.Notifier, platformClient)
	ingestService := usecase.NewIngestService(eventRepo, customerRepo, classifier,
		jsClient, notifier, cfg.Conversation.DedupWindow)
	conversationService := usecase.NewConversationService(userStateRepo, broadcastRepo,
		platformClient, webhookSender, ingestService, cfg.Conversation.StateTTL)

	// Broadcast worker pool and orchestrator
	broadcastWorker, err := usecase.NewBroadcastWorker(cfg.Broadcast, broadcastRepo, platformClient, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize broadcast worker pool", zap.Error(err))
	}
	broadcastService := usecase.NewBroadcastService(broadcastRepo, customerRepo, botRepo, broadcastWorker)

	// HTTP server: platform webhook route, management API, health endpoints
	httpServer := server.New(cfg.Server.Port, botRepo, webhookLogRepo,
		conversationService, broadcastService, postgresRepo, logger.Log)
	if metricsEnabled {
		httpServer.RegisterMetricsHandler()
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}
	httpServer.Start()

	logger.Log.Info("HTTP endpoints available",
		zap.String("webhook", fmt.Sprintf("http://localhost:%d/webhook/{botID}", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	// Expired-state janitor: the TTL is enforced on read; this just keeps the
	// table from growing without bound.
	utils.SafeGo(func() {
		runJanitor(mainCtx, userStateRepo)
	}, nil)

	// Broadcast scheduler: fans out scheduled broadcasts whose time has come
	utils.SafeGo(func() {
		runScheduler(mainCtx, broadcastService)
	}, nil)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Stop the background loops
	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	// Use WaitGroup to track shutdown of all components
	var wg sync.WaitGroup
	wg.Add(3)

	// Shutdown HTTP server first so no new updates arrive mid-teardown
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP server")
		start := time.Now()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] HTTP server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping HTTP server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown broadcast worker pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping broadcast worker pool")
		start := time.Now()
		broadcastWorker.Stop()
		logger.Log.Info("[shutdown] Broadcast worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping broadcast worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database and stream connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsStart := time.Now()
		jsClient.Close()
		logger.Log.Info("[shutdown] JetStream connection closed",
			zap.Duration("duration", time.Since(jsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Bot conversation core shutdown complete")
}

// runJanitor periodically deletes expired user state rows.
func runJanitor(ctx context.Context, states storage.UserStateRepo) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := states.DeleteExpiredUserStates(ctx)
			if err != nil {
				logger.Log.Warn("Expired state cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logger.Log.Info("Expired user states deleted", zap.Int64("count", deleted))
			}
		}
	}
}

// runScheduler periodically dispatches due broadcasts.
func runScheduler(ctx context.Context, broadcasts *usecase.BroadcastService) {
	ticker := time.NewTicker(schedulerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := broadcasts.DispatchDue(ctx, utils.Now()); err != nil {
				logger.Log.Warn("Broadcast dispatch tick failed", zap.Error(err))
			}
		}
	}
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
