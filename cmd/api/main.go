package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace_backend/internal/adapters/storage"
	"marketplace_backend/internal/conversations"
	"marketplace_backend/internal/email"
	"marketplace_backend/internal/events"
	"marketplace_backend/internal/guestauth"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/internal/http/router"
	"marketplace_backend/internal/notification"
	"marketplace_backend/internal/offers"
	offershandler "marketplace_backend/internal/offers/handler"
	"marketplace_backend/internal/profiles"
	"marketplace_backend/internal/requests"
	"marketplace_backend/internal/whatsapp"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/db"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisOpts, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		panic("failed to parse redis url: " + err.Error())
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	log.Info("redis connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Storage for voice messages and offer attachments (MinIO). Optional in
	// local development; upload endpoints refuse files when disabled.
	var storageSvc *storage.MinIOService
	if cfg.IsMinIOEnabled() {
		storageSvc, err = storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure storage buckets", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBuckets(ctx)
		}); err != nil {
			log.Error("failed to ensure storage buckets", "error", err)
			panic("failed to ensure storage buckets: " + err.Error())
		}
		log.Info("storage service initialized",
			"voiceBucket", cfg.GetMinioBucketVoiceMessages(),
			"attachmentsBucket", cfg.GetMinioBucketOfferAttachments(),
		)
	} else {
		log.Warn("MinIO not configured; voice messages and attachments disabled")
	}

	whatsappClient := whatsapp.NewClient(cfg, log)
	emailSender := email.NewSMTPSender(cfg)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	profilesModule := profiles.NewModule(pool, val, eventBus, log)
	requestsModule := requests.NewModule(pool, val)

	var uploader offershandler.AttachmentUploader
	if storageSvc != nil {
		uploader = storageSvc
	}
	offersModule := offers.NewModule(pool, val, eventBus, log, uploader)
	offersModule.RegisterEventHandlers(eventBus)

	conversationsModule := conversations.NewModule(pool, val, eventBus, log, cfg)
	conversationsModule.RegisterEventHandlers(eventBus)
	guestAuthModule := guestauth.NewModule(rdb, whatsappClient, val, eventBus, log, cfg)
	guestAuthModule.RegisterEventHandlers(eventBus)

	// Notification module subscribes to domain events (not HTTP-facing)
	var mailSender email.Sender
	if emailSender != nil {
		mailSender = emailSender
	}
	notificationModule := notification.NewModule(whatsappClient, mailSender, log)
	notificationModule.SetProfileDirectory(profilesModule.Service())
	notificationModule.RegisterEventHandlers(eventBus)

	// Cross-module wiring through locally defined ports
	requestsModule.Service().SetOffersReader(offersModule.Service())
	offersModule.Service().SetProfileDirectory(profilesModule.Service())
	offersModule.Service().SetConversationCloser(conversationsModule.Service())
	offersModule.Service().SetQueuedOfferSource(guestAuthModule.Service())
	conversationsModule.Service().SetOfferDirectory(offersModule.Service())
	if storageSvc != nil {
		conversationsModule.Service().SetVoiceStorage(storageSvc)
	}
	guestAuthModule.Service().SetProfileGateway(profilesModule.Service())
	guestAuthModule.Service().SetRequestGateway(requestsModule.Service())
	guestAuthModule.Service().SetOfferSubmitter(offersModule.Service())

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			profilesModule,
			requestsModule,
			offersModule,
			conversationsModule,
			guestAuthModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		conversationsModule.Hub().Close()
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
