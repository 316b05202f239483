package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/archive"
	"handshake-backend/internal/auth"
	"handshake-backend/internal/cache"
	"handshake-backend/internal/config"
	"handshake-backend/internal/database"
	"handshake-backend/internal/db"
	"handshake-backend/internal/handlers"
	"handshake-backend/internal/health"
	h "handshake-backend/internal/http"
	"handshake-backend/internal/logging"
	"handshake-backend/internal/middleware"
	"handshake-backend/internal/notify"
	"handshake-backend/internal/payfast"
	"handshake-backend/internal/repositories"
	"handshake-backend/internal/services"
	"handshake-backend/internal/timeutil"
	"handshake-backend/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.Server.Environment)

	if err := timeutil.SetLocation(cfg.Server.TimeZone); err != nil {
		logger.Fatalf("Invalid time zone %q: %v", cfg.Server.TimeZone, err)
	}

	ctx := context.Background()

	// PostgreSQL is required; everything else degrades
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatalf("Database unavailable: %v", err)
	}
	logger.WithField("host", cfg.Database.Host).Info("Connected to database")

	if err := database.NewMigrator(pool, migrations.FS, logger).RunMigrations(ctx); err != nil {
		logger.Fatalf("Migrations failed: %v", err)
	}

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr(), cfg.Redis.Password)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, duplicate deliveries rely on the database only")
	} else {
		logger.WithField("addr", cfg.RedisAddr()).Info("Connected to Redis")
	}

	var archiver services.Archiver = archive.Nop{}
	if cfg.Archive.Enabled {
		s3Archiver, err := archive.NewS3Archiver(ctx, archive.Options{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			logger.WithError(err).Warn("Notification archive disabled")
		} else {
			archiver = s3Archiver
			logger.WithField("bucket", cfg.Archive.Bucket).Info("Archiving notifications")
		}
	}

	// Repositories
	ledger := repositories.NewLedgerStore(pool)
	trustRepo := repositories.NewTrustRepository(pool)
	notificationRepo := repositories.NewNotificationRepository(pool)

	hub := notify.NewHub(cfg.Server.CorsAllowedOrigins, logger)
	dispatcher := notify.NewAsyncDispatcher(notificationRepo, logger, 1000, hub)

	// Gateway
	host := payfast.LiveHost
	if cfg.Gateway.Sandbox {
		host = payfast.SandboxHost
	}
	gatewayClient := payfast.NewClient(host, cfg.Gateway.ConfirmTimeout)
	merchant := payfast.Merchant{
		ID:         cfg.Gateway.MerchantID,
		Key:        cfg.Gateway.MerchantKey,
		Passphrase: cfg.Gateway.Passphrase,
		Host:       host,
		ReturnURL:  cfg.ReturnURL(),
		CancelURL:  cfg.CancelURL(),
		NotifyURL:  cfg.NotifyURL(),
	}

	// Services
	settler := services.NewSettler(ledger, dispatcher, cfg.FeeRate, logger)
	webhookService, err := services.NewWebhookService(
		services.WebhookConfig{
			MerchantID:   cfg.Gateway.MerchantID,
			Passphrase:   cfg.Gateway.Passphrase,
			AllowedCIDRs: cfg.Gateway.AllowedCIDRs,
		},
		gatewayClient, ledger, settler, redisClient, archiver, dispatcher, logger,
	)
	if err != nil {
		logger.Fatalf("Webhook setup failed: %v", err)
	}
	paymentRequests := services.NewPaymentRequestService(ledger, merchant, dispatcher, logger)
	cashService := services.NewCashSettlementService(ledger, settler, dispatcher, logger)
	agreementService := services.NewAgreementService(ledger, trustRepo, logger)
	receiptService := services.NewReceiptService(ledger, trustRepo)
	latenessService := services.NewLatenessService(ledger, dispatcher, logger)
	reconciler := services.NewRevenueReconciler(ledger, logger)

	// Handlers
	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	router := h.NewRouter(h.Handlers{
		Webhook:      handlers.NewWebhookHandler(webhookService, cfg.Server.TrustProxy, logger),
		Payment:      handlers.NewPaymentHandler(paymentRequests, receiptService, logger),
		Cash:         handlers.NewCashHandler(cashService, logger),
		Agreement:    handlers.NewAgreementHandler(agreementService, logger),
		Notification: handlers.NewNotificationHandler(notificationRepo, hub, logger),
		Health:       handlers.NewHealthHandler(health.NewHealthChecker(pool, redisPinger)),
	}, middleware.NewAuthMiddleware(jwtManager))

	handler := middleware.PanicRecovery(logger)(middleware.NewCORS(cfg)(router))

	// Scheduled jobs
	c := cron.New(cron.WithLocation(timeutil.Local), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.Jobs.LatenessSchedule, func() {
		n, err := latenessService.Sweep(context.Background())
		if err != nil {
			logger.WithError(err).Error("Lateness sweep failed")
			return
		}
		logger.WithField("updated", n).Info("Lateness sweep finished")
	}); err != nil {
		logger.Fatalf("Invalid lateness schedule: %v", err)
	}
	if _, err := c.AddFunc(cfg.Jobs.ReconcileSchedule, func() {
		n, err := reconciler.Reconcile(context.Background())
		if err != nil {
			logger.WithError(err).Error("Revenue reconcile failed")
			return
		}
		if n > 0 {
			logger.WithField("recovered", n).Warn("Backfilled missing revenue entries")
		}
	}); err != nil {
		logger.Fatalf("Invalid reconcile schedule: %v", err)
	}
	c.Start()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    server.Addr,
			"env":     cfg.Server.Environment,
			"sandbox": cfg.Gateway.Sandbox,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	<-c.Stop().Done()
	dispatcher.Close()
	hub.Close()
	if redisClient != nil {
		redisClient.Close()
	}
	pool.Close()
	logger.Info("Server stopped")
}
