package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appbilling "github.com/saasops/backend/internal/application/billing"
	domainbilling "github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/shared"
	"github.com/saasops/backend/internal/infrastructure/auth"
	infrabilling "github.com/saasops/backend/internal/infrastructure/billing"
	"github.com/saasops/backend/internal/infrastructure/cache"
	"github.com/saasops/backend/internal/infrastructure/config"
	"github.com/saasops/backend/internal/infrastructure/event"
	"github.com/saasops/backend/internal/infrastructure/logger"
	"github.com/saasops/backend/internal/infrastructure/notification"
	"github.com/saasops/backend/internal/infrastructure/persistence"
	"github.com/saasops/backend/internal/interfaces/http/handler"
	"github.com/saasops/backend/internal/interfaces/http/middleware"
	"github.com/saasops/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 0)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Redis-backed webhook idempotency with in-memory fallback
	idempotencyStore, err := cache.NewIdempotencyStore(&cfg.Redis, false, log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Repositories
	orgRepo := persistence.NewGormOrganizationRepository(db.DB)
	userRepo := persistence.NewGormUserRepository(db.DB)
	planRepo := persistence.NewGormPlanRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)

	if err := cfg.Billing.Stripe.Validate(); err != nil {
		log.Warn("Stripe configuration incomplete, webhook verification will fail", zap.Error(err))
	}
	cfg.Billing.Stripe.InitStripeClient()

	if err := seedPlanCatalog(context.Background(), planRepo, &cfg.Billing.Stripe, log); err != nil {
		log.Fatal("Failed to seed plan catalog", zap.Error(err))
	}

	notifier := notification.NewSMTPNotifier(cfg.SMTP, log)

	// Application services
	subscriptionService := appbilling.NewSubscriptionService(appbilling.SubscriptionServiceConfig{
		SubscriptionRepo: subscriptionRepo,
		PlanRepo:         planRepo,
		OrganizationRepo: orgRepo,
		EventBus:         eventBus,
		Notifier:         notifier,
		Logger:           log,
		GraceDays:        cfg.Billing.GraceDays,
	})
	seatService := appbilling.NewSeatService(appbilling.SeatServiceConfig{
		SubscriptionRepo: subscriptionRepo,
		PlanRepo:         planRepo,
		EventBus:         eventBus,
		Logger:           log,
	})
	invoiceService := appbilling.NewInvoiceService(appbilling.InvoiceServiceConfig{
		InvoiceRepo:      invoiceRepo,
		SubscriptionRepo: subscriptionRepo,
		PlanRepo:         planRepo,
		EventBus:         eventBus,
		Logger:           log,
	})
	webhookService := appbilling.NewWebhookService(appbilling.WebhookServiceConfig{
		Config:           &cfg.Billing.Stripe,
		SubscriptionSvc:  subscriptionService,
		InvoiceSvc:       invoiceService,
		OrganizationRepo: orgRepo,
		Notifier:         notifier,
		IdempotencyStore: idempotencyStore,
		IdempotencyConfig: shared.IdempotencyConfig{
			TTL:     cfg.Billing.IdempotencyTTL,
			Enabled: true,
		},
		Logger: log,
	})

	jwtService := auth.NewJWTService(cfg.JWT)

	// HTTP layer
	middleware.SetupValidator()
	webhookHandler := handler.NewPaymentWebhookHandler(webhookService)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, seatService, invoiceService, userRepo)

	engineConfig := router.EngineConfig{
		Config:         cfg,
		Logger:         log,
		JWTService:     jwtService,
		WebhookHandler: webhookHandler,
	}
	engine := router.NewEngine(engineConfig)
	apiRouter := router.NewAPIRouter(engine, engineConfig)
	apiRouter.Register(router.NewBillingRoutes(subscriptionHandler))
	apiRouter.Setup()

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus shutdown failed", zap.Error(err))
	}

	log.Info("Shutdown complete")
}

// seedPlanCatalog inserts the built-in tiers on first start. Existing plans
// are left untouched so operators can adjust pricing and features in place.
func seedPlanCatalog(ctx context.Context, planRepo domainbilling.PlanRepository, stripeCfg *infrabilling.StripeConfig, log *zap.Logger) error {
	for _, plan := range domainbilling.DefaultPlanCatalog() {
		if _, err := planRepo.FindByTier(ctx, plan.Tier); err == nil {
			continue
		} else if err != shared.ErrNotFound {
			return err
		}

		if priceID, err := stripeCfg.GetPriceID(string(plan.Tier)); err == nil {
			plan.StripePriceID = priceID
		}

		if err := planRepo.Save(ctx, plan); err != nil {
			return err
		}
		log.Info("Seeded subscription plan", zap.String("tier", string(plan.Tier)))
	}
	return nil
}
