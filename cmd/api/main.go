package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/minalesh/marketplace-backend/api/routes"
	"github.com/minalesh/marketplace-backend/internal/catalog"
	checkoutsvc "github.com/minalesh/marketplace-backend/internal/checkout"
	"github.com/minalesh/marketplace-backend/internal/notifications"
	internalorders "github.com/minalesh/marketplace-backend/internal/orders"
	"github.com/minalesh/marketplace-backend/internal/payments"
	"github.com/minalesh/marketplace-backend/internal/pricing"
	"github.com/minalesh/marketplace-backend/internal/rates"
	"github.com/minalesh/marketplace-backend/internal/reservations"
	"github.com/minalesh/marketplace-backend/pkg/config"
	"github.com/minalesh/marketplace-backend/pkg/db"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/migrate"
	"github.com/minalesh/marketplace-backend/pkg/pubsub"
	"github.com/minalesh/marketplace-backend/pkg/redis"
	pkgstripe "github.com/minalesh/marketplace-backend/pkg/stripe"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway := buildGateway(cfg, logg)
	if gateway == nil {
		os.Exit(1)
	}

	sender := buildTrackingSender(cfg, logg)
	if sender == nil {
		os.Exit(1)
	}
	dispatcher, err := notifications.NewDispatcher(sender, logg, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking dispatcher", err)
		os.Exit(1)
	}

	store := reservations.NewStore(dbClient.DB(), cfg.Checkout.HoldWindow)

	defaultTaxRate, err := decimal.NewFromString(cfg.Checkout.DefaultTaxRate)
	if err != nil {
		logg.Error(context.Background(), "invalid default tax rate", err)
		os.Exit(1)
	}
	calc, err := pricing.NewCalculator(rates.NewRepository(dbClient.DB()), pricing.Options{
		DefaultTaxRate:  defaultTaxRate,
		MaxItemQuantity: cfg.Checkout.MaxItemQty,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing calculator", err)
		os.Exit(1)
	}

	ordersRepo := internalorders.NewRepository(dbClient.DB())
	ordersSvc, err := internalorders.NewService(ordersRepo, dbClient, reservations.TxReleaser{Store: store}, dispatcher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	paymentsSvc, err := payments.NewService(ordersRepo, dbClient, reservations.TxConsumer{Store: store}, gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}
	checkoutService, err := checkoutsvc.NewService(
		catalog.NewRepository(dbClient.DB()),
		store,
		calc,
		ordersRepo,
		dbClient,
		gateway,
		dispatcher,
		logg,
		enums.Currency(cfg.Checkout.Currency),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Checkout: checkoutService,
			Orders:   ordersSvc,
			Payments: paymentsSvc,
			Sweeper:  store,
		}),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
		if err := dispatcher.Flush(timeoutCtx); err != nil {
			logg.Error(ctx, "tracking dispatcher drain incomplete", err)
		}
	}
}

// buildGateway uses Stripe whenever credentials exist; outside production a
// missing key falls back to the offline gateway.
func buildGateway(cfg *config.Config, logg *logger.Logger) payments.Gateway {
	if cfg.Stripe.APIKey != "" {
		client, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to initialize stripe", err)
			return nil
		}
		return payments.NewStripeGateway(client)
	}
	if cfg.App.IsProd() {
		logg.Error(context.Background(), "stripe api key is required in production", nil)
		return nil
	}
	logg.Warn(context.Background(), "stripe not configured, using offline payment gateway")
	return payments.NewOfflineGateway()
}

func buildTrackingSender(cfg *config.Config, logg *logger.Logger) notifications.Sender {
	if cfg.GCP.ProjectID != "" {
		client, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to initialize pubsub", err)
			return nil
		}
		sender, err := notifications.NewPubSubSender(client.OrderTrackingPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create tracking sender", err)
			return nil
		}
		return sender
	}
	logg.Warn(context.Background(), "pubsub not configured, logging tracking events instead")
	sender, err := notifications.NewLogSender(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking sender", err)
		return nil
	}
	return sender
}
