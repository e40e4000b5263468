package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"shop-service/config"
	"shop-service/consumers"
	"shop-service/controllers"
	"shop-service/database"
	"shop-service/outbox"
	"shop-service/push"
	"shop-service/rabbitmq"
	"shop-service/repository"
	"shop-service/services"
)

func main() {
	cfg := config.LoadConfig()
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("Shop service exited with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mysqlDB, err := database.OpenMySQL(ctx, cfg)
	if err != nil {
		return err
	}
	defer mysqlDB.Close()
	if err := database.Migrate(ctx, mysqlDB, database.DialectMySQL); err != nil {
		return err
	}

	cartDB, err := database.OpenSQLite(ctx, cfg.CartDBPath)
	if err != nil {
		return err
	}
	defer cartDB.Close()
	if err := database.Migrate(ctx, cartDB, database.DialectSQLite); err != nil {
		return err
	}

	products := repository.NewProductRepository(mysqlDB)
	users := repository.NewUserRepository(mysqlDB)
	orders := repository.NewOrderRepository(mysqlDB)
	reviews := repository.NewReviewRepository(mysqlDB)
	promotions := repository.NewPromotionRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	carts := repository.NewCartRepository(cartDB)
	tx := repository.NewTxManager(mysqlDB)

	cartService := services.NewCartService(carts, products)
	authService := services.NewAuthService(users, cartService, cfg.JWTSecret, cfg.TokenTTL)
	checkoutService := services.NewCheckoutService(tx, carts, promotions)
	orderService := services.NewOrderService(tx, orders, cfg.StrictOrderStatus)
	productService := services.NewProductService(products)
	promotionService := services.NewPromotionService(tx, promotions)
	reviewService := services.NewReviewService(reviews, products, orders)
	notifications := services.NewNotificationService(
		push.NewClient(cfg.PushEndpoint, cfg.PushAccessToken, cfg.PushTimeout),
		users, orders, promotions)

	if cfg.AdminEmail != "" {
		admin, created, err := authService.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin %s: %w", cfg.AdminEmail, err)
		}
		slog.Info("Admin account ready", "email", admin.Email, "created", created)
	}

	backoff := outbox.Backoff{Base: cfg.RetryBaseDelay, Max: cfg.RetryMaxDelay}
	var workers sync.WaitGroup

	var sink outbox.Sink = outbox.SinkFunc(notifications.Handle)
	if cfg.RabbitMQURL != "" {
		rmq, err := rabbitmq.NewRabbitMQ(cfg)
		if err != nil {
			return err
		}
		defer rmq.Close()
		if err := rmq.SetupQueues(); err != nil {
			return err
		}

		msgs, err := rmq.Consume(cfg.EventQueue, "shop-service")
		if err != nil {
			return err
		}
		deadLetters, err := rmq.Consume(cfg.DeadLetterQueue, "shop-service-dlq")
		if err != nil {
			return err
		}
		consumer := consumers.NewNotificationConsumer(notifications, rmq, cfg.NotifyMaxAttempts, backoff)
		workers.Add(2)
		go func() {
			defer workers.Done()
			consumer.Run(ctx, msgs)
		}()
		go func() {
			defer workers.Done()
			consumers.RunDeadLetters(ctx, deadLetters)
		}()
		sink = outbox.SinkFunc(rmq.PublishEvent)
	} else {
		slog.Warn("RABBITMQ_URL not set, outbox events are dispatched in-process")
	}

	relay := outbox.NewRelay(outboxRepo, sink, cfg.OutboxInterval, cfg.OutboxBatchSize, cfg.NotifyMaxAttempts, backoff)
	workers.Add(1)
	go func() {
		defer workers.Done()
		relay.Run(ctx)
	}()

	uploads := controllers.Uploads{Dir: cfg.UploadsDir}
	router := controllers.NewRouter(controllers.RouterConfig{
		Auth:           authService,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		UploadsDir:     cfg.UploadsDir,
		HealthChecks: []controllers.HealthCheck{
			{Name: "mysql", Check: mysqlDB.PingContext},
			{Name: "cart", Check: cartDB.PingContext},
		},
		Users:      controllers.NewUserController(authService, uploads),
		Products:   controllers.NewProductController(productService, uploads),
		Carts:      controllers.NewCartController(cartService),
		Orders:     controllers.NewOrderController(checkoutService, orderService),
		Promotions: controllers.NewPromotionController(promotionService),
		Reviews:    controllers.NewReviewController(reviewService, uploads),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Shop service starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		stop()
		workers.Wait()
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	workers.Wait()
	return nil
}
