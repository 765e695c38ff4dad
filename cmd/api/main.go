package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/smart-inventory/internal/config"
	"github.com/flicky/smart-inventory/internal/handler"
	"github.com/flicky/smart-inventory/internal/metrics"
	"github.com/flicky/smart-inventory/internal/middleware"
	"github.com/flicky/smart-inventory/internal/model"
	"github.com/flicky/smart-inventory/internal/notify"
	"github.com/flicky/smart-inventory/internal/repository"
	"github.com/flicky/smart-inventory/internal/service"
	"github.com/flicky/smart-inventory/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	if cfg.DB.Migrate {
		applied, err := repository.Migrate(ctx, dbPool)
		if err != nil {
			log.Error("migrate database", "error", err)
			os.Exit(1)
		}
		log.Info("database migrated", "applied", applied)
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	m := metrics.New()

	// RabbitMQ
	var (
		amqpConn           *amqp.Connection
		notificationWorker *worker.NotificationWorker
		notifier           notify.Notifier = notify.NewLogNotifier(log)
	)
	if cfg.RabbitMQ.Enabled {
		amqpConn, err = amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer amqpConn.Close()

		consumeCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer consumeCh.Close()

		if err := worker.SetupRabbitMQ(consumeCh); err != nil {
			log.Error("setup RabbitMQ", "error", err)
			os.Exit(1)
		}

		publishCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer publishCh.Close()
		log.Info("connected to RabbitMQ")

		var mailer notify.Mailer = notify.NewLogMailer(log)
		if cfg.Mail.SendGridAPIKey != "" {
			mailer = notify.NewSendGridMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.SenderEmail, cfg.Mail.SenderName)
		} else {
			log.Warn("SENDGRID_API_KEY not set, emails are written to the log")
		}
		notifier = notify.NewAMQPNotifier(publishCh)
		notificationWorker = worker.NewNotificationWorker(consumeCh, mailer, worker.NewRedisDeduper(redisClient), m, log)
	} else {
		log.Warn("RABBITMQ_ENABLED is false, emails are not sent")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	categoryRepo := repository.NewCategoryRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	tokenStore := repository.NewTokenStore(redisClient)

	// Services
	authSvc := service.NewAuthService(userRepo, orderRepo, tokenStore, notifier, service.PlaintextSecurityAnswer{}, log,
		service.AuthConfig{
			JWTSecret:       cfg.JWT.Secret,
			JWTExpiry:       cfg.JWT.Expiration,
			ResetTicketTTL:  cfg.Tokens.ResetTicketTTL,
			ConfirmationTTL: cfg.Tokens.ConfirmationTTL,
			PublicURL:       cfg.Server.PublicURL,
		})
	categorySvc := service.NewCategoryService(categoryRepo)
	productSvc := service.NewProductService(productRepo, categoryRepo, redisClient)
	orderSvc := service.NewOrderService(orderRepo, userRepo, redisClient, notifier, m, log, cfg.Mail.OrderReceipts)

	if cfg.Seed.Enabled {
		seedUsers(ctx, log, authSvc, cfg.Seed)
	}

	router := handler.NewRouter(handler.Handlers{
		Account:  handler.NewAccountHandler(authSvc, log),
		Category: handler.NewCategoryHandler(categorySvc, log),
		Product:  handler.NewProductHandler(productSvc, log),
		Order:    handler.NewOrderHandler(orderSvc, log),
		Health:   handler.NewHealthHandler(dbPool, redisClient, amqpConn),
	}, middleware.NewAuthenticator(cfg.JWT.Secret, tokenStore), service.DefaultPolicy(), m)

	if notificationWorker != nil {
		if err := notificationWorker.Start(ctx); err != nil {
			log.Error("start notification worker", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	if notificationWorker != nil {
		notificationWorker.Stop()
	}
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}

func seedUsers(ctx context.Context, log *slog.Logger, authSvc *service.AuthService, seed config.SeedConfig) {
	accounts := []struct {
		email, password, name, role string
	}{
		{seed.AdminEmail, seed.AdminPassword, "Administrator", model.RoleAdmin},
		{seed.UserEmail, seed.UserPassword, "Regular User", model.RoleUser},
	}
	for _, a := range accounts {
		created, err := authSvc.EnsureUser(ctx, a.email, a.password, a.name, a.role)
		if err != nil {
			log.Error("seed user", "email", a.email, "error", err)
			continue
		}
		if created {
			log.Info("seeded user", "email", a.email, "role", a.role)
		}
	}
}
