package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-seating/internal/auth"
	"ms-seating/internal/booking"
	"ms-seating/internal/booking/api"
	booking_db "ms-seating/internal/booking/db"
	rediswrap "ms-seating/internal/booking/redis"
	"ms-seating/internal/booking/voucher"
	"ms-seating/internal/config"
	"ms-seating/internal/database/migrations"
	"ms-seating/internal/kafka"
	"ms-seating/internal/lifecycle"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
	"ms-seating/internal/pricing"
	"ms-seating/internal/registry"
	"ms-seating/internal/sweeper"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	// Hold keys carry the TTL; expiry notifications drive prompt ledger
	// cleanup, so ask redis to emit them.
	_, err = redisClient.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result()
	if err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		logger.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

// subscribeHoldExpiry listens for expired seat hold keys and releases the
// matching ledger rows. The ledger delete is conditional on the row still
// being expired, so a hold renewed after the old key lapsed survives.
func subscribeHoldExpiry(rdb *redis.Client, svc *booking.Service, logger *logger.Logger) {
	ctx := context.Background()

	pubsub := rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	logger.Info("REDIS", fmt.Sprintf("Subscribed to Redis keyevent expired notifications (DB %d)", rdb.Options().DB))

	go func() {
		for msg := range pubsub.Channel() {
			eventID, seatID, ok := rediswrap.SplitHoldKey(msg.Payload)
			if !ok {
				continue
			}
			logger.Info("SEAT_EXPIRY", fmt.Sprintf("Hold key expired for seat %s/%s", eventID, seatID))
			svc.ReleaseExpiredFromNotification(eventID, seatID)
		}
	}()
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Seating Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	migrateOpts := migrations.DefaultOptions()
	runner := migrations.NewRunner(bunDB, migrateOpts)
	if migrateOpts.AutoMigrate {
		if err := runner.RunMigrations(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Failed to run migrations: %v", err))
		}
		logger.Info("DATABASE", "Migrations applied")
	}

	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		kafkaProducer = kafka.NewProducer(cfg.Kafka.Brokers)
		logger.Info("KAFKA", "Kafka producer initialized successfully")

		requiredTopics := []string{
			cfg.Kafka.Topics.OrdersCompleted,
			cfg.Kafka.Topics.OrdersRefunded,
			cfg.Kafka.Topics.SeatStatus,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		logger.Warn("KAFKA", "Kafka disabled, seat status events will not be published")
	}

	ledger := &booking_db.DB{Bun: bunDB}
	seatRegistry := &registry.DB{Bun: bunDB}
	seatLocks := rediswrap.NewRedis(redisClient, logger, cfg.Hold.TTL)
	priceResolver := pricing.NewResolver(seatRegistry, logger)

	var statusPublisher booking.KafkaPublisher
	var lifecyclePublisher lifecycle.KafkaPublisher
	if kafkaProducer != nil {
		statusPublisher = kafkaProducer
		lifecyclePublisher = kafkaProducer
	}

	bookingService := booking.NewService(ledger, seatRegistry, seatLocks, statusPublisher, logger, cfg.Hold.TTL, cfg.Kafka.Topics.SeatStatus)
	lifecycleHandler := lifecycle.NewHandler(ledger, priceResolver, seatLocks, lifecyclePublisher, logger, cfg.Kafka.Topics.SeatStatus)
	voucherGen := voucher.NewGenerator(os.Getenv("VOUCHER_SECRET"))

	handler := api.NewHandler(bookingService, lifecycleHandler, priceResolver, voucherGen, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	var adminMiddleware func(http.Handler) http.Handler
	if os.Getenv("OIDC_ISSUER") != "" {
		adminMiddleware = auth.Middleware()
		logger.Info("AUTH", "OIDC middleware applied to admin block routes")
	} else {
		logger.Warn("AUTH", "OIDC_ISSUER not set, admin block routes are unprotected")
	}

	r.Route("/api/seating", func(r chi.Router) {
		handler.Routes(r, adminMiddleware)
	})
	logger.Info("ROUTER", "Seating routes registered under /api/seating")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	defer cancelConsumers()

	if cfg.Kafka.Enabled {
		completedConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OrdersCompleted, cfg.Kafka.GroupID, logger)
		defer completedConsumer.Close()
		go completedConsumer.Start(consumerCtx, func(value []byte) error {
			var evt models.PurchaseCompleted
			if err := json.Unmarshal(value, &evt); err != nil {
				return fmt.Errorf("malformed purchase completed event: %w", err)
			}
			return lifecycleHandler.OnPurchaseCompleted(evt)
		})

		refundConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OrdersRefunded, cfg.Kafka.GroupID, logger)
		defer refundConsumer.Close()
		go refundConsumer.Start(consumerCtx, func(value []byte) error {
			var evt models.RefundIssued
			if err := json.Unmarshal(value, &evt); err != nil {
				return fmt.Errorf("malformed refund event: %w", err)
			}
			return lifecycleHandler.OnRefund(evt)
		})
	}

	logger.Info("REDIS", "Starting hold expiry subscription")
	subscribeHoldExpiry(redisClient, bookingService, logger)

	holdSweeper := sweeper.NewSweeper(bookingService, cfg.Hold.SweepInterval, logger)
	go holdSweeper.Start(consumerCtx)

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Seating Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancelConsumers()
	holdSweeper.Stop()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Seating Service shutdown complete")
	}
}
