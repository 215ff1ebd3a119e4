package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shopkit/inventory-service/config"
	"github.com/shopkit/inventory-service/internal/pkg/broker"
	"github.com/shopkit/inventory-service/internal/pkg/cache"
	"github.com/shopkit/inventory-service/internal/pkg/database/postgres"
	"github.com/shopkit/inventory-service/internal/pkg/logger"

	"github.com/shopkit/inventory-service/internal/alert"
	alertRepoPkg "github.com/shopkit/inventory-service/internal/alert/repository"
	alertUCPkg "github.com/shopkit/inventory-service/internal/alert/usecase"
	"github.com/shopkit/inventory-service/internal/reservation"
	listenerPkg "github.com/shopkit/inventory-service/internal/stock/listener"
	stockRepoPkg "github.com/shopkit/inventory-service/internal/stock/repository"
	stockUCPkg "github.com/shopkit/inventory-service/internal/stock/usecase"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = cfg.Logger.Level
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5. Initialize Kafka
	supplierConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.SupplierTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer supplierConsumer.Close()
	appLogger.Info("Connected to Kafka Consumer",
		zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.SupplierTopic))

	alertPublisher := broker.NewPublisher(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.AlertTopic,
	})
	defer alertPublisher.Close()

	// 6. Initialize Repositories and UseCases
	stockRepo := stockRepoPkg.NewPGRepository(db)
	alertRepo := alertRepoPkg.NewPGRepository(db)

	stockUC := stockUCPkg.NewStockUseCase(stockRepo, redisClient, appLogger,
		cfg.Inventory.StockCacheTTL, cfg.Inventory.LowStockThreshold)
	alertUC := alertUCPkg.NewAlertUseCase(alertRepo, alertPublisher, appLogger,
		cfg.Inventory.LowStockThreshold)

	reservations := reservation.NewManager(stockUC, appLogger, cfg.Inventory.ReservationTTL)

	// 7. Start Background Workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supplierListener := listenerPkg.NewSupplierListener(supplierConsumer, stockUC, appLogger)
	go supplierListener.Start(ctx)

	cleanup := reservation.NewScheduler(reservations, cfg.Inventory.CleanupInterval, appLogger)
	go cleanup.Start(ctx)

	go runAlertChecks(ctx, alertUC, cfg.Inventory.AlertCheckInterval, appLogger)

	appLogger.Info("Inventory service started")

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	cancel()
	appLogger.Info("Service stopped")
}

func runAlertChecks(ctx context.Context, alertUC alert.UseCase, interval time.Duration, log logger.ZapLogger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			created, err := alertUC.CheckStockAlerts(ctx)
			if err != nil {
				log.Error("Stock alert check failed", zap.Error(err))
				continue
			}
			if len(created) > 0 {
				log.Info("Raised stock alerts", zap.Int("count", len(created)))
			}
		}
	}
}
