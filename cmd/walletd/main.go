package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/musig5344/ocasino-sub000/internal/aml"
	"github.com/musig5344/ocasino-sub000/internal/cache"
	"github.com/musig5344/ocasino-sub000/internal/codec"
	"github.com/musig5344/ocasino-sub000/internal/config"
	"github.com/musig5344/ocasino-sub000/internal/database"
	"github.com/musig5344/ocasino-sub000/internal/events"
	"github.com/musig5344/ocasino-sub000/internal/ledger"
	"github.com/musig5344/ocasino-sub000/internal/partner"
	"github.com/musig5344/ocasino-sub000/pkg/logger"
	"github.com/musig5344/ocasino-sub000/pkg/metrics"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Create logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Install the tracer provider before any service builds its tracer
	tracingShutdown, err := initTracing()
	if err != nil {
		zapLogger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Connect to PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	// Connect to Redis
	redisClient, err := database.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Amount codec
	amountCodec, err := codec.NewAmountCodec(cfg.Encryption.MasterKey, cfg.Encryption.KeySalt)
	if err != nil {
		zapLogger.Fatal("Failed to create amount codec", zap.Error(err))
	}

	// Migrations
	ledgerRepo := ledger.NewRepository(db, amountCodec, zapLogger)
	if err := ledgerRepo.AutoMigrate(); err != nil {
		zapLogger.Fatal("Failed to migrate ledger tables", zap.Error(err))
	}
	amlRepo := aml.NewRepository(db, amountCodec, zapLogger)
	if err := amlRepo.AutoMigrate(); err != nil {
		zapLogger.Fatal("Failed to migrate risk tables", zap.Error(err))
	}
	if err := db.AutoMigrate(&partner.Partner{}); err != nil {
		zapLogger.Fatal("Failed to migrate partner tables", zap.Error(err))
	}

	// Balance cache tiers
	localTier := cache.NewLocalTier(cfg.Cache.LocalTTL)
	sharedTier := cache.NewRedisTier(redisClient)
	balances := cache.NewBalanceCache(localTier, sharedTier, cfg.Cache.LocalTTL, cfg.Cache.SharedTTL, cfg.Cache.KeyPrefix, zapLogger)

	// Event bus, with the Kafka sink when streaming is enabled
	topics := map[events.EventType]string{
		events.EventTransactionCompleted: cfg.Kafka.TransactionTopic,
		events.EventBalanceChanged:       cfg.Kafka.BalanceTopic,
	}
	var publisher *events.KafkaPublisher
	var bus *events.Bus
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, zapLogger)
		bus = events.NewBus(zapLogger, topics, publisher)
	} else {
		bus = events.NewBus(zapLogger, topics)
	}

	// Create services
	partners := partner.NewGormChecker(db, zapLogger)
	ledgerSvc := ledger.NewService(db, ledgerRepo, balances, bus, partners, zapLogger)
	riskEngine := aml.NewEngine(amlRepo, cfg.AML, zapLogger)

	// Risk events: with Kafka the engine consumes the durable stream and
	// shares redelivery across instances; without it the engine subscribes
	// in-process.
	var consumer *aml.Consumer
	if cfg.Kafka.Enabled {
		consumer = aml.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.TransactionTopic, riskEngine, zapLogger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("Risk consumer stopped", zap.Error(err))
			}
		}()
	} else {
		bus.Subscribe(events.EventTransactionCompleted, riskEngine.HandleTransactionEvent)
	}

	// Schedule balance settlement rollups
	go ledgerSvc.RunSettlement(ctx, cfg.Ledger.SettlementInterval)

	// Schedule DB pool metrics collection every 30s
	tickerDB := time.NewTicker(30 * time.Second)
	defer tickerDB.Stop()
	go func() {
		for range tickerDB.C {
			if sqlDB, err := db.DB(); err == nil {
				stats := sqlDB.Stats()
				metrics.DBOpenConns.WithLabelValues("postgres").Set(float64(stats.OpenConnections))
				metrics.DBIdleConns.WithLabelValues("postgres").Set(float64(stats.Idle))
				metrics.DBInUseConns.WithLabelValues("postgres").Set(float64(stats.InUse))
			}
		}
	}()

	zapLogger.Info("Wallet service started",
		zap.Bool("kafka_enabled", cfg.Kafka.Enabled),
		zap.Duration("settlement_interval", cfg.Ledger.SettlementInterval))

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down wallet service...")
	cancel()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			zapLogger.Error("Failed to close risk consumer", zap.Error(err))
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			zapLogger.Error("Failed to close event publisher", zap.Error(err))
		}
	}
	localTier.Close()
	if err := redisClient.Close(); err != nil {
		zapLogger.Error("Failed to close Redis client", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := tracingShutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to flush traces", zap.Error(err))
	}

	zapLogger.Info("Wallet service exited properly")
}

// initTracing installs a stdout-exporting tracer provider and returns its
// shutdown function.
func initTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}
