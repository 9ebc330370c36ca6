package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	positionapp "github.com/wyfcoding/investmarket/internal/position/application"
	positiondomain "github.com/wyfcoding/investmarket/internal/position/domain"
	positionmysql "github.com/wyfcoding/investmarket/internal/position/infrastructure/persistence/mysql"
	positionredis "github.com/wyfcoding/investmarket/internal/position/infrastructure/persistence/redis"
	positionconsumer "github.com/wyfcoding/investmarket/internal/position/interfaces/consumer"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/application"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/domain"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/infrastructure/authz"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/infrastructure/payment"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/infrastructure/persistence/mysql"
	httpserver "github.com/wyfcoding/investmarket/internal/secondarymarket/interfaces/http"
	"github.com/wyfcoding/pkg/cache"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/database"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"github.com/wyfcoding/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/secondarymarket/config.toml", "config file path")

const defaultFeeRate = "0.01"

func main() {
	flag.Parse()

	// 1. Config
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	logCfg := &logging.Config{
		Service:    cfg.Server.Name,
		Module:     "secondarymarket",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	logger := logging.NewFromConfig(logCfg)
	slog.SetDefault(logger.Logger)

	// 3. Metrics
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)
	if cfg.Metrics.Enabled {
		go metricsImpl.ExposeHTTP(cfg.Metrics.Port)
	}

	// 4. Infrastructure
	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(
			&domain.Listing{}, &domain.Trade{}, &positiondomain.Position{}, &outbox.Message{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Kafka & Outbox
	kafkaProducer := kafka.NewProducer(&cfg.MessageQueue.Kafka, logger, metricsImpl)
	outboxMgr := outbox.NewManager(db.RawDB(), logger.Logger)
	pusher := func(ctx context.Context, topic, key string, payload []byte) error {
		return kafkaProducer.PublishToTopic(ctx, topic, []byte(key), payload)
	}
	outboxProcessor := outbox.NewProcessor(outboxMgr, pusher, 100, 2*time.Second)
	publisher := outbox.NewPublisher(outboxMgr)

	// 6. Redis
	redisCache, err := cache.NewRedisCache(&cfg.Data.Redis, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}
	redisClient := redisCache.GetClient()

	// 7. Collaborators
	var paymentAuthority domain.PaymentAuthority
	if paymentURL := os.Getenv("PAYMENT_AUTHORITY_URL"); paymentURL != "" {
		paymentAuthority = payment.NewClient(paymentURL)
	} else {
		slog.Warn("PAYMENT_AUTHORITY_URL not set, using in-memory payment simulator")
		paymentAuthority = payment.NewSimulator()
	}

	var authorizer domain.Authorizer
	if authzURL := os.Getenv("AUTHZ_URL"); authzURL != "" {
		authorizer = authz.NewClient(authzURL)
	} else {
		slog.Warn("AUTHZ_URL not set, all market operations allowed")
		authorizer = authz.AllowAll{}
	}

	feeRateStr := os.Getenv("MARKET_FEE_RATE")
	if feeRateStr == "" {
		feeRateStr = defaultFeeRate
	}
	feeRate, err := decimal.NewFromString(feeRateStr)
	if err != nil || feeRate.IsNegative() {
		slog.Error("invalid MARKET_FEE_RATE", "value", feeRateStr)
		os.Exit(1)
	}
	currency := os.Getenv("MARKET_CURRENCY")
	if currency == "" {
		currency = "USD"
	}

	// 8. Repositories & Application
	listingRepo := mysql.NewListingRepository(db.RawDB())
	tradeRepo := mysql.NewTradeRepository(db.RawDB())
	positionRepo := positionmysql.NewPositionRepository(db.RawDB())
	snapshotRepo := positionredis.NewSnapshotRedisRepository(redisClient)

	projectionSvc := positionapp.NewProjectionService(positionRepo, snapshotRepo, logger.Logger)
	listingCmd := application.NewListingCommandService(listingRepo, tradeRepo, positionRepo, authorizer, publisher, logger.Logger)
	tradeCmd := application.NewTradeCommandService(listingRepo, tradeRepo, positionRepo, paymentAuthority, publisher, feeRate, currency, logger.Logger)
	querySvc := application.NewQueryService(listingRepo, tradeRepo, positionRepo, projectionSvc, logger.Logger)

	// 9. Projection Consumer
	projectionHandler := positionconsumer.NewProjectionHandler(projectionSvc, logger.Logger)
	consumerCfg := cfg.MessageQueue.Kafka
	consumerCfg.Topic = domain.TradeSettledEventType
	if consumerCfg.GroupID == "" {
		consumerCfg.GroupID = "secondarymarket-projection-group"
	}
	consumer := kafka.NewConsumer(&consumerCfg, logger, metricsImpl)
	consumer.Start(context.Background(), 3, projectionHandler.Handle)

	// 10. Interfaces
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	httpHandler := httpserver.NewMarketHandler(listingCmd, tradeCmd, querySvc)
	httpHandler.RegisterRoutes(r.Group("/api"))

	// 11. Start
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		outboxProcessor.Start()
		<-ctx.Done()
		outboxProcessor.Stop()
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTP.Port)
		server := &http.Server{Addr: addr, Handler: r}
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
