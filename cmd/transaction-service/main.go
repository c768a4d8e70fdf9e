package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/graphbank/backoffice/internal/config"
	"github.com/graphbank/backoffice/internal/events"
	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/metrics"
	"github.com/graphbank/backoffice/internal/middleware"
	redisclient "github.com/graphbank/backoffice/internal/redis"
	"github.com/graphbank/backoffice/internal/reference"
	txcmd "github.com/graphbank/backoffice/internal/transaction/command"
	"github.com/graphbank/backoffice/internal/transaction/handler"
	txqry "github.com/graphbank/backoffice/internal/transaction/query"
	"github.com/graphbank/backoffice/internal/transaction/repository"
	"github.com/graphbank/backoffice/internal/transaction/settlement"
)

func main() {
	cfg := config.LoadTransactionService()
	log := logging.New("transaction-service")
	m := metrics.New("transaction_service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	store := repository.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Redis connection
	redis, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	publisher := events.NewPublisher(redis.Client)

	// Core wiring: reference generator, view cache, lifecycle engine, read
	// side, settlement. Engine and query service share one view cache; the
	// engine writes it, the query service reads it.
	refs := reference.NewGenerator(store, cfg.ReferenceMaxRetries)
	views := repository.NewRedisTransactionViews(redis.Client, log)
	engine := txcmd.NewEngine(store, refs, views, publisher, m, log)
	querySvc := txqry.NewService(store, views)
	settler := &settlement.StubSettler{}
	processor := settlement.NewProcessor(store, engine, settler, log,
		settlement.WithWorkers(cfg.SettlementWorkers),
		settlement.WithPublisher(publisher),
		settlement.WithMetrics(m),
	)

	// Background settlement scheduler
	runner := settlement.NewRunner(processor, cfg.SettlementInterval, log)
	go func() {
		if err := runner.Run(ctx); err != nil && err != context.Canceled {
			log.Errorf("Settlement runner exited: %v", err)
		}
	}()

	transactionHandler := handler.NewTransactionHandler(engine, querySvc, processor)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging(log))
	router.Use(middleware.RequestMetrics(m))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "transaction-service"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	transactionHandler.RegisterRoutes(router)

	log.WithService().Infof("Transaction service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
