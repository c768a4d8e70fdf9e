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
	usercmd "github.com/graphbank/backoffice/internal/user/command"
	"github.com/graphbank/backoffice/internal/user/handler"
	userqry "github.com/graphbank/backoffice/internal/user/query"
	"github.com/graphbank/backoffice/internal/user/repository"
)

func main() {
	cfg := config.LoadUserService()
	log := logging.New("user-service")
	m := metrics.New("user_service")

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

	writeRepo := repository.NewUserWriteRepository(db)
	if err := writeRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Redis connection
	redis, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	publisher := events.NewPublisher(redis.Client)
	readRepo := repository.NewUserReadRepository(writeRepo, redis.Client, log)

	commandSvc := usercmd.NewUserCommandService(writeRepo, readRepo, publisher, log)
	querySvc := userqry.NewUserQueryService(writeRepo, readRepo)

	// Track per-user transaction counts from the ledger's event stream
	subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
		Group:    "user-service",
		Consumer: "user-service-1",
		Stream:   events.TransactionEventsStream,
		Handler:  commandSvc.HandleTransactionEvent,
	}, log)
	go func() {
		if err := subscriber.Start(ctx); err != nil && err != context.Canceled {
			log.Errorf("Transaction events subscriber exited: %v", err)
		}
	}()

	userHandler := handler.NewUserHandler(commandSvc, querySvc)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging(log))
	router.Use(middleware.RequestMetrics(m))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "user-service"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	userHandler.RegisterRoutes(router)

	log.WithService().Infof("User service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
