package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	rd "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"order-fulfillment-service/internal/config"
	"order-fulfillment-service/internal/controller"
	"order-fulfillment-service/internal/jobs"
	"order-fulfillment-service/internal/logger"
	"order-fulfillment-service/internal/middleware"
	"order-fulfillment-service/internal/rabbit"
	"order-fulfillment-service/internal/repository"
	"order-fulfillment-service/internal/risk"
	"order-fulfillment-service/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("order-fulfillment", cfg.LogLevel)

	// The order and counter stores are hard dependencies: without them
	// the service must not accept traffic.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to MongoDB")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.Fatal().Err(err).Msg("pinging MongoDB")
	}
	db := client.Database(cfg.MongoDBName)

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr})

	// Repositories and services
	orderRepo := repository.NewMongoOrderRepository(db)
	counterRepo := repository.NewMongoCounterRepository(db)
	webhookRepo := repository.NewMongoWebhookRepository(db)

	analyzer := risk.NewAnalyzer(cfg.CODThresholdPaise)
	carrier := service.NewHTTPCarrierClient(cfg.CarrierURL)
	orderService := service.NewOrderService(orderRepo, counterRepo, carrier, analyzer, cfg.OrderIDPrefix, log)
	webhookService := service.NewWebhookService(webhookRepo, orderRepo, orderService,
		cfg.WebhookMaxRetries, cfg.WebhookRetryBase, cfg.WebhookApplyTimeout, log)
	authService := service.NewAuthService(cfg.AuthURL)

	// Handlers
	orderCtrl := controller.NewOrderController(orderService)
	webhookCtrl := controller.NewWebhookController(webhookService)

	// Router
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	// Carrier deliveries: public, rate-limited per source IP.
	r.POST("/webhooks/carrier",
		middleware.WebhookRateLimit(rdb, cfg.WebhookRateLimit, cfg.WebhookRateWindow),
		webhookCtrl.Receive)

	// Checkout collaborator (the Rabbit consumer is the primary path).
	r.POST("/orders", orderCtrl.CreateOrder)

	// Operator surface (requires token)
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(authService))

	auth.PATCH("/orders/:orderId/status", orderCtrl.UpdateStatus)
	auth.PATCH("/orders/:orderId/lifecycle", orderCtrl.UpdateLifecycle)
	auth.POST("/orders/:orderId/ship", orderCtrl.CreateShipment)
	auth.GET("/orders/mine", orderCtrl.GetMyOrders)
	auth.GET("/orders/:orderId", orderCtrl.GetOrder)
	auth.GET("/orders/:orderId/risk", orderCtrl.GetRisk)

	// Admin surface
	admin := auth.Group("/admin")
	admin.Use(middleware.AdminOnly())
	admin.GET("/orders", orderCtrl.GetAllOrders)
	admin.GET("/orders/status/:status", orderCtrl.GetOrdersByStatus)
	admin.GET("/webhooks/failed", webhookCtrl.GetFailedEvents)
	admin.POST("/webhooks/:id/replay", webhookCtrl.Replay)

	// Checkout event consumer
	conn, err := amqp091.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to RabbitMQ")
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("opening RabbitMQ channel")
	}
	if err := rabbit.SetupConsumers(ch, orderService, log); err != nil {
		log.Fatal().Err(err).Msg("setting up RabbitMQ consumers")
	}

	// Retry sweep
	retryJob := jobs.NewWebhookRetryJob(webhookService, cfg.RetrySweepSpec, log)
	if err := retryJob.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting webhook retry job")
	}
	defer retryJob.Stop()

	log.Info().Str("port", cfg.Port).Msg("order fulfillment service listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}
