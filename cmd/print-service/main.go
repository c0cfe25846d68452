package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"printmill/internal/analytics"
	analyticsapi "printmill/internal/analytics/api"
	"printmill/internal/auth"
	"printmill/internal/config"
	"printmill/internal/database/migrations"
	"printmill/internal/design"
	designapi "printmill/internal/design/api"
	designdb "printmill/internal/design/db"
	"printmill/internal/kafka"
	"printmill/internal/logger"
	"printmill/internal/models"
	"printmill/internal/order"
	orderapi "printmill/internal/order/api"
	orderdb "printmill/internal/order/db"
	orderredis "printmill/internal/order/redis"
	"printmill/internal/order/slip"
	"printmill/internal/payment"
	paymenthandler "printmill/internal/payment/handler"
	paymentstorage "printmill/internal/payment/storage"
	"printmill/internal/pricing"
	"printmill/internal/ratelimit"
	renderpkg "printmill/internal/render"
	renderdb "printmill/internal/render/db"
	"printmill/internal/sse"
)

func main() {
	godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL ---
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", "Failed to connect to Postgres: "+err.Error())
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	migrationOpts := migrations.DefaultOptions()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		migrationOpts.MigrationsDir = dir
	}
	if os.Getenv("AUTO_MIGRATE") == "false" {
		migrationOpts.AutoMigrate = false
	}
	if migrationOpts.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrationOpts, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", "Migrations failed: "+err.Error())
		}
	}

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", "Failed to connect to Redis: "+err.Error())
	}

	// --- Kafka ---
	var producer *kafka.Producer
	emitter := sse.NewDesignEventEmitter()
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.DesignEvents, cfg.Kafka.Topics.OrderEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", "Could not ensure topics: "+err.Error())
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers,
			cfg.Kafka.Topics.DesignEvents, cfg.Kafka.Topics.OrderEvents, log)
		defer producer.Close()

		consumer := kafka.NewDesignEventConsumer(cfg.Kafka.Brokers,
			cfg.Kafka.Topics.DesignEvents, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go consumer.Start(ctx, func(ev models.DesignEvent) {
			emitter.Emit(ev)
		})
	}

	// --- Services ---
	rules := pricing.DefaultRules()
	rules.FlatShippingFee = cfg.Pricing.FlatShippingFee
	rules.FreeShippingThreshold = cfg.Pricing.FreeShippingThreshold

	designService := design.NewService(&designdb.DB{Bun: bunDB}, log)
	orchestrator := renderpkg.NewOrchestrator(&renderdb.DB{Bun: bunDB}, publisherOrNil(producer), log, cfg.Render.MaxAttempts)
	orderService := order.NewOrderService(&orderdb.DB{Bun: bunDB}, orderPublisherOrNil(producer), log, rules)

	eventStore, err := paymentstorage.NewPostgreSQLStoreWithDB(sqldb, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize payment event log: "+err.Error())
	}
	orderLock := orderredis.NewRedis(redisClient, log)
	processor := payment.NewProcessor(eventStore, orderService, orderLock, log)

	limiter := ratelimit.NewLimiter(&ratelimit.BunStore{Bun: bunDB}, log,
		ratelimit.Rule{Action: "order_create", Limit: cfg.RateLimit.OrderCreateLimit, Window: cfg.RateLimit.Window},
		ratelimit.Rule{Action: "webhook_ingest", Limit: cfg.RateLimit.WebhookIngestLimit, Window: cfg.RateLimit.Window},
	)
	go purgeLoop(ctx, limiter)

	// --- API router ---
	designHandler := &designapi.Handler{
		DesignService: designService,
		Orchestrator:  orchestrator,
		Emitter:       emitter,
	}
	orderHandler := &orderapi.Handler{
		OrderService:  orderService,
		SlipGenerator: slip.NewSlipGenerator(cfg.Auth.SlipSecret),
	}
	analyticsHandler := &analyticsapi.Handler{Service: analytics.NewService(bunDB)}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret))

		r.Get("/templates", designHandler.ListTemplates)
		r.Get("/templates/{templateId}", designHandler.GetTemplate)

		r.Post("/designs", designHandler.CreateDesign)
		r.Get("/designs", designHandler.ListDesigns)
		r.Get("/designs/{designId}", designHandler.GetDesign)
		r.Post("/designs/{designId}/render", designHandler.SubmitRender)
		r.Post("/render-jobs/{jobId}/cancel", designHandler.CancelRender)
		r.Get("/designs/events", designHandler.StreamEvents)

		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(limiter, "order_create"))
			r.Post("/orders", orderHandler.CreateOrder)
		})
		r.Get("/orders", orderHandler.ListOrders)
		r.Get("/orders/{orderId}", orderHandler.GetOrder)
		r.Post("/orders/{orderId}/ship", orderHandler.ShipOrder)
		r.Post("/orders/{orderId}/deliver", orderHandler.DeliverOrder)
		r.Post("/orders/{orderId}/cancel", orderHandler.CancelOrder)
		r.Get("/orders/{orderId}/packing-slip", orderHandler.PackingSlip)
		r.Post("/packing-slips/verify", orderHandler.VerifySlip)
		r.Get("/analytics/orders", analyticsHandler.GetOrderAnalytics)
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// --- Webhook server (gin) ---
	gin.SetMode(gin.ReleaseMode)
	webhookHandler := paymenthandler.NewWebhookHandler(processor, cfg.Stripe.WebhookSecret, log)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.POST("/webhooks/stripe", ginRateLimit(limiter, "webhook_ingest"), webhookHandler.HandleStripeWebhook)
	engine.GET("/webhooks/orders/:orderId/events", webhookHandler.ListOrderEvents)

	webhookServer := &http.Server{
		Addr:         cfg.Server.WebhookPort,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("API", "Print service running on "+cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API", "HTTP server error: "+err.Error())
		}
	}()
	go func() {
		log.Info("WEBHOOK", "Webhook server running on "+cfg.Server.WebhookPort)
		if err := webhookServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("WEBHOOK", "HTTP server error: "+err.Error())
		}
	}()

	<-ctx.Done()
	log.Info("API", "Shutdown signal received, draining connections")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctxShutdown); err != nil {
		log.Error("API", "Server forced to shutdown: "+err.Error())
	}
	if err := webhookServer.Shutdown(ctxShutdown); err != nil {
		log.Error("WEBHOOK", "Server forced to shutdown: "+err.Error())
	}

	log.Info("API", "Server exited gracefully")
}

// publisherOrNil keeps the services on a nil publisher when Kafka is
// disabled; they treat a nil publisher as "do not publish".
func publisherOrNil(p *kafka.Producer) renderpkg.Publisher {
	if p == nil {
		return nil
	}
	return p
}

func orderPublisherOrNil(p *kafka.Producer) order.KafkaPublisher {
	if p == nil {
		return nil
	}
	return p
}

// ginRateLimit adapts the store-backed limiter to the webhook surface, keyed
// by caller address.
func ginRateLimit(limiter *ratelimit.Limiter, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := limiter.CheckAndIncrement(c.Request.Context(), c.ClientIP(), action)
		if err != nil {
			c.Next()
			return
		}
		if !decision.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())+1))
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}

func purgeLoop(ctx context.Context, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.PurgeExpired(ctx)
		}
	}
}
