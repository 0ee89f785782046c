package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"shopsync/internal/config"
	"shopsync/internal/consumer"
	"shopsync/internal/database"
	"shopsync/internal/external"
	"shopsync/internal/handler"
	"shopsync/internal/middleware"
	"shopsync/internal/monitor"
	"shopsync/internal/rabbitmq"
	"shopsync/internal/redis"
	"shopsync/internal/repository"
	"shopsync/internal/service/access"
	"shopsync/internal/service/inventory"
	"shopsync/internal/service/relay"
	"shopsync/internal/shopify"
	"shopsync/pkg/breaker"
	"shopsync/pkg/lock"
	"shopsync/pkg/log"
	"shopsync/pkg/queue"
	"shopsync/pkg/utils"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig(os.Getenv("SHOPSYNC_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.WithError(err).Fatal("Failed to initialize logger")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tracer, err := monitor.NewTracer(cfg.Tracing, version, cfg.Server.Mode)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize tracer")
	}

	metrics := monitor.NewMetricsCollector(cfg.Metrics.Namespace)
	health := handler.NewHealthHandler(version)

	// redis backs the per-SKU lock; without it locks are process-local
	var locker lock.Locker = lock.NoopLocker{}
	if cfg.Reconcile.LockEnabled {
		locker = lock.NewLocalLocker()
	}
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize redis")
		}
		defer redisClient.Close()
		health.Register("redis", func(ctx context.Context) error { return redis.Health(ctx, redisClient) })
		if cfg.Reconcile.LockEnabled {
			locker = lock.NewRedisLocker(redisClient, "shopsync:lock:sku:", cfg.Reconcile.LockTTL, cfg.Reconcile.LockRetries, cfg.Reconcile.LockRetryDelay)
		}
	}

	var db *gorm.DB
	accessRepo := repository.NewMemoryShopAccessRepository()
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, cfg.Database, cfg.Log.Level)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize database")
		}
		defer database.Close(db)
		if cfg.Database.AutoMigrate {
			if err := database.AutoMigrate(db); err != nil {
				log.WithError(err).Fatal("Failed to migrate database")
			}
		} else if missing, err := database.CheckTables(db); err == nil && len(missing) > 0 {
			log.WithField("tables", missing).Warn("Database tables missing; enable database.auto_migrate")
		}
		health.Register("database", func(ctx context.Context) error { return database.Health(ctx, db) })
		accessRepo = repository.NewShopAccessRepository(db)
	}

	httpClient := &http.Client{Transport: http.DefaultTransport}

	shopifyClient, err := shopify.NewClient(cfg.Shopify, httpClient, shopify.WithObserver(metrics))
	if err != nil {
		log.WithError(err).Fatal("Failed to create Shopify client")
	}

	resolver, err := external.NewResolver(cfg.External)
	if err != nil {
		log.WithError(err).Fatal("Failed to resolve external API")
	}
	externalClient := external.NewClient(resolver, httpClient, cfg.External.Timeout, newBreakers(cfg.CircuitBreak), metrics)

	reconciler := inventory.NewReconciler(shopifyClient, locker, metrics)
	syncService := inventory.NewSyncService(externalClient, reconciler)

	var sink relay.Sink = external.NewOrderSink(externalClient)
	if cfg.Relay.Sink == "amqp" {
		sink = rabbitmq.NewPublisher(cfg.RabbitMQ)
	}
	log.WithField("sink", sink.Name()).Info("Order relay sink selected")
	orderRelay := relay.NewRelay(sink, relay.NewRedeliveryDetector(cfg.Relay.RedeliveryCapacity, cfg.Relay.RedeliveryFPRate), metrics)

	webhookQueue := queue.NewMemoryQueue(&queue.MemoryQueueConfig{
		BufferSize: cfg.Relay.BufferSize,
		OnError: func(topic string, err error) {
			log.WithFields(log.Fields{"topic": topic, "error": err.Error()}).Error("Webhook message failed")
		},
	})
	health.Register("queue", func(context.Context) error { return webhookQueue.Health() })
	metrics.StartQueueStatsCollection(ctx, webhookQueue.Stats, 15*time.Second)

	if err := consumer.NewWebhookConsumer(orderRelay, webhookQueue, cfg.Relay.Workers).Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start webhook consumer")
	}

	cache, err := access.NewCache(ctx, cfg.Cache.AccessTTL)
	if err != nil {
		log.WithError(err).Fatal("Failed to create access cache")
	}
	defer cache.Close()
	accessService := access.NewService(accessRepo, externalClient, cache)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if err := utils.RegisterValidators(); err != nil {
		log.WithError(err).Fatal("Failed to register validators")
	}

	router := setupRouter(cfg, routes{
		sku:      handler.NewSKUHandler(syncService),
		webhook:  handler.NewWebhookHandler(consumer.NewDispatcher(webhookQueue), shopifyClient, webhookCallbackURL(cfg), metrics),
		access:   handler.NewAccessHandler(accessService),
		health:   health,
		metrics:  metrics,
		tracing:  tracer.Enabled(),
		sessions: middleware.NewSessionVerifier(cfg.Shopify.APIKey, cfg.Shopify.APISecret, cfg.Security.SessionLeeway),
	})

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.WithFields(log.Fields{
			"addr":    cfg.Server.GetAddr(),
			"mode":    cfg.Server.Mode,
			"version": version,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	// drain queued webhooks before the workers' context goes away
	if err := webhookQueue.Close(); err != nil {
		log.WithError(err).Error("Failed to close webhook queue")
	}
	stop()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to flush traces")
	}

	log.Info("Server exited")
}

type routes struct {
	sku      *handler.SKUHandler
	webhook  *handler.WebhookHandler
	access   *handler.AccessHandler
	health   *handler.HealthHandler
	metrics  *monitor.MetricsCollector
	tracing  bool
	sessions *middleware.SessionVerifier
}

func setupRouter(cfg *config.Config, r routes) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	if r.tracing {
		router.Use(middleware.Tracing())
	}
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.Security.CORS.AllowOrigins))
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(r.metrics))
		router.GET(cfg.Metrics.Path, gin.WrapH(r.metrics.Handler()))
	}

	router.GET("/health", r.health.Health)
	router.GET("/ping", r.health.Ping)

	api := router.Group("/api")
	{
		api.GET("/skus/quantities", middleware.SessionAuth(r.sessions), r.sku.GetQuantities)

		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("", middleware.VerifyWebhook(cfg.Shopify.APISecret, cfg.Security.VerifyWebhooks), r.webhook.Receive)
			webhooks.POST("/register", middleware.SessionAuth(r.sessions), r.webhook.Register)
			webhooks.GET("/test", r.webhook.Test)
		}

		token := api.Group("/token")
		if cfg.RateLimit.Enabled {
			token.Use(middleware.IPRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
		{
			token.POST("/validate", r.access.ValidateToken)
			token.GET("/check-access", r.access.CheckAccess)
		}
	}

	return router
}

func newBreakers(cfg config.CircuitBreakConfig) *breaker.Manager {
	if !cfg.Enabled {
		return breaker.NewDisabledManager()
	}
	return breaker.NewManager(breaker.Config{
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		ReadyToTrip:  breaker.FailureRatio(cfg.MinRequests, cfg.FailureRatio),
		IsSuccessful: func(err error) bool { return !external.CountsAsFailure(err) },
		OnStateChange: func(name string, from, to breaker.State) {
			log.WithFields(log.Fields{
				"endpoint": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// webhookCallbackURL prefers the public URL of this service and falls back
// to the external API base, which proxies /api/webhooks in tunnel setups.
func webhookCallbackURL(cfg *config.Config) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.Server.PublicURL), "/")
	if base == "" {
		base = cfg.External.BaseURL
	}
	return base + "/api/webhooks"
}
