package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wayfinder/config"
	"wayfinder/cron"
	"wayfinder/database"
	notificationRepo "wayfinder/database/repository/notification"
	subscriptionRepo "wayfinder/database/repository/subscription"
	"wayfinder/handlers"
	"wayfinder/middleware"
	"wayfinder/routes"
	"wayfinder/services/delivery"
	"wayfinder/services/notification"
	"wayfinder/services/push"
	"wayfinder/services/realtime"
	"wayfinder/services/subscription"
	"wayfinder/services/tasks"
	"wayfinder/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer func() { _ = logger.Sync() }()
	cfg := config.AppConfig

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		logger.Fatal("main: failed to register validators", zap.Error(err))
	}

	// repositories.
	var (
		notifRepo   notificationRepo.NotificationRepository
		endpointRepo subscriptionRepo.EndpointRepository
		mongoClient *mongo.Client
	)
	if config.UseMemoryStore() {
		logger.Warn("main: using in-memory store, data will not survive a restart")
		notifRepo = notificationRepo.NewMemoryNotificationRepo()
		endpointRepo = subscriptionRepo.NewMemoryEndpointRepo()
	} else {
		database.InitDB()
		mongoClient = database.MongoClient
		notifRepo = notificationRepo.NewMongoNotificationRepo(database.Database())
		endpointRepo = subscriptionRepo.NewMongoEndpointRepo(database.Database())
	}

	// services.
	var unreadCache notification.UnreadCache
	cacheClient := utils.GetCacheClient()
	if cacheClient != nil {
		unreadCache = notification.NewRedisUnreadCache(cacheClient, utils.UnreadCacheTTL)
	}
	store, err := notification.NewDefaultNotificationStore(notifRepo, unreadCache, logger.Named("store"))
	if err != nil {
		logger.Fatal("main: failed to build notification store", zap.Error(err))
	}
	registry := subscription.NewDefaultRegistry(endpointRepo, logger.Named("registry"))

	engine := push.NewEngine(registry, cfg.PushSendTimeout, logger.Named("push"), buildAdapters(logger)...)
	logger.Info("main: push channels configured", zap.Any("channels", engine.Channels()))

	hub := realtime.NewHub(utils.ExtractIDFromToken, realtime.Config{
		IdleTimeout:      cfg.RTIdleTimeout,
		HandshakeTimeout: cfg.RTHandshakeTimeout,
		SendBuffer:       cfg.RTSendBuffer,
	}, logger.Named("realtime"))

	queueOpts := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	}
	scheduler := tasks.NewScheduler(asynq.NewClient(queueOpts))
	defer func() { _ = scheduler.Close() }()

	coordinator, err := delivery.NewDefaultCoordinator(store, engine, hub, registry, scheduler, delivery.Options{
		MaxRetries: cfg.PushMaxRetries,
	}, logger.Named("delivery"))
	if err != nil {
		logger.Fatal("main: failed to build delivery coordinator", zap.Error(err))
	}

	worker := cron.NewWorker(queueOpts, coordinator, logger.Named("worker"))
	worker.Start()

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	utils.StartHealthMonitor(healthCtx, []*redis.Client{cacheClient}, mongoClient)

	// Create the Gin router.
	router := gin.New()
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger.Named("http")))

	routes.RegisterRoutes(router, &handlers.HandlerBundle{
		InternalAPIKey:    cfg.InternalAPIKey,
		MaxRequestsPerMin: cfg.MaxRequestsPerMin,
		Notifications:     handlers.NewNotificationHandler(store, coordinator),
		Subscriptions:     handlers.NewSubscriptionHandler(registry, cfg.VAPIDPublicKey),
		Realtime:          handlers.NewRealtimeHandler(hub),
		Internal:          handlers.NewInternalHandler(coordinator),
	})

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	hub.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	worker.Shutdown()
	if err := database.CloseDB(ctx); err != nil {
		logger.Sugar().Warnf("main: failed to close MongoDB: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}

// buildAdapters wires every provider whose credentials are configured. A
// missing provider only disables its channel.
func buildAdapters(logger *zap.Logger) []push.Adapter {
	cfg := config.AppConfig
	burst := int(cfg.PushRatePerSec)
	var adapters []push.Adapter

	if cfg.FirebaseCredentialsFile != "" {
		client, err := utils.NewFCMClient(context.Background(), cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Error("main: FCM disabled", zap.Error(err))
		} else {
			adapters = append(adapters, push.WithRateLimit(push.NewFCMAdapter(client), cfg.PushRatePerSec, burst))
		}
	}

	if cfg.APNsKeyFile != "" {
		client, err := push.NewAPNsClient(cfg.APNsKeyFile, cfg.APNsKeyID, cfg.APNsTeamID, cfg.APNsProduction)
		if err != nil {
			logger.Error("main: APNs disabled", zap.Error(err))
		} else {
			adapters = append(adapters, push.WithRateLimit(push.NewAPNsAdapter(client, cfg.APNsTopic), cfg.PushRatePerSec, burst))
		}
	}

	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		adapters = append(adapters, push.WithRateLimit(push.NewWebPushAdapter(push.VAPIDConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
			Icon:       cfg.WebPushIcon,
		}), cfg.PushRatePerSec, burst))
	}
	return adapters
}
