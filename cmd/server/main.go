package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/guardian/internal/config"
	"github.com/quocanhngo/guardian/internal/handler"
	"github.com/quocanhngo/guardian/internal/metrics"
	"github.com/quocanhngo/guardian/internal/middleware"
	"github.com/quocanhngo/guardian/internal/repository"
	"github.com/quocanhngo/guardian/internal/service"
	"github.com/quocanhngo/guardian/internal/telemetry"
	"github.com/quocanhngo/guardian/internal/ws"
	"github.com/quocanhngo/guardian/migrations"
	"github.com/quocanhngo/guardian/pkg/auth"
	applog "github.com/quocanhngo/guardian/pkg/logger"
	"github.com/quocanhngo/guardian/pkg/mqtt"
	"github.com/quocanhngo/guardian/pkg/notification"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           Guardian API
// @version         1.0
// @description     Elder safety monitoring: device telemetry, alerts and caregiver notifications.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log := applog.New(applog.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		ServiceName: "guardian-server",
	})
	defer log.Sync()
	log.Info("Starting Guardian server", zap.String("env", cfg.App.Env))

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL(), log); err != nil {
		log.Warn("Migration failed, falling back to AutoMigrate", zap.Error(err))
		if err := db.AutoMigrate(migrations.Models()...); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Connected to Redis")

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	collector := metrics.NewCollector("guardian-server", rdb, log)
	collector.Start(appCtx)

	// ==================== Initialize Layers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	elderRepo := repository.NewElderRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	eventRepo := repository.NewEventRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// WebSocket Hub (with Redis Pub/Sub for horizontal scaling)
	hub := ws.NewHub(rdb, log)
	go hub.Run(appCtx)

	// Push is optional; without credentials only inbox rows are written
	var push service.PushSender
	if gw := notification.NewFCMGateway(appCtx, cfg.Firebase.CredentialsFile, log); gw != nil {
		push = gw
	}

	dispatcher := service.NewDispatcher(hub, elderRepo, notificationRepo, push, userRepo,
		cfg.Fanout.PushTimeout, collector, log)
	telemetryService := service.NewTelemetryService(
		deviceRepo,
		service.NewEventWriter(eventRepo, log),
		dispatcher,
		service.NewRateLimiterStore(cfg.Telemetry.LiveUpdateRate, cfg.Telemetry.LiveUpdateBurst),
		collector,
		log,
	)

	// ==================== MQTT ====================
	broker, err := mqtt.NewClient(mqtt.Config{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, log)
	if err != nil {
		log.Fatal("Failed to create MQTT client", zap.Error(err))
	}

	retry := telemetry.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Telemetry.MaxRetries
	retry.InitialBackoff = cfg.Telemetry.RetryBackoff

	router := telemetry.NewRouter(telemetry.RouterConfig{
		TopicPrefix: cfg.MQTT.TopicPrefix,
		QoS:         cfg.MQTT.QoS,
		Workers:     cfg.Telemetry.Workers,
		QueueSize:   cfg.Telemetry.QueueSize,
		Retry:       retry,
	}, broker, telemetryService, telemetry.NewRedisDeadLetters(rdb, cfg.Telemetry.DeadLetter), collector, log)
	if err := router.Start(appCtx); err != nil {
		log.Fatal("Failed to start telemetry router", zap.Error(err))
	}

	topics := telemetry.Topics{Prefix: cfg.MQTT.TopicPrefix}
	deviceService := service.NewDeviceService(deviceRepo, elderRepo, broker, topics.Config, cfg.MQTT.QoS, log)
	eventService := service.NewEventService(eventRepo, elderRepo, hub, log)
	notificationService := service.NewNotificationService(notificationRepo, userRepo)

	// Handlers
	eventHandler := handler.NewEventHandler(eventService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	wsHandler := handler.NewWSHandler(hub, elderRepo, jwtManager, rdb, log)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	engine.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	engine.Use(middleware.CORSMiddleware(cfg.CORS.Origins, cfg.CORS.MaxAge))

	engine.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		mqttState := "connected"
		if !broker.IsConnected() {
			status = http.StatusServiceUnavailable
			mqttState = "disconnected"
		}
		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"service":  "guardian-server",
			"mqtt":     mqttState,
			"counters": collector.Snapshot().Counters,
			"time":     time.Now().Format(time.RFC3339),
		})
	})

	// ==================== API Routes ====================
	api := engine.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtManager, rdb))
	{
		api.GET("/elders/:id/events", eventHandler.ListEvents)
		api.POST("/events/:id/cancel", eventHandler.CancelEvent)

		api.GET("/notifications", notificationHandler.ListNotifications)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)
		api.POST("/push-tokens", notificationHandler.RegisterPushToken)

		api.POST("/devices/:code/config", deviceHandler.UpdateConfig)
	}

	// WebSocket endpoint (auth via query parameter)
	engine.GET("/ws", wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: engine,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()
	log.Info("Guardian server listening",
		zap.String("addr", srv.Addr),
		zap.String("mqtt", cfg.MQTT.Broker))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop ingress before draining the workers
	router.Stop()
	broker.Disconnect()
	collector.Stop()
	appCancel()
	log.Info("Server exited gracefully")
}
