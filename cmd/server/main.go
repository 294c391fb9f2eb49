// Package main runs the Q&A rooms HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/liveqa/backend/config"
	"github.com/liveqa/backend/internal/auth"
	"github.com/liveqa/backend/internal/exports"
	"github.com/liveqa/backend/internal/middleware"
	"github.com/liveqa/backend/internal/qa"
	"github.com/liveqa/backend/internal/questions"
	"github.com/liveqa/backend/internal/ratelimit"
	"github.com/liveqa/backend/internal/realtime"
	"github.com/liveqa/backend/internal/rooms"
	"github.com/liveqa/backend/internal/tickets"
	"github.com/liveqa/backend/internal/worker"
	"github.com/liveqa/backend/pkg/database"
	"github.com/liveqa/backend/pkg/queue"
	"github.com/liveqa/backend/pkg/redis"
	"github.com/liveqa/backend/pkg/response"
	"github.com/liveqa/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	var (
		hubPub realtime.RedisPublisher
		hubSub realtime.RedisSubscriber
	)
	if rdb != nil && cfg.Realtime.UseRedis {
		redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
		hubPub, hubSub = redisPubSub, redisPubSub
		logger.Info("realtime fan-out via redis")
	}
	hub := realtime.NewHub(logger, hubPub, hubSub)
	notifier := realtime.NewNotifier(hub)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	window := time.Duration(cfg.RateLimit.WindowSec) * time.Second
	var limiter qa.RateLimiter
	switch cfg.RateLimit.Backend {
	case config.RateLimitRedis:
		limiter = ratelimit.NewRedis(rdb.Client, window, logger)
	default:
		mem := ratelimit.NewMemory(window)
		go mem.Run(backgroundCtx)
		limiter = mem
	}

	// Persistence
	authRepo := auth.NewRepository(pool)
	roomRepo := rooms.NewRepository(pool)
	questionRepo := questions.NewRepository(pool)
	queueRepo := tickets.NewRepository(pool)

	// Services
	roomService := qa.NewRooms(roomRepo, questionRepo, notifier, logger)
	questionService := qa.NewQuestions(roomRepo, questionRepo, limiter, notifier, logger)
	queueService := qa.NewQueues(queueRepo, limiter, notifier, logger)

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	roomHandler := rooms.NewHandler(roomService, logger)
	questionHandler := questions.NewHandler(questionService, logger)
	queueHandler := tickets.NewHandler(queueService, logger)

	var exportHandler *exports.Handler
	if cfg.Export.Enabled {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("exports disabled", zap.Error(err))
		} else {
			jobQueue := queue.NewQueue(rdb.Client, logger)
			exportHandler = exports.NewHandler(exports.NewService(roomService, jobQueue, s3Client, logger))
			// Run exports in-process as well; cmd/worker scales them out.
			processor := worker.NewExportProcessor(roomRepo, questionRepo, s3Client, jobQueue, logger)
			go processor.Run(backgroundCtx)
			logger.Info("export worker started")
		}
	}

	wsValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.Errors(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.RequireAuth(jwtService)

	// Auth
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", requireAuth, authHandler.Me)
	}

	// Rooms, questions and exports. Reads and submissions are anonymous;
	// owner operations require a token.
	roomHandler.RegisterRoutes(router, requireAuth)
	questionHandler.RegisterRoutes(router, requireAuth)
	queueHandler.RegisterRoutes(router, requireAuth)
	if exportHandler != nil {
		exportHandler.RegisterRoutes(router, requireAuth)
	}

	// WebSocket hub (token in access_token query or Authorization header; optional)
	router.GET("/hubs/rooms", realtime.ServeWs(hub, roomService, middleware.RequestToken, wsValidate, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	backgroundCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
