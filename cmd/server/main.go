// Package main runs the video creator HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/config"
	"github.com/aura-webinar/videocreator/internal/auth"
	"github.com/aura-webinar/videocreator/internal/bootstrap"
	"github.com/aura-webinar/videocreator/internal/middleware"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/realtime"
	"github.com/aura-webinar/videocreator/internal/recordings"
	"github.com/aura-webinar/videocreator/internal/studio"
	"github.com/aura-webinar/videocreator/internal/templates"
	"github.com/aura-webinar/videocreator/internal/videos"
	"github.com/aura-webinar/videocreator/pkg/database"
	"github.com/aura-webinar/videocreator/pkg/queue"
	"github.com/aura-webinar/videocreator/pkg/redis"
	"github.com/aura-webinar/videocreator/pkg/response"
)

func main() {
	logger := bootstrap.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	dsn := cfg.Database.DSN()
	if err := database.MigratePostgres(dsn, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolConfig{MaxConns: int32(cfg.Database.MaxConns)}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	objects, err := bootstrap.ObjectStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("object store", zap.Error(err), zap.String("backend", cfg.Storage.Backend))
	}

	var (
		hub     *realtime.Hub
		orphans persistence.OrphanQueue
		rdb     *redis.Client
	)
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		hub = realtime.NewHub(logger, realtime.NewRedisBus(rdb.Client, logger))
		orphans = queue.NewQueue(rdb.Client, logger)
	} else {
		logger.Warn("redis disabled: events stay on this instance and orphaned objects are only logged")
		hub = realtime.NewHub(logger, nil)
	}

	publisher := bootstrap.Publisher(cfg.Kafka, logger)
	defer publisher.Close()

	gateway := persistence.NewStore(objects, videos.NewRepository(pool), orphans, logger)
	manager := studio.NewManager(studio.ManagerConfig{
		Studio:      bootstrap.StudioConfig(cfg, gateway, publisher, logger),
		Broadcaster: hub,
	})

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours, auth.WithIssuer(cfg.JWT.Issuer))
	recordingHandler := recordings.NewHandler(manager, logger)
	videoHandler := videos.NewHandler(manager, templates.NewRegistry(), logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		checks := gin.H{"database": "ok"}
		healthy := true
		if err := pool.Ping(c.Request.Context()); err != nil {
			checks["database"], healthy = err.Error(), false
		}
		if rdb != nil {
			checks["redis"] = "ok"
			if err := rdb.Healthy(c.Request.Context()); err != nil {
				checks["redis"], healthy = err.Error(), false
			}
		}
		if !healthy {
			response.Fail(c, http.StatusServiceUnavailable, "unhealthy", checks)
			return
		}
		response.OK(c, checks)
	})

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	recordingHandler.Register(api)
	videoHandler.Register(api)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, cfg.Server.CORSAllowedOrigins, jwtService.ValidateUserID))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	manager.CloseAll()
	logger.Info("server stopped")
}
