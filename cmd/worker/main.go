// Package main runs the background job worker that deletes orphaned video objects.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/config"
	"github.com/aura-webinar/videocreator/internal/bootstrap"
	"github.com/aura-webinar/videocreator/internal/worker"
	"github.com/aura-webinar/videocreator/pkg/queue"
	"github.com/aura-webinar/videocreator/pkg/redis"
)

func main() {
	logger := bootstrap.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	objects, err := bootstrap.ObjectStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("object store", zap.Error(err), zap.String("backend", cfg.Storage.Backend))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	collector := worker.NewOrphanCollector(jobQueue, objects, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		collector.Run(workerCtx)
		close(done)
	}()
	if dead, err := jobQueue.DeadLetters(ctx); err != nil {
		logger.Warn("dead letters unreadable", zap.Error(err))
	} else if len(dead) > 0 {
		logger.Warn("orphan jobs awaiting manual cleanup", zap.Int("count", len(dead)), zap.String("list", queue.KeyDeadLetters))
	}
	logger.Info("worker started", zap.String("queue", queue.KeyOrphans))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	logger.Info("worker stopped")
}
