// Package redis opens the shared Redis connection used for cross-instance
// event fan-out and the orphan-object job queue.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/config"
)

const pingTimeout = 3 * time.Second

// Client wraps the go-redis client with the process logger.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// Options maps the Redis config section onto client options. Blocking
// queue reads use their own timeout, so ReadTimeout stays above it.
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewClient connects and verifies the server answers a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{Client: redis.NewClient(Options(cfg)), logger: logger}
	if err := c.Healthy(ctx); err != nil {
		c.Client.Close()
		return nil, err
	}
	logger.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return c, nil
}

// Healthy pings the server with a short deadline.
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if err := c.Client.Close(); err != nil {
		c.logger.Warn("redis close", zap.Error(err))
		return err
	}
	return nil
}
