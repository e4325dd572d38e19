package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/config"
)

func TestOptionsFromConfig(t *testing.T) {
	opts := Options(config.RedisConfig{Addr: "cache:6380", Password: "pw", DB: 2})
	if opts.Addr != "cache:6380" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("options = %+v", opts)
	}
	if opts.ReadTimeout <= 5*time.Second {
		t.Fatalf("read timeout %v must exceed the queue's blocking pop", opts.ReadTimeout)
	}
}

func TestNewClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Port 1 on loopback refuses connections.
	if _, err := NewClient(ctx, config.RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop()); err == nil {
		t.Fatal("expected ping error")
	}
}
