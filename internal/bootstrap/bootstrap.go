// Package bootstrap builds the studio's collaborators from configuration.
// It is shared by the server, the worker and studioctl.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/videocreator/config"
	"github.com/aura-webinar/videocreator/internal/capture"
	"github.com/aura-webinar/videocreator/internal/encoder"
	"github.com/aura-webinar/videocreator/internal/events"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/studio"
	"github.com/aura-webinar/videocreator/internal/templates"
	"github.com/aura-webinar/videocreator/pkg/storage"
)

// NewLogger returns the production JSON logger.
func NewLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

// Source returns the configured camera.
func Source(c config.CaptureConfig, logger *zap.Logger) capture.Source {
	if c.Backend == config.CaptureFFmpeg {
		return capture.NewFFmpegSource(c.Device, c.LockDir, logger,
			capture.WithBinary(c.FFmpegBinary),
			capture.WithInputFormat(c.InputFormat))
	}
	return &capture.SyntheticSource{}
}

// Constraints returns the requested capture size.
func Constraints(c config.CaptureConfig) capture.Constraints {
	return capture.Constraints{Width: c.Width, Height: c.Height, FrameRate: c.FrameRate, Audio: c.Audio}
}

// Encoder returns the configured encoder.
func Encoder(cfg *config.Config, logger *zap.Logger) encoder.Encoder {
	if cfg.Recording.Encoder == config.EncoderMJPEG {
		return &encoder.MJPEG{}
	}
	return &encoder.FFmpeg{
		Binary:      cfg.Capture.FFmpegBinary,
		AudioFormat: cfg.Recording.AudioFormat,
		AudioDevice: cfg.Recording.AudioDevice,
		Logger:      logger,
	}
}

// ObjectStore connects the configured object store.
func ObjectStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (persistence.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			Bucket:               cfg.Storage.Bucket,
			PresignExpireMinutes: cfg.Storage.PresignExpireMinutes,
		}, logger)
	case config.StorageMinIO:
		return storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:             cfg.MinIO.Endpoint,
			AccessKey:            cfg.MinIO.AccessKey,
			SecretKey:            cfg.MinIO.SecretKey,
			UseSSL:               cfg.MinIO.UseSSL,
			Bucket:               cfg.Storage.Bucket,
			PresignExpireMinutes: cfg.Storage.PresignExpireMinutes,
		}, logger)
	case config.StorageLocal:
		return storage.NewLocal(cfg.Storage.LocalDir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// Publisher returns the Kafka publisher when enabled, otherwise a no-op.
func Publisher(c config.KafkaConfig, logger *zap.Logger) events.Publisher {
	if !c.Enabled {
		return events.Nop{}
	}
	return events.NewKafka(strings.Join(c.Brokers, ","), c.Topic, logger)
}

// StudioConfig fills the per-user studio template. UserID is set by the
// manager when a studio opens.
func StudioConfig(cfg *config.Config, gw persistence.Gateway, pub events.Publisher, logger *zap.Logger) studio.Config {
	return studio.Config{
		Gateway:         gw,
		Source:          Source(cfg.Capture, logger),
		Constraints:     Constraints(cfg.Capture),
		Encoder:         Encoder(cfg, logger),
		BitrateKbps:     cfg.Recording.BitrateKbps,
		ChunkSize:       cfg.Recording.ChunkSize,
		Templates:       templates.NewRegistry(),
		Publisher:       pub,
		Countdown:       cfg.Recording.CountdownTicks(),
		DefaultDuration: cfg.Recording.DefaultDuration(),
		MaxBufferBytes:  cfg.Recording.MaxBufferBytes(),
		Logger:          logger,
	}
}
