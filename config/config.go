package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Storage   StorageConfig
	AWS       AWSConfig
	MinIO     MinIOConfig
	Kafka     KafkaConfig
	Capture   CaptureConfig
	Recording RecordingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/videocreator?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
	// Issuer, when set, must match the iss claim of every token.
	Issuer string
}

// Storage backends.
const (
	StorageS3    = "s3"
	StorageMinIO = "minio"
	StorageLocal = "local"
)

// StorageConfig selects where video bytes go.
type StorageConfig struct {
	Backend              string
	Bucket               string
	PresignExpireMinutes int
	LocalDir             string
}

// AWSConfig holds AWS credentials for the s3 backend.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible services
}

// MinIOConfig holds settings for the minio backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// KafkaConfig holds domain event publishing settings.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Capture backends.
const (
	CaptureFFmpeg    = "ffmpeg"
	CaptureSynthetic = "synthetic"
)

// CaptureConfig describes the camera.
type CaptureConfig struct {
	Backend      string
	Device       string
	InputFormat  string // v4l2, avfoundation, dshow
	FFmpegBinary string
	Width        int
	Height       int
	FrameRate    int
	Audio        bool
	LockDir      string
}

// Encoders.
const (
	EncoderFFmpeg = "ffmpeg"
	EncoderMJPEG  = "mjpeg"
)

// RecordingConfig holds recorder and encoder settings.
type RecordingConfig struct {
	DefaultDurationSec int
	// Countdown is the number of one-second ticks before capture starts;
	// 0 starts immediately.
	Countdown          int
	Encoder            string
	BitrateKbps        int
	ChunkSize          int
	MaxBufferMB        int
	AudioFormat        string
	AudioDevice        string
}

// CountdownTicks maps Countdown onto the recorder's setting, where zero
// selects the default and a negative value disables the countdown.
func (c RecordingConfig) CountdownTicks() int {
	if c.Countdown <= 0 {
		return -1
	}
	return c.Countdown
}

// DefaultDuration is the recording length used when a start request names none.
func (c RecordingConfig) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationSec) * time.Second
}

// MaxBufferBytes caps the in-memory recording buffer.
func (c RecordingConfig) MaxBufferBytes() int64 {
	return int64(c.MaxBufferMB) << 20
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "videocreator"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
			Issuer:      getEnv("JWT_ISSUER", ""),
		},
		Storage: StorageConfig{
			Backend:              strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
			Bucket:               getEnv("STORAGE_BUCKET", "videocreator-videos"),
			PresignExpireMinutes: getEnvInt("STORAGE_PRESIGN_EXPIRE_MINUTES", 15),
			LocalDir:             getEnv("STORAGE_LOCAL_DIR", "./data/objects"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: splitTrim(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Topic:   getEnv("KAFKA_TOPIC", "videocreator.events"),
		},
		Capture: CaptureConfig{
			Backend:      strings.ToLower(getEnv("CAPTURE_BACKEND", CaptureSynthetic)),
			Device:       getEnv("CAPTURE_DEVICE", "/dev/video0"),
			InputFormat:  getEnv("CAPTURE_INPUT_FORMAT", "v4l2"),
			FFmpegBinary: getEnv("FFMPEG_BINARY", "ffmpeg"),
			Width:        getEnvInt("CAPTURE_WIDTH", 1280),
			Height:       getEnvInt("CAPTURE_HEIGHT", 720),
			FrameRate:    getEnvInt("CAPTURE_FRAME_RATE", 30),
			Audio:        getEnvBool("CAPTURE_AUDIO", false),
			LockDir:      getEnv("CAPTURE_LOCK_DIR", os.TempDir()),
		},
		Recording: RecordingConfig{
			DefaultDurationSec: getEnvInt("RECORDING_DEFAULT_DURATION_SEC", 30),
			Countdown:          getEnvInt("RECORDING_COUNTDOWN", 3),
			Encoder:            strings.ToLower(getEnv("RECORDING_ENCODER", EncoderFFmpeg)),
			BitrateKbps:        getEnvInt("RECORDING_BITRATE_KBPS", 2500),
			ChunkSize:          getEnvInt("RECORDING_CHUNK_SIZE", 64*1024),
			MaxBufferMB:        getEnvInt("RECORDING_MAX_BUFFER_MB", 512),
			AudioFormat:        getEnv("RECORDING_AUDIO_FORMAT", "alsa"),
			AudioDevice:        getEnv("RECORDING_AUDIO_DEVICE", "default"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and impossible sizes.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageS3, StorageMinIO, StorageLocal:
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.Capture.Backend {
	case CaptureFFmpeg, CaptureSynthetic:
	default:
		return fmt.Errorf("config: unknown CAPTURE_BACKEND %q", c.Capture.Backend)
	}
	switch c.Recording.Encoder {
	case EncoderFFmpeg, EncoderMJPEG:
	default:
		return fmt.Errorf("config: unknown RECORDING_ENCODER %q", c.Recording.Encoder)
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 || c.Capture.FrameRate <= 0 {
		return fmt.Errorf("config: capture size and frame rate must be positive")
	}
	if c.Recording.Countdown < 0 {
		return fmt.Errorf("config: RECORDING_COUNTDOWN must not be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: KAFKA_ENABLED needs KAFKA_BROKERS")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
