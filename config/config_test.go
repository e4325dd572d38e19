package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("CAPTURE_BACKEND", "")
	t.Setenv("RECORDING_ENCODER", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != StorageLocal || cfg.Capture.Backend != CaptureSynthetic || cfg.Recording.Encoder != EncoderFFmpeg {
		t.Fatalf("backends = %s/%s/%s", cfg.Storage.Backend, cfg.Capture.Backend, cfg.Recording.Encoder)
	}
	if cfg.Recording.DefaultDuration() != 30*time.Second || cfg.Recording.Countdown != 3 {
		t.Fatalf("recording = %+v", cfg.Recording)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "MinIO")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092 ,")
	t.Setenv("RECORDING_MAX_BUFFER_MB", "2")
	t.Setenv("CAPTURE_AUDIO", "yes-please")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != StorageMinIO {
		t.Fatalf("backend = %s", cfg.Storage.Backend)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Recording.MaxBufferBytes() != 2<<20 {
		t.Fatalf("buffer = %d", cfg.Recording.MaxBufferBytes())
	}
	if cfg.Capture.Audio {
		t.Fatal("unparseable bool should fall back to default")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "ftp")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "STORAGE_BACKEND") {
		t.Fatalf("err = %v", err)
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
	if got := c.DSN(); got != "postgres://u:p@h:5432/d?sslmode=disable" {
		t.Fatalf("dsn = %s", got)
	}
	c.URL = "postgres://x"
	if c.DSN() != "postgres://x" {
		t.Fatal("URL should win")
	}
}

func TestCountdownZeroDisables(t *testing.T) {
	t.Setenv("RECORDING_COUNTDOWN", "0")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Recording.CountdownTicks(); got != -1 {
		t.Fatalf("ticks = %d, want -1", got)
	}
	if got := (RecordingConfig{Countdown: 5}).CountdownTicks(); got != 5 {
		t.Fatalf("ticks = %d, want 5", got)
	}

	t.Setenv("RECORDING_COUNTDOWN", "-2")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "RECORDING_COUNTDOWN") {
		t.Fatalf("err = %v", err)
	}
}
