package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultTopic receives every video domain event.
const DefaultTopic = "videocreator.events"

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON, keyed by user id so a user's events stay
// ordered within a partition.
type Kafka struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafka creates a synchronous writer for brokers (comma separated).
func NewKafka(brokers, topic string, logger *zap.Logger) *Kafka {
	if topic == "" {
		topic = DefaultTopic
	}
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return newKafka(w, logger)
}

func newKafka(w messageWriter, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{writer: w, logger: logger}
}

func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.UserID.String()),
		Value: body,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
			{Key: "source", Value: []byte("videocreator")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Warn("kafka publish failed", zap.String("type", ev.Type), zap.String("user_id", ev.UserID.String()), zap.Error(err))
		return fmt.Errorf("write to kafka: %w", err)
	}
	k.logger.Debug("event published", zap.String("type", ev.Type), zap.String("event_id", ev.ID.String()))
	return nil
}

func (k *Kafka) Close() error { return k.writer.Close() }
