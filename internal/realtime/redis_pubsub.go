package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// channelPrefix namespaces per-user studio channels.
const channelPrefix = "studio:events:"

type redisEnvelope struct {
	Message
	SentAt int64 `json:"sent_at"`
}

// RedisBus is a Bus over Redis pub/sub with one channel per user.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func userChannel(userID uuid.UUID) string { return channelPrefix + userID.String() }

func (b *RedisBus) Publish(ctx context.Context, userID uuid.UUID, msg Message) error {
	body, err := json.Marshal(redisEnvelope{Message: msg, SentAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, userChannel(userID), body).Err()
}

// Subscribe confirms the subscription before returning, so messages
// published afterwards are not missed.
func (b *RedisBus) Subscribe(userID uuid.UUID, deliver func(Message)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	ps := b.client.Subscribe(ctx, userChannel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", userID, err)
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var env redisEnvelope
				if err := json.Unmarshal([]byte(raw.Payload), &env); err != nil {
					b.logger.Warn("malformed bus message", zap.String("channel", raw.Channel), zap.Error(err))
					continue
				}
				deliver(env.Message)
			}
		}
	}()
	return cancel, nil
}

var _ Bus = (*RedisBus)(nil)
