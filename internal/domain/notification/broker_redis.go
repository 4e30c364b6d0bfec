package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const redisChannel = "estatecollab:notifications"

type redisMessage struct {
	UserID   int64           `json:"user_id"`
	Envelope json.RawMessage `json:"envelope"`
}

// RedisBroker fans envelopes out to every API instance through Redis pub/sub.
// Each instance runs Subscribe and hands messages to its local hub.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
}

func NewRedisBroker(client *redis.Client, hub *Hub) *RedisBroker {
	return &RedisBroker{client: client, hub: hub}
}

// ConnectRedis parses url and checks the server is reachable.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (b *RedisBroker) Publish(ctx context.Context, userID int64, env *Envelope) error {
	payload, err := encodeRedisMessage(userID, env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisChannel, payload).Err()
}

// Subscribe forwards published envelopes to the local hub until ctx is done.
func (b *RedisBroker) Subscribe(ctx context.Context) {
	sub := b.client.Subscribe(ctx, redisChannel)
	defer sub.Close()

	log.Printf("redis_broker_subscribed channel=%s", redisChannel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("redis_broker_stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, data, err := decodeRedisMessage([]byte(msg.Payload))
			if err != nil {
				log.Printf("redis_broker_bad_message err=%v", err)
				continue
			}
			b.hub.Deliver(userID, data)
		}
	}
}

func encodeRedisMessage(userID int64, env *Envelope) ([]byte, error) {
	data, err := env.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(redisMessage{UserID: userID, Envelope: data})
}

func decodeRedisMessage(payload []byte) (int64, []byte, error) {
	var m redisMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return 0, nil, err
	}
	if m.UserID <= 0 || len(m.Envelope) == 0 {
		return 0, nil, fmt.Errorf("incomplete message")
	}
	return m.UserID, m.Envelope, nil
}
