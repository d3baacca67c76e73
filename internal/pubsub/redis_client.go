package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/trade-alerter/internal/config"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// Client implements storage.RedisClient on go-redis. It carries the streams
// used between the alerter and downstream consumers, the rule keys shared
// with the API service, and the pub/sub channels the WS gateway fans out.
type Client struct {
	client *redis.Client
}

// NewClient connects to Redis and verifies the connection
func NewClient(cfg config.RedisConfig) (storage.RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
	)
	return &Client{client: rdb}, nil
}

// PublishToStream appends one JSON-encoded message to a stream
func (r *Client) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{key: string(jsonData)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return nil
}

// PublishBatchToStream appends multiple messages to a stream in one pipeline
func (r *Client) PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error {
	if len(messages) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, msg := range messages {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: msg})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish batch to stream %s: %w", stream, err)
	}
	return nil
}

// ConsumeFromStream reads a stream through a consumer group, delivering
// messages on the returned channel until ctx is cancelled. Messages must be
// acknowledged with AcknowledgeMessage once processed.
func (r *Client) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan storage.StreamMessage, error) {
	messageChan := make(chan storage.StreamMessage, 100)

	if err := r.ensureGroup(ctx, stream, group); err != nil {
		logger.Warn("consumer group not ready, read loop will retry",
			logger.String("stream", stream),
			logger.String("group", group),
			logger.ErrorField(err),
		)
	}

	go func() {
		defer close(messageChan)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: consumer,
				Streams:  []string{stream, ">"},
				Count:    10,
				Block:    time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue
				}
				if strings.Contains(err.Error(), "NOGROUP") {
					// The stream or group vanished; recreate and keep reading
					if cerr := r.ensureGroup(ctx, stream, group); cerr != nil {
						logger.Error("failed to recreate consumer group",
							logger.String("stream", stream),
							logger.String("group", group),
							logger.ErrorField(cerr),
						)
					}
					time.Sleep(2 * time.Second)
					continue
				}
				logger.Error("stream read error",
					logger.String("stream", stream),
					logger.ErrorField(err),
				)
				time.Sleep(time.Second)
				continue
			}

			for _, s := range streams {
				for _, message := range s.Messages {
					msg := storage.StreamMessage{
						ID:     message.ID,
						Stream: s.Stream,
						Values: message.Values,
					}
					select {
					case messageChan <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return messageChan, nil
}

// ensureGroup creates the consumer group, creating the stream if needed.
// BUSYGROUP means the group already exists and is not an error.
func (r *Client) ensureGroup(ctx context.Context, stream, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// AcknowledgeMessage acknowledges a stream message
func (r *Client) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	return r.client.XAck(ctx, stream, group, id).Err()
}

// Set stores a JSON-encoded value with a TTL
func (r *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.client.Set(ctx, key, jsonData, ttl).Err()
}

// SetNX stores a JSON-encoded value only when the key does not exist,
// reporting whether this call created it.
func (r *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.client.SetNX(ctx, key, jsonData, ttl).Result()
}

// Get returns the raw value of a key, or empty string when absent
func (r *Client) Get(ctx context.Context, key string) (string, error) {
	result, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return result, err
}

// GetJSON reads a key and unmarshals its JSON value into dest. An absent
// key leaves dest untouched.
func (r *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete removes a key
func (r *Client) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Exists reports whether a key exists
func (r *Client) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	return count > 0, err
}

// SetAdd adds members to a set
func (r *Client) SetAdd(ctx context.Context, key string, members ...string) error {
	return r.client.SAdd(ctx, key, members).Err()
}

// SetMembers returns all members of a set
func (r *Client) SetMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

// SetRemove removes members from a set
func (r *Client) SetRemove(ctx context.Context, key string, members ...string) error {
	return r.client.SRem(ctx, key, members).Err()
}

// Publish sends a JSON-encoded message on a pub/sub channel
func (r *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return r.client.Publish(ctx, channel, jsonData).Err()
}

// Subscribe subscribes to pub/sub channels, delivering messages until ctx
// is cancelled
func (r *Client) Subscribe(ctx context.Context, channels ...string) (<-chan storage.PubSubMessage, error) {
	sub := r.client.Subscribe(ctx, channels...)
	messageChan := make(chan storage.PubSubMessage, 100)

	go func() {
		defer close(messageChan)
		ch := sub.Channel()

		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg := <-ch:
				if msg == nil {
					return
				}
				out := storage.PubSubMessage{Channel: msg.Channel, Message: msg.Payload}
				select {
				case messageChan <- out:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return messageChan, nil
}

// Close closes the Redis connection
func (r *Client) Close() error {
	return r.client.Close()
}
