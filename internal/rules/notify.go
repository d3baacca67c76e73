package rules

import (
	"context"

	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// ChangeChannel is the pub/sub channel announcing rule set changes
const ChangeChannel = "rules.changed"

// ChangePublisher announces rule set changes over Redis pub/sub so running
// evaluators drop their caches instead of waiting out the TTL.
type ChangePublisher struct {
	redis storage.RedisClient
}

// NewChangePublisher creates a change publisher
func NewChangePublisher(redis storage.RedisClient) *ChangePublisher {
	return &ChangePublisher{redis: redis}
}

// RulesChanged publishes a change notification. Failures are logged, not
// returned: the TTL refresh still picks the change up.
func (p *ChangePublisher) RulesChanged() {
	if err := p.redis.Publish(context.Background(), ChangeChannel, "changed"); err != nil {
		logger.Warn("failed to publish rule change", logger.ErrorField(err))
	}
}

// WatchChanges invalidates the cache whenever a change notification arrives,
// until ctx is cancelled.
func WatchChanges(ctx context.Context, redis storage.RedisClient, cache *CachedSource) error {
	messages, err := redis.Subscribe(ctx, ChangeChannel)
	if err != nil {
		return err
	}

	go func() {
		for range messages {
			logger.Debug("rule change notification received")
			cache.Invalidate()
		}
	}()
	return nil
}
