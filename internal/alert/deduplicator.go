package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// Deduplicator suppresses repeat alerts downstream of the engine. The engine
// itself emits every match; suppression here keeps retried snapshots and
// restarted consumers from producing the same alert twice.
type Deduplicator struct {
	redis storage.RedisClient
	ttl   time.Duration
}

// NewDeduplicator creates a deduplicator with the given suppression window
func NewDeduplicator(redis storage.RedisClient, ttl time.Duration) *Deduplicator {
	return &Deduplicator{redis: redis, ttl: ttl}
}

// IdempotencyKey identifies an alert for deduplication.
// Format: {rule_id}:{symbol}:{timestamp truncated to second}
func IdempotencyKey(alert *models.Alert) string {
	return fmt.Sprintf("%s:%s:%d",
		alert.RuleID, alert.Symbol, alert.Timestamp.Truncate(time.Second).Unix())
}

// Seen reports whether an equivalent alert was already processed within the
// TTL, marking this one as seen when it was not. The marker write is a single
// SETNX so concurrent emitters racing on the same key elect exactly one
// winner.
func (d *Deduplicator) Seen(ctx context.Context, alert *models.Alert) (bool, error) {
	key := "alert:dedupe:" + IdempotencyKey(alert)

	first, err := d.redis.SetNX(ctx, key, alert.ID, d.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	if !first {
		logger.Debug("duplicate alert suppressed",
			logger.String("rule_id", alert.RuleID),
			logger.String("symbol", alert.Symbol),
		)
		return true, nil
	}
	return false, nil
}
