package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// AlertStorage defines the interface for alert persistence
type AlertStorage interface {
	// WriteAlert writes an alert to storage
	WriteAlert(ctx context.Context, alert *models.Alert) error

	// WriteAlerts writes multiple alerts to storage (batch operation)
	WriteAlerts(ctx context.Context, alerts []*models.Alert) error

	// GetAlerts retrieves alerts with filtering options
	GetAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)

	// GetAlert retrieves a single alert by ID
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)

	// MarkAlertRead flips the read flag on an alert
	MarkAlertRead(ctx context.Context, alertID string, read bool) error

	// GetAlertStats returns aggregate alert counts
	GetAlertStats(ctx context.Context) (*AlertStats, error)

	// Close closes the storage connection
	Close() error
}

// AlertFilter defines filtering options for alert queries
type AlertFilter struct {
	Symbol    string
	RuleID    string
	SetupType string
	Unread    bool
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// AlertStats holds aggregate alert counts
type AlertStats struct {
	Total       int64            `json:"total"`
	Unread      int64            `json:"unread"`
	BySetupType map[string]int64 `json:"by_setup_type"`
	BySymbol    map[string]int64 `json:"by_symbol"`
}

// WatchlistStorage defines the interface for the symbol watchlist
type WatchlistStorage interface {
	// AddSymbol adds a symbol to the watchlist, reactivating it if present
	AddSymbol(ctx context.Context, symbol string, notes string) (*models.WatchlistItem, error)

	// RemoveSymbol deactivates a symbol on the watchlist
	RemoveSymbol(ctx context.Context, symbol string) error

	// GetActiveSymbols returns the active watchlist symbols
	GetActiveSymbols(ctx context.Context) ([]*models.WatchlistItem, error)

	// Close closes the storage connection
	Close() error
}

// RedisClient defines the interface for Redis operations
type RedisClient interface {
	// Stream operations
	PublishToStream(ctx context.Context, stream string, key string, value interface{}) error
	PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error
	ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error)
	AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error

	// Key-value operations
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Set operations
	SetAdd(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetRemove(ctx context.Context, key string, members ...string) error

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error)

	// Close closes the Redis connection
	Close() error
}

// StreamMessage represents a message from a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
