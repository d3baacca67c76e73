package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
)

func testStoredAlert(id, symbol string) *models.Alert {
	return &models.Alert{
		ID:              id,
		RuleID:          "rule-1",
		RuleName:        "Breakout",
		Symbol:          symbol,
		Timestamp:       time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC),
		SetupType:       models.SetupBreakout,
		EntryPrice:      105.0,
		ConfidenceScore: 0.8,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestWriter_PersistsStreamedAlerts(t *testing.T) {
	redis := storage.NewMemoryRedis()
	alertStorage := storage.NewMemoryAlertStorage()
	ctx := context.Background()

	require.NoError(t, redis.PublishToStream(ctx, "alerts", "alert", testStoredAlert("a-1", "AAPL")))
	require.NoError(t, redis.PublishToStream(ctx, "alerts", "alert", testStoredAlert("a-2", "TSLA")))

	writer := NewWriter(redis, alertStorage, DefaultWriterConfig("alerts"))
	require.NoError(t, writer.Run(ctx))

	stored, err := alertStorage.GetAlerts(ctx, storage.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	got, err := alertStorage.GetAlert(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 105.0, got.EntryPrice)
}

func TestWriter_SkipsUndecodableMessages(t *testing.T) {
	redis := storage.NewMemoryRedis()
	alertStorage := storage.NewMemoryAlertStorage()
	ctx := context.Background()

	require.NoError(t, redis.PublishBatchToStream(ctx, "alerts", []map[string]interface{}{
		{"alert": "{not json"},
		{"wrong_field": "{}"},
	}))
	require.NoError(t, redis.PublishToStream(ctx, "alerts", "alert", testStoredAlert("a-3", "NVDA")))

	writer := NewWriter(redis, alertStorage, DefaultWriterConfig("alerts"))
	require.NoError(t, writer.Run(ctx))

	stored, err := alertStorage.GetAlerts(ctx, storage.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "a-3", stored[0].ID)
}

func TestWriter_StopsOnCancelledContext(t *testing.T) {
	redis := storage.NewMemoryRedis()
	alertStorage := storage.NewMemoryAlertStorage()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	writer := NewWriter(redis, alertStorage, DefaultWriterConfig("alerts"))
	err := writer.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
