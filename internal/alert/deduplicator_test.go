package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
)

func dedupeAlert(id string) *models.Alert {
	return &models.Alert{
		ID:        id,
		RuleID:    "rule-1",
		Symbol:    "AAPL",
		Timestamp: time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC),
	}
}

func TestDeduplicator_FirstSeenWins(t *testing.T) {
	dedupe := NewDeduplicator(storage.NewMemoryRedis(), time.Hour)
	ctx := context.Background()

	seen, err := dedupe.Seen(ctx, dedupeAlert("a-1"))
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = dedupe.Seen(ctx, dedupeAlert("a-2"))
	require.NoError(t, err)
	assert.True(t, seen, "same key within the window is a duplicate")
}

func TestDeduplicator_ConcurrentEmittersElectOneWinner(t *testing.T) {
	dedupe := NewDeduplicator(storage.NewMemoryRedis(), time.Hour)
	ctx := context.Background()

	const emitters = 16
	results := make([]bool, emitters)
	errs := make([]error, emitters)
	var wg sync.WaitGroup
	for i := 0; i < emitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = dedupe.Seen(ctx, dedupeAlert("a-1"))
		}(i)
	}
	wg.Wait()

	unseen := 0
	for i, seen := range results {
		require.NoError(t, errs[i])
		if !seen {
			unseen++
		}
	}
	assert.Equal(t, 1, unseen, "exactly one emitter may win the marker")
}

func TestDeduplicator_ExpiredMarkerAllowsReemission(t *testing.T) {
	dedupe := NewDeduplicator(storage.NewMemoryRedis(), 5*time.Millisecond)
	ctx := context.Background()

	seen, err := dedupe.Seen(ctx, dedupeAlert("a-1"))
	require.NoError(t, err)
	require.False(t, seen)

	time.Sleep(25 * time.Millisecond)

	seen, err = dedupe.Seen(ctx, dedupeAlert("a-2"))
	require.NoError(t, err)
	assert.False(t, seen, "an expired marker no longer suppresses")
}
