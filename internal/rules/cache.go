package rules

import (
	"sync"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// DefaultCacheTTL is how long a loaded rule set is served before the
// backing store is consulted again.
const DefaultCacheTTL = 60 * time.Second

// CachedSource serves the enabled rule set from memory, refreshing from the
// backing store at most once per TTL. Rule edits made through the store
// become visible on the next refresh, or immediately after Invalidate.
type CachedSource struct {
	store RuleStore
	ttl   time.Duration

	mu        sync.RWMutex
	rules     []*models.Rule
	loadedAt  time.Time
	refreshes int64
}

// NewCachedSource wraps a RuleStore with a TTL cache. A non-positive ttl
// falls back to DefaultCacheTTL.
func NewCachedSource(store RuleStore, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{store: store, ttl: ttl}
}

// EnabledRules returns the cached enabled rule set, refreshing it from the
// store when stale. On a refresh failure the previous set keeps serving so
// a store outage does not stop evaluation.
func (c *CachedSource) EnabledRules() ([]*models.Rule, error) {
	c.mu.RLock()
	if c.rules != nil && time.Since(c.loadedAt) < c.ttl {
		rules := c.rules
		c.mu.RUnlock()
		return rules, nil
	}
	c.mu.RUnlock()

	return c.refresh()
}

// Invalidate expires the cached set; the next EnabledRules call hits the
// store. The expired set is kept as a fallback in case that load fails.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func (c *CachedSource) refresh() ([]*models.Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock
	if c.rules != nil && time.Since(c.loadedAt) < c.ttl {
		return c.rules, nil
	}

	fresh, err := c.store.GetEnabledRules()
	if err != nil {
		if c.rules != nil {
			logger.Warn("rule refresh failed, serving stale set",
				logger.Int("rules", len(c.rules)),
				logger.ErrorField(err),
			)
			return c.rules, nil
		}
		return nil, err
	}

	c.rules = fresh
	c.loadedAt = time.Now()
	c.refreshes++
	logger.Debug("rule cache refreshed", logger.Int("rules", len(fresh)))
	return c.rules, nil
}
