package rules

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// countingStore wraps MemoryStore and counts GetEnabledRules calls
type countingStore struct {
	*MemoryStore
	calls int64
	fail  atomic.Bool
}

func (s *countingStore) GetEnabledRules() ([]*models.Rule, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.fail.Load() {
		return nil, errors.New("store down")
	}
	return s.MemoryStore.GetEnabledRules()
}

func TestCachedSource_ServesFromCacheWithinTTL(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	if err := store.AddRule(storeRule("Cached", true)); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	cache := NewCachedSource(store, time.Minute)

	for i := 0; i < 5; i++ {
		rules, err := cache.EnabledRules()
		if err != nil {
			t.Fatalf("EnabledRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}
	}

	if n := atomic.LoadInt64(&store.calls); n != 1 {
		t.Errorf("expected 1 store hit within TTL, got %d", n)
	}
}

func TestCachedSource_InvalidateForcesRefresh(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	if err := store.AddRule(storeRule("First", true)); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	cache := NewCachedSource(store, time.Minute)
	if _, err := cache.EnabledRules(); err != nil {
		t.Fatalf("EnabledRules failed: %v", err)
	}

	if err := store.AddRule(storeRule("Second", true)); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	// Still within TTL: the new rule is not visible yet
	rules, _ := cache.EnabledRules()
	if len(rules) != 1 {
		t.Fatalf("expected stale set of 1 rule, got %d", len(rules))
	}

	cache.Invalidate()
	rules, err := cache.EnabledRules()
	if err != nil {
		t.Fatalf("EnabledRules failed: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("expected 2 rules after invalidate, got %d", len(rules))
	}
}

func TestCachedSource_ServesStaleOnStoreFailure(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	if err := store.AddRule(storeRule("Survivor", true)); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	cache := NewCachedSource(store, time.Minute)
	if _, err := cache.EnabledRules(); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	store.fail.Store(true)
	cache.Invalidate()

	rules, err := cache.EnabledRules()
	if err != nil {
		t.Fatalf("expected stale set on store failure, got error: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "Survivor" {
		t.Errorf("stale set not served: %+v", rules)
	}
}

func TestCachedSource_FirstLoadFailureReturnsError(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	store.fail.Store(true)

	cache := NewCachedSource(store, time.Minute)
	if _, err := cache.EnabledRules(); err == nil {
		t.Fatal("expected error when no cached set exists and the store fails")
	}
}
