package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
)

func newTestRedisStore(t *testing.T, cfg RedisStoreConfig) *RedisStore {
	t.Helper()
	store, err := NewRedisStore(storage.NewMemoryRedis(), cfg)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	return store
}

func TestRedisStore_AddAndGet(t *testing.T) {
	store := newTestRedisStore(t, DefaultRedisStoreConfig())

	rule := storeRule("Breakout", true)
	if err := store.AddRule(rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if rule.ID == "" {
		t.Fatal("expected an assigned rule ID")
	}

	got, err := store.GetRule(rule.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.Name != "Breakout" {
		t.Errorf("expected Breakout, got %q", got.Name)
	}

	enabled, err := store.GetEnabledRules()
	if err != nil {
		t.Fatalf("GetEnabledRules failed: %v", err)
	}
	if len(enabled) != 1 {
		t.Errorf("expected 1 enabled rule, got %d", len(enabled))
	}
}

func TestRedisStore_RulesDoNotExpireByDefault(t *testing.T) {
	if ttl := DefaultRedisStoreConfig().TTL; ttl != 0 {
		t.Fatalf("default rule TTL = %v, want 0: rules are configuration and must not expire", ttl)
	}

	store := newTestRedisStore(t, DefaultRedisStoreConfig())
	rule := storeRule("Durable", true)
	if err := store.AddRule(rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := store.GetRule(rule.ID); err != nil {
		t.Errorf("rule disappeared without being deleted: %v", err)
	}
}

func TestRedisStore_ExplicitTTLIsHonored(t *testing.T) {
	store := newTestRedisStore(t, RedisStoreConfig{TTL: 5 * time.Millisecond})

	rule := storeRule("Ephemeral", true)
	if err := store.AddRule(rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	if _, err := store.GetRule(rule.ID); !errors.Is(err, models.ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound after TTL, got %v", err)
	}
}

func TestRedisStore_DeleteRule(t *testing.T) {
	store := newTestRedisStore(t, DefaultRedisStoreConfig())

	rule := storeRule("Doomed", true)
	if err := store.AddRule(rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if err := store.DeleteRule(rule.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	if _, err := store.GetRule(rule.ID); !errors.Is(err, models.ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestRedisStore_EnableDisable(t *testing.T) {
	store := newTestRedisStore(t, DefaultRedisStoreConfig())

	rule := storeRule("Toggled", true)
	if err := store.AddRule(rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	if err := store.DisableRule(rule.ID); err != nil {
		t.Fatalf("DisableRule failed: %v", err)
	}
	enabled, err := store.GetEnabledRules()
	if err != nil {
		t.Fatalf("GetEnabledRules failed: %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("expected no enabled rules, got %d", len(enabled))
	}

	if err := store.EnableRule(rule.ID); err != nil {
		t.Fatalf("EnableRule failed: %v", err)
	}
	enabled, err = store.GetEnabledRules()
	if err != nil {
		t.Fatalf("GetEnabledRules failed: %v", err)
	}
	if len(enabled) != 1 {
		t.Errorf("expected 1 enabled rule, got %d", len(enabled))
	}
}
