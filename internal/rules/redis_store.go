package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

const (
	// DefaultRuleKeyPrefix is the prefix for per-rule keys in Redis
	DefaultRuleKeyPrefix = "rules:"
	// DefaultRuleSetKey is the key of the set holding all rule IDs
	DefaultRuleSetKey = "rules:ids"
)

// RedisStoreConfig holds configuration for RedisStore. TTL is zero by
// default: rules are configuration, not cache entries, and must survive
// until deleted. A nonzero TTL is only for stores layered over a durable
// source of record.
type RedisStoreConfig struct {
	KeyPrefix string
	SetKey    string
	TTL       time.Duration
}

// DefaultRedisStoreConfig returns default configuration
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		KeyPrefix: DefaultRuleKeyPrefix,
		SetKey:    DefaultRuleSetKey,
		TTL:       0,
	}
}

// RedisStore is a Redis-backed RuleStore shared between the alerter and the
// API service. Rules are stored as JSON under rules:{rule_id}; a Redis set
// holds all rule IDs for listing.
type RedisStore struct {
	redis  storage.RedisClient
	config RedisStoreConfig
	ctx    context.Context
}

// NewRedisStore creates a Redis-backed rule store
func NewRedisStore(redis storage.RedisClient, config RedisStoreConfig) (*RedisStore, error) {
	if redis == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRuleKeyPrefix
	}
	if config.SetKey == "" {
		config.SetKey = DefaultRuleSetKey
	}
	if config.TTL < 0 {
		config.TTL = 0
	}

	return &RedisStore{
		redis:  redis,
		config: config,
		ctx:    context.Background(),
	}, nil
}

// GetRule retrieves a rule by ID
func (s *RedisStore) GetRule(id string) (*models.Rule, error) {
	if id == "" {
		return nil, models.ErrRuleNotFound
	}

	key := s.config.KeyPrefix + id

	var rule models.Rule
	if err := s.redis.GetJSON(s.ctx, key, &rule); err != nil {
		return nil, fmt.Errorf("failed to get rule from Redis: %w", err)
	}
	// GetJSON leaves the destination untouched for an absent key, and every
	// stored rule carries an ID.
	if rule.ID == "" {
		return nil, models.ErrRuleNotFound
	}

	// A rule that no longer validates must not reach the engine
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule data in Redis: %w", err)
	}
	return &rule, nil
}

// GetAllRules retrieves every stored rule. Rules that fail to load or
// validate are skipped with a warning rather than failing the listing.
func (s *RedisStore) GetAllRules() ([]*models.Rule, error) {
	ruleIDs, err := s.redis.SetMembers(s.ctx, s.config.SetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule IDs from Redis: %w", err)
	}

	rules := make([]*models.Rule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		rule, err := s.GetRule(id)
		if err != nil {
			logger.Warn("skipping unreadable rule",
				logger.String("rule_id", id),
				logger.ErrorField(err),
			)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// GetEnabledRules retrieves only enabled rules
func (s *RedisStore) GetEnabledRules() ([]*models.Rule, error) {
	all, err := s.GetAllRules()
	if err != nil {
		return nil, err
	}

	enabled := make([]*models.Rule, 0, len(all))
	for _, rule := range all {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	return enabled, nil
}

// AddRule validates and stores a new rule, assigning an ID when absent
func (s *RedisStore) AddRule(rule *models.Rule) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	} else {
		exists, err := s.redis.Exists(s.ctx, s.config.KeyPrefix+rule.ID)
		if err != nil {
			return fmt.Errorf("failed to check if rule exists: %w", err)
		}
		if exists {
			return models.ErrRuleExists
		}
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	key := s.config.KeyPrefix + rule.ID
	if err := s.redis.Set(s.ctx, key, rule, s.config.TTL); err != nil {
		return fmt.Errorf("failed to store rule in Redis: %w", err)
	}

	if err := s.redis.SetAdd(s.ctx, s.config.SetKey, rule.ID); err != nil {
		// Clean up the orphaned rule key so the set stays authoritative
		s.redis.Delete(s.ctx, key)
		return fmt.Errorf("failed to add rule ID to set: %w", err)
	}

	logger.Debug("rule stored in Redis",
		logger.String("rule_id", rule.ID),
		logger.String("name", rule.Name),
	)
	return nil
}

// UpdateRule replaces an existing rule, preserving CreatedAt
func (s *RedisStore) UpdateRule(rule *models.Rule) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	existing, err := s.GetRule(rule.ID)
	if err != nil {
		return err
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	key := s.config.KeyPrefix + rule.ID
	if err := s.redis.Set(s.ctx, key, rule, s.config.TTL); err != nil {
		return fmt.Errorf("failed to update rule in Redis: %w", err)
	}
	return nil
}

// DeleteRule removes a rule by ID
func (s *RedisStore) DeleteRule(id string) error {
	if id == "" {
		return models.ErrRuleNotFound
	}

	key := s.config.KeyPrefix + id
	exists, err := s.redis.Exists(s.ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check if rule exists: %w", err)
	}
	if !exists {
		return models.ErrRuleNotFound
	}

	if err := s.redis.Delete(s.ctx, key); err != nil {
		return fmt.Errorf("failed to delete rule from Redis: %w", err)
	}

	if err := s.redis.SetRemove(s.ctx, s.config.SetKey, id); err != nil {
		// Listing skips dangling IDs, so a failed set removal is survivable
		logger.Warn("failed to remove rule ID from set",
			logger.String("rule_id", id),
			logger.ErrorField(err),
		)
	}
	return nil
}

// EnableRule enables a rule
func (s *RedisStore) EnableRule(id string) error {
	return s.setEnabled(id, true)
}

// DisableRule disables a rule without deleting it
func (s *RedisStore) DisableRule(id string) error {
	return s.setEnabled(id, false)
}

func (s *RedisStore) setEnabled(id string, enabled bool) error {
	rule, err := s.GetRule(id)
	if err != nil {
		return err
	}

	rule.Enabled = enabled
	rule.UpdatedAt = time.Now().UTC()

	key := s.config.KeyPrefix + id
	if err := s.redis.Set(s.ctx, key, rule, s.config.TTL); err != nil {
		return fmt.Errorf("failed to update rule enabled state: %w", err)
	}
	return nil
}
