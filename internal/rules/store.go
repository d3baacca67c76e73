package rules

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// RuleStore manages the persistent rule set
type RuleStore interface {
	GetRule(id string) (*models.Rule, error)
	GetAllRules() ([]*models.Rule, error)
	GetEnabledRules() ([]*models.Rule, error)
	AddRule(rule *models.Rule) error
	UpdateRule(rule *models.Rule) error
	DeleteRule(id string) error
	EnableRule(id string) error
	DisableRule(id string) error
}

// MemoryStore is an in-memory RuleStore. Rules are copied on the way in and
// out so callers can never mutate the stored set without going through the
// store.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*models.Rule
}

// NewMemoryStore creates an empty in-memory rule store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules: make(map[string]*models.Rule),
	}
}

// GetRule retrieves a rule by ID
func (s *MemoryStore) GetRule(id string) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, models.ErrRuleNotFound
	}
	return rule.Copy(), nil
}

// GetAllRules returns every stored rule, enabled or not
func (s *MemoryStore) GetAllRules() ([]*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule.Copy())
	}
	return out, nil
}

// GetEnabledRules returns only enabled rules
func (s *MemoryStore) GetEnabledRules() ([]*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.Enabled {
			out = append(out, rule.Copy())
		}
	}
	return out, nil
}

// AddRule validates and stores a new rule, assigning an ID when absent
func (s *MemoryStore) AddRule(rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	} else if _, exists := s.rules[rule.ID]; exists {
		return models.ErrRuleExists
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	s.rules[rule.ID] = rule.Copy()
	logger.Debug("rule added", logger.String("rule_id", rule.ID), logger.String("name", rule.Name))
	return nil
}

// UpdateRule replaces an existing rule. CreatedAt is preserved from the
// stored rule.
func (s *MemoryStore) UpdateRule(rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[rule.ID]
	if !ok {
		return models.ErrRuleNotFound
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	s.rules[rule.ID] = rule.Copy()
	return nil
}

// DeleteRule removes a rule by ID
func (s *MemoryStore) DeleteRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return models.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

// EnableRule marks a rule as enabled
func (s *MemoryStore) EnableRule(id string) error {
	return s.setEnabled(id, true)
}

// DisableRule marks a rule as disabled. Disabled rules stay stored but are
// skipped by evaluation.
func (s *MemoryStore) DisableRule(id string) error {
	return s.setEnabled(id, false)
}

func (s *MemoryStore) setEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return models.ErrRuleNotFound
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now().UTC()
	return nil
}
