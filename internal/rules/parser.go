package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// ruleDocument is the authoring shape of a rule: a block-structured YAML
// document. Confidence modifier conditions are written as "field op value"
// expression strings and parsed into the same Condition structure the
// engine evaluates.
type ruleDocument struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Type        string             `yaml:"type"`
	Enabled     *bool              `yaml:"enabled"`
	Priority    int                `yaml:"priority"`
	Conditions  []models.Condition `yaml:"conditions"`
	Filters     *models.Filters    `yaml:"filters"`
	Targets     *models.Targets    `yaml:"targets"`
	Confidence  *models.Confidence `yaml:"confidence"`
}

type rulesConfig struct {
	Rules []ruleDocument `yaml:"rules"`
}

// ParseRuleDocument parses one YAML rule document into a validated Rule.
// A structurally invalid document fails with a ValidationError naming the
// offending field and must not enter the active set.
func ParseRuleDocument(data []byte) (*models.Rule, error) {
	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule document: %w", err)
	}
	return doc.toRule()
}

// ParseRulesConfig parses a YAML config file holding a top-level "rules"
// list. Every rule must validate; one bad rule fails the whole file so a
// config edit cannot silently drop rules.
func ParseRulesConfig(data []byte) ([]*models.Rule, error) {
	var config rulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules config: %w", err)
	}

	rules := make([]*models.Rule, 0, len(config.Rules))
	for i := range config.Rules {
		rule, err := config.Rules[i].toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, config.Rules[i].Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (d *ruleDocument) toRule() (*models.Rule, error) {
	// Enabled defaults to true when the document omits it
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}

	rule := &models.Rule{
		Name:        d.Name,
		Description: d.Description,
		Type:        models.RuleType(d.Type),
		Enabled:     enabled,
		Priority:    d.Priority,
		Conditions:  d.Conditions,
		Filters:     d.Filters,
		Targets:     d.Targets,
		Confidence:  d.Confidence,
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}
