package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RuleType tags a rule with the kind of setup it looks for. The tag does not
// change evaluation semantics; it only drives the setup type on alerts.
type RuleType string

const (
	RuleTypePrice     RuleType = "price"
	RuleTypeVolume    RuleType = "volume"
	RuleTypeGap       RuleType = "gap"
	RuleTypeTechnical RuleType = "technical"
)

// SetupType labels the trading setup an alert represents
type SetupType string

const (
	SetupBreakout    SetupType = "breakout"
	SetupVolumeSpike SetupType = "volume_spike"
	SetupGapUp       SetupType = "gap_up"
	SetupGapDown     SetupType = "gap_down"
	SetupMomentum    SetupType = "momentum"
)

// Comparison operators recognized in conditions
const (
	OpGT  = ">"
	OpGTE = ">="
	OpLT  = "<"
	OpLTE = "<="
	OpEQ  = "=="
	OpNEQ = "!="
)

var validOperators = map[string]bool{
	OpGT: true, OpGTE: true, OpLT: true, OpLTE: true, OpEQ: true, OpNEQ: true,
}

// IsValidOperator reports whether op is one of the six recognized operators
func IsValidOperator(op string) bool {
	return validOperators[op]
}

// Condition is a single field/operator/value comparison. Value is normally
// numeric; a string value names another snapshot field to compare against
// (e.g. price > resistance_level).
type Condition struct {
	Field    string      `json:"field" yaml:"field"`
	Operator string      `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value" yaml:"value"`
}

// String renders the condition in the authoring form "field op value"
func (c *Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// Validate validates a Condition
func (c *Condition) Validate() error {
	if c.Field == "" {
		return NewValidationError("conditions.field", "field cannot be empty")
	}
	if !IsKnownField(c.Field) {
		return NewValidationError("conditions.field", "unknown field %q", c.Field)
	}
	if !IsValidOperator(c.Operator) {
		return NewValidationError("conditions.operator",
			"unsupported operator %q (supported: >, >=, <, <=, ==, !=)", c.Operator)
	}
	if c.Value == nil {
		return NewValidationError("conditions.value", "value cannot be nil")
	}
	if ref, ok := c.Value.(string); ok {
		if !IsKnownField(ref) {
			return NewValidationError("conditions.value",
				"value %q is not numeric and does not name a known field", ref)
		}
		return nil
	}
	if _, ok := NumericValue(c.Value); !ok {
		return NewValidationError("conditions.value", "value must be numeric, got %T", c.Value)
	}
	return nil
}

// NumericValue converts a parsed condition value to float64. JSON gives
// float64, YAML gives int or float64 depending on the literal.
func NumericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ParseConditionExpr parses an authoring-form expression like
// "volume_ratio > 3.0" into a Condition. The expression must be exactly
// three whitespace-separated tokens.
func ParseConditionExpr(expr string) (*Condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return nil, NewValidationError("confidence.modifiers.condition",
			"expected \"field op value\", got %q", expr)
	}

	cond := &Condition{Field: parts[0], Operator: parts[1]}
	if v, err := strconv.ParseFloat(parts[2], 64); err == nil {
		cond.Value = v
	} else {
		// Not numeric: treat as a field reference
		cond.Value = parts[2]
	}

	if err := cond.Validate(); err != nil {
		return nil, err
	}
	return cond, nil
}

// Filters are coarse price/volume eligibility gates applied before condition
// evaluation. A nil bound imposes no constraint.
type Filters struct {
	MinPrice  *float64 `json:"min_price,omitempty" yaml:"min_price"`
	MaxPrice  *float64 `json:"max_price,omitempty" yaml:"max_price"`
	MinVolume *int64   `json:"min_volume,omitempty" yaml:"min_volume"`
}

// Targets configures stop-loss and profit-target derivation. Percent offsets
// win over the ATR multiplier and the risk/reward ratio when both are set.
type Targets struct {
	StopLossPercent       *float64 `json:"stop_loss_percent,omitempty" yaml:"stop_loss_percent"`
	StopLossATRMultiplier *float64 `json:"stop_loss_atr_multiplier,omitempty" yaml:"stop_loss_atr_multiplier"`
	TargetPercent         *float64 `json:"target_percent,omitempty" yaml:"target_percent"`
	TargetRRRatio         *float64 `json:"target_rr_ratio,omitempty" yaml:"target_rr_ratio"`
}

// ConfidenceModifier is a conditional adjustment to a rule's base confidence.
// In authored documents the trigger is written as a "field op value" string;
// it unmarshals into the same Condition structure rules use.
type ConfidenceModifier struct {
	Condition  Condition `json:"condition"`
	Adjustment float64   `json:"adjustment"`
}

// UnmarshalYAML accepts the authoring form where condition is an expression
// string rather than a structured object.
func (m *ConfidenceModifier) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Condition  string  `yaml:"condition"`
		Adjustment float64 `yaml:"adjustment"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	cond, err := ParseConditionExpr(raw.Condition)
	if err != nil {
		return err
	}
	m.Condition = *cond
	m.Adjustment = raw.Adjustment
	return nil
}

// UnmarshalJSON accepts either the structured condition object or the
// authoring expression string.
func (m *ConfidenceModifier) UnmarshalJSON(data []byte) error {
	var raw struct {
		Condition  json.RawMessage `json:"condition"`
		Adjustment float64         `json:"adjustment"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Adjustment = raw.Adjustment

	var expr string
	if err := json.Unmarshal(raw.Condition, &expr); err == nil {
		cond, perr := ParseConditionExpr(expr)
		if perr != nil {
			return perr
		}
		m.Condition = *cond
		return nil
	}

	var cond Condition
	if err := json.Unmarshal(raw.Condition, &cond); err != nil {
		return err
	}
	m.Condition = cond
	return nil
}

// Confidence configures the confidence score computation for a rule
type Confidence struct {
	BaseScore float64              `json:"base_score" yaml:"base_score"`
	Modifiers []ConfidenceModifier `json:"modifiers,omitempty" yaml:"modifiers"`
}

// DefaultBaseScore is used when a rule declares no confidence block
const DefaultBaseScore = 0.7

// Rule is a named, independently owned trading rule. Rules are immutable
// during an evaluation pass; edits take effect on the next snapshot.
type Rule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Type        RuleType    `json:"rule_type"`
	Enabled     bool        `json:"enabled"`
	Priority    int         `json:"priority"`
	Conditions  []Condition `json:"conditions"`
	Filters     *Filters    `json:"filters,omitempty"`
	Targets     *Targets    `json:"targets,omitempty"`
	Confidence  *Confidence `json:"confidence,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

var validRuleTypes = map[RuleType]bool{
	RuleTypePrice: true, RuleTypeVolume: true, RuleTypeGap: true, RuleTypeTechnical: true,
}

// Validate validates a Rule structurally. An invalid rule must never enter
// the active set.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return NewValidationError("name", "name cannot be empty")
	}
	if !validRuleTypes[r.Type] {
		return NewValidationError("rule_type",
			"unknown rule type %q (supported: price, volume, gap, technical)", r.Type)
	}
	if len(r.Conditions) == 0 {
		return NewValidationError("conditions", "rule must have at least one condition")
	}
	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	if r.Confidence != nil {
		if r.Confidence.BaseScore < 0.0 || r.Confidence.BaseScore > 1.0 {
			return NewValidationError("confidence.base_score",
				"base score must be in [0.0, 1.0], got %v", r.Confidence.BaseScore)
		}
		for i := range r.Confidence.Modifiers {
			if err := r.Confidence.Modifiers[i].Condition.Validate(); err != nil {
				return fmt.Errorf("confidence modifier %d: %w", i, err)
			}
		}
	}
	return nil
}

// Copy returns a deep copy of the rule
func (r *Rule) Copy() *Rule {
	if r == nil {
		return nil
	}
	copied := *r
	copied.Conditions = make([]Condition, len(r.Conditions))
	copy(copied.Conditions, r.Conditions)
	if r.Filters != nil {
		f := *r.Filters
		copied.Filters = &f
	}
	if r.Targets != nil {
		t := *r.Targets
		copied.Targets = &t
	}
	if r.Confidence != nil {
		c := *r.Confidence
		c.Modifiers = make([]ConfidenceModifier, len(r.Confidence.Modifiers))
		copy(c.Modifiers, r.Confidence.Modifiers)
		copied.Confidence = &c
	}
	return &copied
}
