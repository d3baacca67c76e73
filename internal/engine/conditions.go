package engine

import (
	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// EvaluateCondition evaluates a single condition against a snapshot.
// Missing data never matches: an absent field on either side of the
// comparison yields false rather than an error.
func EvaluateCondition(snapshot *models.MarketSnapshot, cond *models.Condition) bool {
	fieldValue, ok := snapshot.Lookup(cond.Field)
	if !ok {
		return false
	}

	var compareValue float64
	if ref, isRef := cond.Value.(string); isRef {
		// String values name another snapshot field (e.g. resistance_level)
		compareValue, ok = snapshot.Lookup(ref)
		if !ok {
			return false
		}
	} else {
		compareValue, ok = models.NumericValue(cond.Value)
		if !ok {
			return false
		}
	}

	switch cond.Operator {
	case models.OpGT:
		return fieldValue > compareValue
	case models.OpGTE:
		return fieldValue >= compareValue
	case models.OpLT:
		return fieldValue < compareValue
	case models.OpLTE:
		return fieldValue <= compareValue
	case models.OpEQ:
		// Exact IEEE-754 equality, no epsilon. Strict on purpose: rules that
		// want tolerance should use >= / <= bounds instead.
		return fieldValue == compareValue
	case models.OpNEQ:
		return fieldValue != compareValue
	default:
		return false
	}
}

// EvaluateConditions evaluates an ordered condition list with AND semantics,
// short-circuiting on the first miss. An empty list never matches.
func EvaluateConditions(snapshot *models.MarketSnapshot, conditions []models.Condition) bool {
	if len(conditions) == 0 {
		return false
	}
	for i := range conditions {
		if !EvaluateCondition(snapshot, &conditions[i]) {
			return false
		}
	}
	return true
}
