package engine

import (
	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// ComputeConfidence computes a rule's confidence score for a snapshot.
// It starts from the base score and applies modifiers strictly in declaration
// order: a modifier whose condition holds adds its adjustment, and the
// running score is clamped to [0.0, 1.0] after every applied adjustment.
// Clamping per step makes the declared order observable (a later negative
// adjustment works from the clamped value, not the overflowed one), which is
// intentional.
//
// A nil confidence spec yields the default base score.
func ComputeConfidence(snapshot *models.MarketSnapshot, confidence *models.Confidence) float64 {
	if confidence == nil {
		return models.DefaultBaseScore
	}

	score := clamp01(confidence.BaseScore)
	for i := range confidence.Modifiers {
		mod := &confidence.Modifiers[i]
		if EvaluateCondition(snapshot, &mod.Condition) {
			score = clamp01(score + mod.Adjustment)
		}
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
