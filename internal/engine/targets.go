package engine

import (
	"math"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// ComputeTargets derives stop-loss and profit-target prices from a rule's
// target spec and the snapshot's entry price. Unsatisfiable inputs yield nil
// for the corresponding side; this function never fails.
//
// Stop-loss precedence: fixed percent offset, then ATR multiplier (which
// needs the snapshot's atr field). Target precedence: fixed percent offset,
// then risk/reward ratio (which needs a computed stop-loss).
func ComputeTargets(snapshot *models.MarketSnapshot, targets *models.Targets) (stopLoss, targetPrice *float64) {
	if targets == nil {
		return nil, nil
	}

	entry := snapshot.Price

	switch {
	case targets.StopLossPercent != nil:
		// The percent is applied signed as-is; a below-entry stop is
		// expressed as a negative percent.
		v := roundCents(entry * (1 + *targets.StopLossPercent/100))
		stopLoss = &v
	case targets.StopLossATRMultiplier != nil:
		if atr, ok := snapshot.Lookup(models.FieldATR); ok {
			v := roundCents(entry - atr**targets.StopLossATRMultiplier)
			stopLoss = &v
		}
	}

	switch {
	case targets.TargetPercent != nil:
		v := roundCents(entry * (1 + *targets.TargetPercent/100))
		targetPrice = &v
	case targets.TargetRRRatio != nil:
		if stopLoss != nil {
			risk := entry - *stopLoss
			v := roundCents(entry + risk**targets.TargetRRRatio)
			targetPrice = &v
		}
	}

	return stopLoss, targetPrice
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
