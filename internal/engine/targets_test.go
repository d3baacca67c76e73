package engine

import (
	"testing"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

func TestComputeTargets_StopLossPercent(t *testing.T) {
	snapshot := testSnapshot(100.0, 1_000_000, nil)
	targets := &models.Targets{StopLossPercent: floatPtr(-3.0)}

	stopLoss, targetPrice := ComputeTargets(snapshot, targets)
	if stopLoss == nil || *stopLoss != 97.0 {
		t.Errorf("stopLoss = %v, want 97.0", stopLoss)
	}
	if targetPrice != nil {
		t.Errorf("targetPrice = %v, want nil", *targetPrice)
	}
}

func TestComputeTargets_StopLossATR(t *testing.T) {
	snapshot := testSnapshot(100.0, 1_000_000, map[string]float64{"atr": 2.5})
	targets := &models.Targets{StopLossATRMultiplier: floatPtr(2.0)}

	stopLoss, _ := ComputeTargets(snapshot, targets)
	if stopLoss == nil || *stopLoss != 95.0 {
		t.Errorf("stopLoss = %v, want 95.0", stopLoss)
	}
}

func TestComputeTargets_PercentWinsOverATR(t *testing.T) {
	snapshot := testSnapshot(100.0, 1_000_000, map[string]float64{"atr": 2.5})
	targets := &models.Targets{
		StopLossPercent:       floatPtr(-2.0),
		StopLossATRMultiplier: floatPtr(2.0),
	}

	stopLoss, _ := ComputeTargets(snapshot, targets)
	if stopLoss == nil || *stopLoss != 98.0 {
		t.Errorf("stopLoss = %v, want 98.0 (percent takes precedence)", stopLoss)
	}
}

func TestComputeTargets_ATRAbsentYieldsNoStop(t *testing.T) {
	snapshot := testSnapshot(100.0, 1_000_000, nil)
	targets := &models.Targets{StopLossATRMultiplier: floatPtr(2.0)}

	stopLoss, _ := ComputeTargets(snapshot, targets)
	if stopLoss != nil {
		t.Errorf("stopLoss = %v, want nil when atr is absent", *stopLoss)
	}
}

func TestComputeTargets_RiskReward(t *testing.T) {
	snapshot := testSnapshot(100.0, 1_000_000, nil)
	targets := &models.Targets{
		StopLossPercent: floatPtr(-3.0),
		TargetRRRatio:   floatPtr(2.0),
	}

	stopLoss, targetPrice := ComputeTargets(snapshot, targets)
	if stopLoss == nil || *stopLoss != 97.0 {
		t.Fatalf("stopLoss = %v, want 97.0", stopLoss)
	}
	// risk = 100 - 97 = 3; target = 100 + 2*3 = 106
	if targetPrice == nil || *targetPrice != 106.0 {
		t.Errorf("targetPrice = %v, want 106.0", targetPrice)
	}
}

func TestComputeTargets_RiskRewardNeedsStopLoss(t *testing.T) {
	// ATR multiplier set but atr absent: no stop-loss, so the RR path
	// cannot produce a target either
	snapshot := testSnapshot(100.0, 1_000_000, nil)
	targets := &models.Targets{
		StopLossATRMultiplier: floatPtr(2.0),
		TargetRRRatio:         floatPtr(2.0),
	}

	stopLoss, targetPrice := ComputeTargets(snapshot, targets)
	if stopLoss != nil {
		t.Errorf("stopLoss = %v, want nil", *stopLoss)
	}
	if targetPrice != nil {
		t.Errorf("targetPrice = %v, want nil", *targetPrice)
	}
}

func TestComputeTargets_TargetPercentWinsOverRR(t *testing.T) {
	snapshot := testSnapshot(100.0, 1_000_000, nil)
	targets := &models.Targets{
		StopLossPercent: floatPtr(-3.0),
		TargetPercent:   floatPtr(5.0),
		TargetRRRatio:   floatPtr(2.0),
	}

	_, targetPrice := ComputeTargets(snapshot, targets)
	if targetPrice == nil || *targetPrice != 105.0 {
		t.Errorf("targetPrice = %v, want 105.0 (percent takes precedence)", targetPrice)
	}
}

func TestComputeTargets_NilSpec(t *testing.T) {
	snapshot := testSnapshot(100.0, 1_000_000, nil)

	stopLoss, targetPrice := ComputeTargets(snapshot, nil)
	if stopLoss != nil || targetPrice != nil {
		t.Error("nil target spec must yield no prices")
	}
}

func TestComputeTargets_RoundsToCents(t *testing.T) {
	snapshot := testSnapshot(33.33, 1_000_000, nil)
	targets := &models.Targets{StopLossPercent: floatPtr(-3.0)}

	stopLoss, _ := ComputeTargets(snapshot, targets)
	if stopLoss == nil || *stopLoss != 32.33 {
		t.Errorf("stopLoss = %v, want 32.33", stopLoss)
	}
}
