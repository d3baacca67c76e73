package engine

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

var (
	snapshotsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_snapshots_evaluated_total",
		Help: "Total number of snapshots run through the rule engine",
	})

	rulesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_rules_evaluated_total",
		Help: "Total number of rule evaluations",
	})

	rulesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_rules_matched_total",
		Help: "Total number of rule matches, by setup type",
	}, []string{"setup_type"})

	evaluateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_evaluate_duration_seconds",
		Help:    "Duration of one full evaluation pass over all rules",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
	})
)

// Engine evaluates a rule set against market snapshots. It holds no mutable
// state: Evaluate is a pure function of its inputs and is safe to call
// concurrently for different snapshots.
type Engine struct{}

// New creates a new rule engine
func New() *Engine {
	return &Engine{}
}

// Evaluate runs every enabled rule against the snapshot and returns the alert
// candidates for the rules that matched, ordered by rule priority descending
// (stable for equal priorities). The engine does not deduplicate across
// rules; two matching rules produce two candidates.
func (e *Engine) Evaluate(snapshot *models.MarketSnapshot, rules []*models.Rule) []*models.AlertCandidate {
	start := time.Now()
	defer func() {
		evaluateDuration.Observe(time.Since(start).Seconds())
	}()
	snapshotsEvaluated.Inc()

	candidates := make([]*models.AlertCandidate, 0)
	for _, rule := range ActiveRules(rules) {
		rulesEvaluated.Inc()

		candidate, matched := evaluateRule(snapshot, rule)
		if !matched {
			continue
		}

		rulesMatched.WithLabelValues(string(candidate.SetupType)).Inc()
		logger.Debug("Rule matched",
			logger.String("rule_id", rule.ID),
			logger.String("rule_name", rule.Name),
			logger.String("symbol", snapshot.Symbol),
			logger.Float64("confidence", candidate.ConfidenceScore),
		)
		candidates = append(candidates, candidate)
	}

	return candidates
}

// ActiveRules returns the enabled rules sorted by priority descending.
// The sort is stable: equal priorities keep their input order.
func ActiveRules(rules []*models.Rule) []*models.Rule {
	active := make([]*models.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule != nil && rule.Enabled {
			active = append(active, rule)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})
	return active
}

// evaluateRule runs the filter -> conditions -> targets -> confidence
// pipeline for one rule. The second return is false when the rule did not
// match. A non-match is silent: missing fields and filter misses are not
// errors.
func evaluateRule(snapshot *models.MarketSnapshot, rule *models.Rule) (*models.AlertCandidate, bool) {
	if !PassesFilters(snapshot, rule.Filters) {
		return nil, false
	}
	if !EvaluateConditions(snapshot, rule.Conditions) {
		return nil, false
	}

	stopLoss, targetPrice := ComputeTargets(snapshot, rule.Targets)
	confidence := ComputeConfidence(snapshot, rule.Confidence)

	matched := make([]string, len(rule.Conditions))
	for i := range rule.Conditions {
		matched[i] = rule.Conditions[i].String()
	}

	return &models.AlertCandidate{
		Symbol:            snapshot.Symbol,
		RuleID:            rule.ID,
		RuleName:          rule.Name,
		SetupType:         DeriveSetupType(rule),
		EntryPrice:        snapshot.Price,
		StopLoss:          stopLoss,
		TargetPrice:       targetPrice,
		ConfidenceScore:   confidence,
		MatchedConditions: matched,
		MarketData:        snapshot.FieldMap(),
	}, true
}

// DeriveSetupType labels the setup an alert represents, from the rule's type
// tag and the direction of its conditions.
func DeriveSetupType(rule *models.Rule) models.SetupType {
	switch rule.Type {
	case models.RuleTypeVolume:
		return models.SetupVolumeSpike

	case models.RuleTypeGap:
		for i := range rule.Conditions {
			cond := &rule.Conditions[i]
			if cond.Field != models.FieldGapPercent {
				continue
			}
			if v, ok := models.NumericValue(cond.Value); ok {
				if v > 0 {
					return models.SetupGapUp
				}
				if v < 0 {
					return models.SetupGapDown
				}
			}
			// Zero threshold or field reference: fall back to the
			// operator's direction
			switch cond.Operator {
			case models.OpGT, models.OpGTE:
				return models.SetupGapUp
			case models.OpLT, models.OpLTE:
				return models.SetupGapDown
			}
		}
		return models.SetupMomentum

	case models.RuleTypePrice:
		for i := range rule.Conditions {
			cond := &rule.Conditions[i]
			if cond.Field != models.FieldPrice {
				continue
			}
			if cond.Operator == models.OpGT || cond.Operator == models.OpGTE {
				return models.SetupBreakout
			}
		}
		return models.SetupMomentum

	default:
		return models.SetupMomentum
	}
}
