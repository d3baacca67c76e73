package models

import (
	"time"
)

// AlertCandidate is the engine's output for one matched rule against one
// snapshot. Identity and timestamp are assigned downstream by the alert sink.
type AlertCandidate struct {
	Symbol            string             `json:"symbol"`
	RuleID            string             `json:"rule_id"`
	RuleName          string             `json:"rule_name"`
	SetupType         SetupType          `json:"setup_type"`
	EntryPrice        float64            `json:"entry_price"`
	StopLoss          *float64           `json:"stop_loss,omitempty"`
	TargetPrice       *float64           `json:"target_price,omitempty"`
	ConfidenceScore   float64            `json:"confidence_score"`
	MatchedConditions []string           `json:"matched_conditions,omitempty"`
	MarketData        map[string]float64 `json:"market_data,omitempty"`
}

// Alert is a persisted trading alert
type Alert struct {
	ID                string             `json:"id"`
	RuleID            string             `json:"rule_id"`
	RuleName          string             `json:"rule_name"`
	Symbol            string             `json:"symbol"`
	Timestamp         time.Time          `json:"timestamp"`
	SetupType         SetupType          `json:"setup_type"`
	EntryPrice        float64            `json:"entry_price"`
	StopLoss          *float64           `json:"stop_loss,omitempty"`
	TargetPrice       *float64           `json:"target_price,omitempty"`
	ConfidenceScore   float64            `json:"confidence_score"`
	MatchedConditions []string           `json:"matched_conditions,omitempty"`
	MarketData        map[string]float64 `json:"market_data,omitempty"`
	IsRead            bool               `json:"is_read"`
	CreatedAt         time.Time          `json:"created_at"`
}

// Validate validates an Alert
func (a *Alert) Validate() error {
	if a.ID == "" {
		return NewValidationError("id", "alert ID cannot be empty")
	}
	if a.Symbol == "" {
		return ErrInvalidSymbol
	}
	if a.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// WatchlistItem is one watched symbol. The alerter subscribes to market data
// for every active watchlist entry.
type WatchlistItem struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	AddedAt  time.Time `json:"added_at"`
	IsActive bool      `json:"is_active"`
	Notes    string    `json:"notes,omitempty"`
}
