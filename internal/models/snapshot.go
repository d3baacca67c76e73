package models

import (
	"time"
)

// Derived snapshot fields recognized by the engine. Rules may only reference
// these names (plus "price" and "volume", which every snapshot carries).
// A field absent from a snapshot's Fields map is unknown: any condition
// referencing it fails closed.
const (
	FieldPrice  = "price"
	FieldVolume = "volume"

	FieldChangePercent    = "change_percent"
	FieldGapPercent       = "gap_percent"
	FieldVolumeRatio      = "volume_ratio"
	FieldDayHigh          = "day_high"
	FieldDayLow           = "day_low"
	FieldDayOpen          = "day_open"
	FieldPrevClose        = "prev_close"
	FieldVWAP             = "vwap"
	FieldATR              = "atr"
	FieldSMA20            = "sma_20"
	FieldEMA20            = "ema_20"
	FieldRSI14            = "rsi_14"
	FieldResistanceLevel  = "resistance_level"
	FieldPreMarketHigh    = "pre_market_high"
	FieldPreMarketVolume  = "pre_market_volume"
	FieldFloatShares      = "float_shares"
	FieldShortInterest    = "short_interest"
)

var knownFields = map[string]bool{
	FieldPrice:           true,
	FieldVolume:          true,
	FieldChangePercent:   true,
	FieldGapPercent:      true,
	FieldVolumeRatio:     true,
	FieldDayHigh:         true,
	FieldDayLow:          true,
	FieldDayOpen:         true,
	FieldPrevClose:       true,
	FieldVWAP:            true,
	FieldATR:             true,
	FieldSMA20:           true,
	FieldEMA20:           true,
	FieldRSI14:           true,
	FieldResistanceLevel: true,
	FieldPreMarketHigh:   true,
	FieldPreMarketVolume: true,
	FieldFloatShares:     true,
	FieldShortInterest:   true,
}

// IsKnownField reports whether name is a field the engine can resolve
func IsKnownField(name string) bool {
	return knownFields[name]
}

// MarketSnapshot is one point-in-time observation for a symbol. Price and
// Volume are always present; everything else lives in Fields and may be
// absent. Snapshots are immutable once constructed.
type MarketSnapshot struct {
	Symbol    string             `json:"symbol"`
	Price     float64            `json:"price"`
	Volume    int64              `json:"volume"`
	Timestamp time.Time          `json:"timestamp"`
	Fields    map[string]float64 `json:"fields,omitempty"`
}

// Validate validates a MarketSnapshot
func (s *MarketSnapshot) Validate() error {
	if s.Symbol == "" {
		return ErrInvalidSymbol
	}
	if s.Price <= 0 {
		return ErrInvalidPrice
	}
	if s.Volume < 0 {
		return ErrInvalidVolume
	}
	if s.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// Lookup resolves a field name against the snapshot. The second return is
// false when the field is unknown or absent.
func (s *MarketSnapshot) Lookup(field string) (float64, bool) {
	switch field {
	case FieldPrice:
		return s.Price, true
	case FieldVolume:
		return float64(s.Volume), true
	}
	v, ok := s.Fields[field]
	return v, ok
}

// FieldMap returns the full field set including price and volume, for
// attaching to alerts. The returned map is a copy.
func (s *MarketSnapshot) FieldMap() map[string]float64 {
	m := make(map[string]float64, len(s.Fields)+2)
	for k, v := range s.Fields {
		m[k] = v
	}
	m[FieldPrice] = s.Price
	m[FieldVolume] = float64(s.Volume)
	return m
}
