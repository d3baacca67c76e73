package models

import "time"

// Bar1m is a one-minute OHLCV bar
type Bar1m struct {
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate validates a Bar1m
func (b *Bar1m) Validate() error {
	if b.Symbol == "" {
		return ErrInvalidSymbol
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return ErrInvalidPrice
	}
	if b.Volume < 0 {
		return ErrInvalidVolume
	}
	if b.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// Quote is a raw top-of-book observation from the market data feed, before
// enrichment derives the snapshot fields rules evaluate against.
type Quote struct {
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	Volume         int64     `json:"volume"`
	DayOpen        float64   `json:"day_open,omitempty"`
	DayHigh        float64   `json:"day_high,omitempty"`
	DayLow         float64   `json:"day_low,omitempty"`
	PrevClose      float64   `json:"prev_close,omitempty"`
	AvgDailyVolume int64     `json:"avg_daily_volume,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate validates a Quote
func (q *Quote) Validate() error {
	if q.Symbol == "" {
		return ErrInvalidSymbol
	}
	if q.Price <= 0 {
		return ErrInvalidPrice
	}
	if q.Volume < 0 {
		return ErrInvalidVolume
	}
	if q.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}
