package enrich

import (
	"fmt"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// Indicator periods for the derived snapshot fields
const (
	ATRPeriod = 14
	SMAPeriod = 20
	EMAPeriod = 20
	RSIPeriod = 14
)

// SymbolIndicators maintains the techan time series and indicators for one
// symbol. All indicators share a single series so every bar feeds all of
// them. Not safe for concurrent use; the enricher serializes per symbol.
type SymbolIndicators struct {
	series *techan.TimeSeries

	atr techan.Indicator
	sma techan.Indicator
	ema techan.Indicator
	rsi techan.Indicator

	// VWAP runs off raw bar sums, not techan
	pvSum  float64
	volSum float64

	resistance float64
	bars       int
}

// NewSymbolIndicators creates the indicator set for one symbol
func NewSymbolIndicators() *SymbolIndicators {
	series := techan.NewTimeSeries()
	closePrice := techan.NewClosePriceIndicator(series)

	return &SymbolIndicators{
		series: series,
		atr:    techan.NewAverageTrueRangeIndicator(series, ATRPeriod),
		sma:    techan.NewSimpleMovingAverage(closePrice, SMAPeriod),
		ema:    techan.NewEMAIndicator(closePrice, EMAPeriod),
		rsi:    techan.NewRelativeStrengthIndexIndicator(closePrice, RSIPeriod),
	}
}

// AddBar feeds one finalized bar into the series
func (si *SymbolIndicators) AddBar(bar *models.Bar1m) error {
	if bar == nil {
		return fmt.Errorf("bar cannot be nil")
	}
	if err := bar.Validate(); err != nil {
		return fmt.Errorf("invalid bar: %w", err)
	}

	candle := techan.NewCandle(techan.NewTimePeriod(bar.Timestamp, time.Minute))
	candle.OpenPrice = big.NewDecimal(bar.Open)
	candle.MaxPrice = big.NewDecimal(bar.High)
	candle.MinPrice = big.NewDecimal(bar.Low)
	candle.ClosePrice = big.NewDecimal(bar.Close)
	candle.Volume = big.NewDecimal(float64(bar.Volume))
	si.series.AddCandle(candle)

	si.pvSum += bar.Close * float64(bar.Volume)
	si.volSum += float64(bar.Volume)
	if bar.High > si.resistance {
		si.resistance = bar.High
	}
	si.bars++
	return nil
}

// BarsProcessed returns how many bars have been fed in
func (si *SymbolIndicators) BarsProcessed() int {
	return si.bars
}

// Reset clears all state, for session rollover
func (si *SymbolIndicators) Reset() {
	fresh := NewSymbolIndicators()
	*si = *fresh
}

// ATR returns the current average true range. Not ready until the series
// holds a full period of bars.
func (si *SymbolIndicators) ATR() (float64, bool) {
	return si.calculate(si.atr, ATRPeriod)
}

// SMA returns the current simple moving average of closes
func (si *SymbolIndicators) SMA() (float64, bool) {
	return si.calculate(si.sma, SMAPeriod)
}

// EMA returns the current exponential moving average of closes
func (si *SymbolIndicators) EMA() (float64, bool) {
	return si.calculate(si.ema, EMAPeriod)
}

// RSI returns the current relative strength index. RSI needs period+1 bars
// to produce its first change-based reading.
func (si *SymbolIndicators) RSI() (float64, bool) {
	return si.calculate(si.rsi, RSIPeriod+1)
}

// VWAP returns the volume-weighted average price across all fed bars
func (si *SymbolIndicators) VWAP() (float64, bool) {
	if si.volSum <= 0 {
		return 0, false
	}
	return si.pvSum / si.volSum, true
}

// Resistance returns the session high across all fed bars
func (si *SymbolIndicators) Resistance() (float64, bool) {
	if si.bars == 0 {
		return 0, false
	}
	return si.resistance, true
}

func (si *SymbolIndicators) calculate(ind techan.Indicator, minBars int) (float64, bool) {
	last := si.series.LastIndex()
	if last < 0 || si.bars < minBars {
		return 0, false
	}
	v := ind.Calculate(last).Float()
	if v != v { // NaN
		return 0, false
	}
	return v, true
}
