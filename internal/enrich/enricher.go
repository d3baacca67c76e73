package enrich

import (
	"sync"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// Enricher turns raw quotes into evaluable market snapshots. It derives the
// percentage fields from the quote's session context and attaches indicator
// values once the per-symbol series has enough bars. Fields whose inputs are
// unavailable are simply left out of the snapshot; the engine fails closed
// on them.
type Enricher struct {
	mu      sync.Mutex
	symbols map[string]*SymbolIndicators
}

// NewEnricher creates an Enricher with no per-symbol state
func NewEnricher() *Enricher {
	return &Enricher{
		symbols: make(map[string]*SymbolIndicators),
	}
}

// AddBar feeds a finalized bar into the symbol's indicator series
func (e *Enricher) AddBar(bar *models.Bar1m) error {
	e.mu.Lock()
	si, ok := e.symbols[bar.Symbol]
	if !ok {
		si = NewSymbolIndicators()
		e.symbols[bar.Symbol] = si
	}
	e.mu.Unlock()

	return si.AddBar(bar)
}

// ResetSymbol clears a symbol's indicator state, for session rollover
func (e *Enricher) ResetSymbol(symbol string) {
	e.mu.Lock()
	delete(e.symbols, symbol)
	e.mu.Unlock()
}

// Snapshot builds a MarketSnapshot from a quote plus whatever indicator
// state exists for the symbol.
func (e *Enricher) Snapshot(quote *models.Quote) (*models.MarketSnapshot, error) {
	if err := quote.Validate(); err != nil {
		return nil, err
	}

	fields := make(map[string]float64)

	if quote.PrevClose > 0 {
		fields[models.FieldPrevClose] = quote.PrevClose
		fields[models.FieldChangePercent] = (quote.Price - quote.PrevClose) / quote.PrevClose * 100
		if quote.DayOpen > 0 {
			fields[models.FieldGapPercent] = (quote.DayOpen - quote.PrevClose) / quote.PrevClose * 100
		}
	}
	if quote.DayOpen > 0 {
		fields[models.FieldDayOpen] = quote.DayOpen
	}
	if quote.DayHigh > 0 {
		fields[models.FieldDayHigh] = quote.DayHigh
	}
	if quote.DayLow > 0 {
		fields[models.FieldDayLow] = quote.DayLow
	}
	if quote.AvgDailyVolume > 0 {
		fields[models.FieldVolumeRatio] = float64(quote.Volume) / float64(quote.AvgDailyVolume)
	}

	e.mu.Lock()
	si := e.symbols[quote.Symbol]
	e.mu.Unlock()

	if si != nil {
		if v, ok := si.VWAP(); ok {
			fields[models.FieldVWAP] = v
		}
		if v, ok := si.ATR(); ok {
			fields[models.FieldATR] = v
		}
		if v, ok := si.SMA(); ok {
			fields[models.FieldSMA20] = v
		}
		if v, ok := si.EMA(); ok {
			fields[models.FieldEMA20] = v
		}
		if v, ok := si.RSI(); ok {
			fields[models.FieldRSI14] = v
		}
		if v, ok := si.Resistance(); ok {
			fields[models.FieldResistanceLevel] = v
		}
	} else {
		logger.Debug("no indicator state for symbol", logger.String("symbol", quote.Symbol))
	}

	return &models.MarketSnapshot{
		Symbol:    quote.Symbol,
		Price:     quote.Price,
		Volume:    quote.Volume,
		Timestamp: quote.Timestamp,
		Fields:    fields,
	}, nil
}
