package enrich

import (
	"math"
	"testing"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

func testBar(symbol string, close float64, volume int64, minute int) *models.Bar1m {
	base := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)
	return &models.Bar1m{
		Symbol:    symbol,
		Open:      close - 0.5,
		High:      close + 1.0,
		Low:       close - 1.0,
		Close:     close,
		Volume:    volume,
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSnapshot_DerivedFields(t *testing.T) {
	e := NewEnricher()

	quote := &models.Quote{
		Symbol:         "AAPL",
		Price:          103.0,
		Volume:         3000000,
		DayOpen:        102.0,
		DayHigh:        104.0,
		DayLow:         101.0,
		PrevClose:      100.0,
		AvgDailyVolume: 1500000,
		Timestamp:      time.Now(),
	}

	snap, err := e.Snapshot(quote)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if v, ok := snap.Lookup(models.FieldChangePercent); !ok || !almostEqual(v, 3.0) {
		t.Errorf("change_percent = %v (ok=%v), want 3.0", v, ok)
	}
	if v, ok := snap.Lookup(models.FieldGapPercent); !ok || !almostEqual(v, 2.0) {
		t.Errorf("gap_percent = %v (ok=%v), want 2.0", v, ok)
	}
	if v, ok := snap.Lookup(models.FieldVolumeRatio); !ok || !almostEqual(v, 2.0) {
		t.Errorf("volume_ratio = %v (ok=%v), want 2.0", v, ok)
	}
	if v, ok := snap.Lookup(models.FieldDayHigh); !ok || v != 104.0 {
		t.Errorf("day_high = %v (ok=%v)", v, ok)
	}
}

func TestSnapshot_MissingContextLeavesFieldsAbsent(t *testing.T) {
	e := NewEnricher()

	quote := &models.Quote{
		Symbol:    "NEWIPO",
		Price:     25.0,
		Volume:    500000,
		Timestamp: time.Now(),
	}

	snap, err := e.Snapshot(quote)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	for _, field := range []string{
		models.FieldChangePercent,
		models.FieldGapPercent,
		models.FieldVolumeRatio,
		models.FieldPrevClose,
		models.FieldATR,
		models.FieldSMA20,
	} {
		if _, ok := snap.Lookup(field); ok {
			t.Errorf("field %s should be absent without inputs", field)
		}
	}

	// Price and volume always resolve
	if v, ok := snap.Lookup(models.FieldPrice); !ok || v != 25.0 {
		t.Errorf("price = %v (ok=%v)", v, ok)
	}
}

func TestSnapshot_InvalidQuote(t *testing.T) {
	e := NewEnricher()
	if _, err := e.Snapshot(&models.Quote{Symbol: "AAPL", Price: 0, Timestamp: time.Now()}); err == nil {
		t.Fatal("expected error for zero price")
	}
	if _, err := e.Snapshot(&models.Quote{Price: 10, Timestamp: time.Now()}); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestIndicators_VWAPAndResistance(t *testing.T) {
	si := NewSymbolIndicators()

	if _, ok := si.VWAP(); ok {
		t.Error("VWAP should not be ready with no bars")
	}
	if _, ok := si.Resistance(); ok {
		t.Error("resistance should not be ready with no bars")
	}

	// Two bars: closes 100@1000 and 110@3000 -> vwap 107.5
	if err := si.AddBar(testBar("X", 100, 1000, 0)); err != nil {
		t.Fatalf("AddBar failed: %v", err)
	}
	if err := si.AddBar(testBar("X", 110, 3000, 1)); err != nil {
		t.Fatalf("AddBar failed: %v", err)
	}

	v, ok := si.VWAP()
	if !ok || !almostEqual(v, 107.5) {
		t.Errorf("vwap = %v (ok=%v), want 107.5", v, ok)
	}

	r, ok := si.Resistance()
	if !ok || r != 111.0 {
		t.Errorf("resistance = %v (ok=%v), want 111.0 (high of last bar)", r, ok)
	}
}

func TestIndicators_ReadinessGates(t *testing.T) {
	si := NewSymbolIndicators()

	for i := 0; i < SMAPeriod-1; i++ {
		if err := si.AddBar(testBar("X", 100+float64(i), 1000, i)); err != nil {
			t.Fatalf("AddBar failed: %v", err)
		}
	}
	if _, ok := si.SMA(); ok {
		t.Errorf("SMA ready with %d bars, needs %d", si.BarsProcessed(), SMAPeriod)
	}

	if err := si.AddBar(testBar("X", 120, 1000, SMAPeriod-1)); err != nil {
		t.Fatalf("AddBar failed: %v", err)
	}
	if _, ok := si.SMA(); !ok {
		t.Error("SMA should be ready at a full window")
	}
	if _, ok := si.EMA(); !ok {
		t.Error("EMA should be ready at a full window")
	}
	if _, ok := si.ATR(); !ok {
		t.Error("ATR should be ready past its window")
	}
	if _, ok := si.RSI(); !ok {
		t.Error("RSI should be ready past window+1 bars")
	}
}

func TestIndicators_SMAValue(t *testing.T) {
	si := NewSymbolIndicators()

	// Constant closes give an SMA equal to the close
	for i := 0; i < SMAPeriod; i++ {
		if err := si.AddBar(testBar("X", 50, 1000, i)); err != nil {
			t.Fatalf("AddBar failed: %v", err)
		}
	}

	v, ok := si.SMA()
	if !ok || !almostEqual(v, 50.0) {
		t.Errorf("sma = %v (ok=%v), want 50.0", v, ok)
	}
}

func TestEnricher_AddBarFlowsIntoSnapshot(t *testing.T) {
	e := NewEnricher()

	for i := 0; i < SMAPeriod+1; i++ {
		if err := e.AddBar(testBar("TSLA", 200, 5000, i)); err != nil {
			t.Fatalf("AddBar failed: %v", err)
		}
	}

	snap, err := e.Snapshot(&models.Quote{
		Symbol:    "TSLA",
		Price:     201.0,
		Volume:    100000,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if v, ok := snap.Lookup(models.FieldSMA20); !ok || !almostEqual(v, 200.0) {
		t.Errorf("sma_20 = %v (ok=%v), want 200.0", v, ok)
	}
	if v, ok := snap.Lookup(models.FieldVWAP); !ok || !almostEqual(v, 200.0) {
		t.Errorf("vwap = %v (ok=%v), want 200.0", v, ok)
	}
	if v, ok := snap.Lookup(models.FieldResistanceLevel); !ok || v != 201.0 {
		t.Errorf("resistance_level = %v (ok=%v), want 201.0", v, ok)
	}

	// Bars for one symbol should not leak into another
	other, err := e.Snapshot(&models.Quote{
		Symbol:    "AAPL",
		Price:     150.0,
		Volume:    100000,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if _, ok := other.Lookup(models.FieldSMA20); ok {
		t.Error("indicator state leaked across symbols")
	}
}
