package data

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// MockProvider emits synthetic quotes and bars on a timer, for development
// and tests without a market data subscription. Prices random-walk around a
// per-symbol base.
type MockProvider struct {
	config ProviderConfig

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
}

// NewMockProvider creates a mock provider
func NewMockProvider(config ProviderConfig) (Provider, error) {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	return &MockProvider{config: config}, nil
}

// Name returns "mock"
func (p *MockProvider) Name() string { return "mock" }

// IsConnected reports whether Subscribe has been called
func (p *MockProvider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Subscribe starts the synthetic feed for the given symbols
func (p *MockProvider) Subscribe(ctx context.Context, symbols []string) (*Feed, error) {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return nil, ErrProviderAlreadyConnected
	}
	p.connected = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	quotes := make(chan *models.Quote, 100)
	bars := make(chan *models.Bar1m, 100)

	go p.run(ctx, symbols, quotes, bars)

	logger.Info("mock provider started",
		logger.Int("symbols", len(symbols)),
		logger.Duration("interval", p.config.TickInterval),
	)
	return &Feed{Quotes: quotes, Bars: bars}, nil
}

func (p *MockProvider) run(ctx context.Context, symbols []string, quotes chan<- *models.Quote, bars chan<- *models.Bar1m) {
	defer close(quotes)
	defer close(bars)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	type symbolState struct {
		price     float64
		prevClose float64
		dayOpen   float64
		dayHigh   float64
		dayLow    float64
		volume    int64
		barOpen   float64
		barHigh   float64
		barLow    float64
		barVolume int64
	}

	states := make(map[string]*symbolState, len(symbols))
	for _, symbol := range symbols {
		base := 20 + rng.Float64()*200
		prevClose := base * (1 + (rng.Float64()-0.5)*0.04)
		states[symbol] = &symbolState{
			price:     base,
			prevClose: prevClose,
			dayOpen:   base,
			dayHigh:   base,
			dayLow:    base,
			barOpen:   base,
			barHigh:   base,
			barLow:    base,
		}
	}

	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()
	barTicker := time.NewTicker(time.Minute)
	defer barTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			for _, symbol := range symbols {
				st := states[symbol]
				st.price *= 1 + (rng.Float64()-0.5)*0.004
				tickVolume := int64(rng.Intn(10000) + 100)
				st.volume += tickVolume
				st.barVolume += tickVolume
				if st.price > st.dayHigh {
					st.dayHigh = st.price
				}
				if st.price < st.dayLow {
					st.dayLow = st.price
				}
				if st.price > st.barHigh {
					st.barHigh = st.price
				}
				if st.price < st.barLow {
					st.barLow = st.price
				}

				quote := &models.Quote{
					Symbol:         symbol,
					Price:          st.price,
					Volume:         st.volume,
					DayOpen:        st.dayOpen,
					DayHigh:        st.dayHigh,
					DayLow:         st.dayLow,
					PrevClose:      st.prevClose,
					AvgDailyVolume: 5000000,
					Timestamp:      now,
				}
				select {
				case quotes <- quote:
				case <-ctx.Done():
					return
				default:
					// Slow consumer; drop the quote rather than stall
				}
			}

		case now := <-barTicker.C:
			for _, symbol := range symbols {
				st := states[symbol]
				bar := &models.Bar1m{
					Symbol:    symbol,
					Open:      st.barOpen,
					High:      st.barHigh,
					Low:       st.barLow,
					Close:     st.price,
					Volume:    st.barVolume,
					Timestamp: now.Truncate(time.Minute),
				}
				st.barOpen = st.price
				st.barHigh = st.price
				st.barLow = st.price
				st.barVolume = 0

				select {
				case bars <- bar:
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}
}

// Close stops the feed
func (p *MockProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrProviderNotConnected
	}
	p.connected = false
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}
