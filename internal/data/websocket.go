package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// WebSocketProvider streams quotes and bars from an upstream websocket feed.
// It reconnects with exponential backoff; subscriptions are replayed after
// every reconnect.
type WebSocketProvider struct {
	config ProviderConfig

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
}

// Wire messages exchanged with the upstream feed
type wsAuthMessage struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type wsSubscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

type wsFeedMessage struct {
	Type  string          `json:"type"`
	Quote *models.Quote   `json:"quote,omitempty"`
	Bar   *models.Bar1m   `json:"bar,omitempty"`
	Raw   json.RawMessage `json:"data,omitempty"`
}

// NewWebSocketProvider creates a websocket provider
func NewWebSocketProvider(config ProviderConfig) (Provider, error) {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = time.Second
	}
	if config.MaxReconnectDelay <= 0 {
		config.MaxReconnectDelay = 30 * time.Second
	}
	return &WebSocketProvider{config: config}, nil
}

// Name returns "websocket"
func (p *WebSocketProvider) Name() string { return "websocket" }

// IsConnected reports whether the upstream connection is live
func (p *WebSocketProvider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Subscribe connects and starts streaming the given symbols
func (p *WebSocketProvider) Subscribe(ctx context.Context, symbols []string) (*Feed, error) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil, ErrProviderAlreadyConnected
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	quotes := make(chan *models.Quote, 1000)
	bars := make(chan *models.Bar1m, 100)

	go p.run(ctx, symbols, quotes, bars)

	return &Feed{Quotes: quotes, Bars: bars}, nil
}

// run owns the connection lifecycle: connect, subscribe, read until error,
// back off, repeat.
func (p *WebSocketProvider) run(ctx context.Context, symbols []string, quotes chan<- *models.Quote, bars chan<- *models.Bar1m) {
	defer close(quotes)
	defer close(bars)

	delay := p.config.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := p.connect(ctx, symbols); err != nil {
			logger.Warn("feed connect failed",
				logger.String("url", p.config.WSURL),
				logger.Duration("retry_in", delay),
				logger.ErrorField(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > p.config.MaxReconnectDelay {
				delay = p.config.MaxReconnectDelay
			}
			continue
		}

		delay = p.config.ReconnectDelay
		p.readLoop(ctx, quotes, bars)

		p.mu.Lock()
		p.connected = false
		if p.conn != nil {
			p.conn.Close()
			p.conn = nil
		}
		p.mu.Unlock()
	}
}

func (p *WebSocketProvider) connect(ctx context.Context, symbols []string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, p.config.WSURL, nil)
	if err != nil {
		return err
	}

	if p.config.APIKey != "" {
		auth := wsAuthMessage{Action: "auth", Key: p.config.APIKey, Secret: p.config.APISecret}
		if err := conn.WriteJSON(auth); err != nil {
			conn.Close()
			return err
		}
	}

	sub := wsSubscribeMessage{Action: "subscribe", Symbols: symbols}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.connected = true
	p.mu.Unlock()

	logger.Info("connected to market data feed",
		logger.String("url", p.config.WSURL),
		logger.Int("symbols", len(symbols)),
	)
	return nil
}

// readLoop reads until the connection breaks or ctx is cancelled
func (p *WebSocketProvider) readLoop(ctx context.Context, quotes chan<- *models.Quote, bars chan<- *models.Bar1m) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.mu.Lock()
		conn := p.conn
		p.mu.Unlock()
		if conn == nil {
			return
		}

		var msg wsFeedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				logger.Warn("feed read error, reconnecting", logger.ErrorField(err))
			}
			return
		}

		switch msg.Type {
		case "quote":
			if msg.Quote == nil || msg.Quote.Validate() != nil {
				continue
			}
			select {
			case quotes <- msg.Quote:
			case <-ctx.Done():
				return
			default:
				logger.Warn("quote buffer full, dropping",
					logger.String("symbol", msg.Quote.Symbol))
			}
		case "bar":
			if msg.Bar == nil || msg.Bar.Validate() != nil {
				continue
			}
			select {
			case bars <- msg.Bar:
			case <-ctx.Done():
				return
			default:
			}
		default:
			// Control frames and heartbeats pass through here
		}
	}
}

// Close shuts the provider down
func (p *WebSocketProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return ErrProviderNotConnected
	}
	p.cancel()
	p.cancel = nil
	p.connected = false
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}
