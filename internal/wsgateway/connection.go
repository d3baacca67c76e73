package wsgateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// sendBufferSize bounds the per-connection outbound queue. A client that
// cannot drain it loses alerts rather than stalling the broadcast loop.
const sendBufferSize = 256

// Connection is a single WebSocket client session.
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu            sync.RWMutex
	subscriptions map[string]bool
	minConfidence float64
	lastPong      time.Time
	createdAt     time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded WebSocket connection.
func NewConnection(id string, userID string, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:            id,
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[string]bool),
		lastPong:      time.Now(),
		createdAt:     time.Now(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Subscribe adds a symbol to the connection's alert filter.
func (c *Connection) Subscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[symbol] = true
}

// Unsubscribe removes a symbol from the connection's alert filter.
func (c *Connection) Unsubscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, symbol)
}

// IsSubscribed reports whether the connection has subscribed to the symbol.
func (c *Connection) IsSubscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[symbol]
}

// SetMinConfidence sets a confidence floor below which alerts are not
// delivered to this connection. Zero means no floor.
func (c *Connection) SetMinConfidence(min float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minConfidence = min
}

// ShouldReceiveAlert decides whether an alert passes this connection's
// filters. A connection with no symbol subscriptions receives every alert.
func (c *Connection) ShouldReceiveAlert(alert *models.Alert) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if alert.ConfidenceScore < c.minConfidence {
		return false
	}
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[alert.Symbol]
}

// UpdateLastPong records pong receipt for staleness tracking.
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the time the last pong was received.
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Close tears down the connection. Safe to call more than once; the read
// and write pumps both unregister on exit. The Send channel is never
// closed, senders observe cancellation through the connection context.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// SendAlert queues an alert for delivery. The message is dropped when the
// outbound buffer stays full for a second.
func (c *Connection) SendAlert(alert *models.Alert) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ServerMessage{Type: "alert", Data: alert})
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-time.After(1 * time.Second):
		logger.Warn("Dropping alert, send buffer full",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
			logger.String("alert_id", alert.ID),
		)
		return errSendBufferFull
	}
}

// SendError queues an error message, dropping it if the buffer is full.
func (c *Connection) SendError(code string, message string) error {
	data, err := json.Marshal(ServerMessage{Type: "error", Code: code, Message: message})
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return nil
	}
}
