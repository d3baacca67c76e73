package wsgateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

var errSendBufferFull = errors.New("send buffer full")

// MessageType identifies a client-to-server message.
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSetFilter   MessageType = "set_filter"
	MessageTypePing        MessageType = "ping"
)

// ClientMessage is a message received from a client.
type ClientMessage struct {
	Type          string          `json:"type"`
	Symbol        string          `json:"symbol,omitempty"`
	Symbols       []string        `json:"symbols,omitempty"`
	MinConfidence *float64        `json:"min_confidence,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is a message sent to a client.
type ServerMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleClientMessage dispatches a parsed client message.
func (c *Connection) HandleClientMessage(msg *ClientMessage) error {
	switch MessageType(msg.Type) {
	case MessageTypeSubscribe:
		symbols := msg.symbolList()
		if len(symbols) == 0 {
			return c.SendError("invalid_request", "symbol or symbols field required")
		}
		for _, symbol := range symbols {
			c.Subscribe(symbol)
		}
		logger.Debug("Client subscribed",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
			logger.Int("count", len(symbols)),
		)
		return c.SendSuccess("subscribed", map[string]interface{}{"symbols": symbols})

	case MessageTypeUnsubscribe:
		symbols := msg.symbolList()
		if len(symbols) == 0 {
			return c.SendError("invalid_request", "symbol or symbols field required")
		}
		for _, symbol := range symbols {
			c.Unsubscribe(symbol)
		}
		logger.Debug("Client unsubscribed",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
			logger.Int("count", len(symbols)),
		)
		return c.SendSuccess("unsubscribed", map[string]interface{}{"symbols": symbols})

	case MessageTypeSetFilter:
		if msg.MinConfidence == nil {
			return c.SendError("invalid_request", "min_confidence field required")
		}
		if *msg.MinConfidence < 0 || *msg.MinConfidence > 1 {
			return c.SendError("invalid_request", "min_confidence must be between 0 and 1")
		}
		c.SetMinConfidence(*msg.MinConfidence)
		return c.SendSuccess("filter_set", map[string]float64{"min_confidence": *msg.MinConfidence})

	case MessageTypePing:
		return c.SendPong()

	default:
		return c.SendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (m *ClientMessage) symbolList() []string {
	if m.Symbol != "" {
		return []string{m.Symbol}
	}
	return m.Symbols
}

// SendSuccess acknowledges a client request.
func (c *Connection) SendSuccess(action string, data interface{}) error {
	return c.enqueue(ServerMessage{
		Type: "success",
		Data: map[string]interface{}{"action": action, "data": data},
	})
}

// SendPong answers an application-level ping.
func (c *Connection) SendPong() error {
	return c.enqueue(ServerMessage{Type: "pong"})
}

func (c *Connection) enqueue(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return errSendBufferFull
	}
}
