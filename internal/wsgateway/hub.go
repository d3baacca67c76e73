package wsgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/trade-alerter/internal/config"
	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_gateway_connections_active",
		Help: "Number of active WebSocket connections",
	})
	alertsBroadcastTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_gateway_alerts_broadcast_total",
		Help: "Total number of alerts broadcast to clients",
	})
	messagesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_gateway_messages_dropped_total",
		Help: "Total number of messages dropped due to slow clients",
	})
)

// Hub fans live alerts out to WebSocket clients. Alerts arrive on a Redis
// pub/sub channel fed by the alerter's sink.
type Hub struct {
	config       config.WSGatewayConfig
	registry     *Registry
	redis        storage.RedisClient
	alertChannel string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	connectionsTotal int64
	alertsReceived   int64
	alertsBroadcast  int64
	messagesDropped  int64
	lastAlertUnix    int64
}

// HubStats is a point-in-time snapshot of hub counters.
type HubStats struct {
	ConnectionsTotal  int64     `json:"connections_total"`
	ConnectionsActive int64     `json:"connections_active"`
	AlertsReceived    int64     `json:"alerts_received"`
	AlertsBroadcast   int64     `json:"alerts_broadcast"`
	MessagesDropped   int64     `json:"messages_dropped"`
	LastAlertTime     time.Time `json:"last_alert_time"`
}

// NewHub creates a hub that listens on the given pub/sub channel.
func NewHub(cfg config.WSGatewayConfig, redis storage.RedisClient, alertChannel string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:       cfg,
		registry:     NewRegistry(),
		redis:        redis,
		alertChannel: alertChannel,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins consuming alerts and monitoring connection health.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	messages, err := h.redis.Subscribe(h.ctx, h.alertChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", h.alertChannel, err)
	}

	logger.Info("Starting WebSocket hub",
		logger.String("alert_channel", h.alertChannel),
	)

	h.wg.Add(2)
	go h.consumeAlerts(messages)
	go h.monitorConnections()

	return nil
}

// Stop shuts the hub down and waits for its goroutines.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	h.cancel()

	// Closing the sockets unblocks any readPump stuck in ReadMessage.
	for _, conn := range h.registry.GetAll() {
		h.Unregister(conn)
	}
	h.wg.Wait()
	logger.Info("WebSocket hub stopped")
}

// Register adds a connection and starts its read and write pumps.
func (h *Hub) Register(conn *Connection) {
	h.registry.Add(conn)
	atomic.AddInt64(&h.connectionsTotal, 1)
	connectionsActive.Set(float64(h.registry.Count()))

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// Unregister removes and closes a connection.
func (h *Hub) Unregister(conn *Connection) {
	h.registry.Remove(conn.ID)
	connectionsActive.Set(float64(h.registry.Count()))
	conn.Close()

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)
}

func (h *Hub) consumeAlerts(messages <-chan storage.PubSubMessage) {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-messages:
			if !ok {
				logger.Warn("Alert channel closed")
				return
			}

			var alert models.Alert
			if err := json.Unmarshal([]byte(msg.Message), &alert); err != nil {
				logger.Error("Failed to decode alert message",
					logger.ErrorField(err),
					logger.String("channel", msg.Channel),
				)
				continue
			}

			atomic.AddInt64(&h.alertsReceived, 1)
			atomic.StoreInt64(&h.lastAlertUnix, time.Now().Unix())
			h.broadcastAlert(&alert)
		}
	}
}

func (h *Hub) broadcastAlert(alert *models.Alert) {
	connections := h.registry.GetAll()
	sent := 0
	dropped := 0

	for _, conn := range connections {
		if !conn.ShouldReceiveAlert(alert) {
			continue
		}
		if err := conn.SendAlert(alert); err != nil {
			dropped++
			messagesDroppedTotal.Inc()
		} else {
			sent++
		}
	}

	atomic.AddInt64(&h.alertsBroadcast, 1)
	atomic.AddInt64(&h.messagesDropped, int64(dropped))
	alertsBroadcastTotal.Inc()

	logger.Debug("Broadcast alert",
		logger.String("alert_id", alert.ID),
		logger.String("symbol", alert.Symbol),
		logger.Int("sent", sent),
		logger.Int("dropped", dropped),
		logger.Int("total_connections", len(connections)),
	)
}

// writePump drains the connection's send queue and emits protocol pings.
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-conn.ctx.Done():
			conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))

			w, err := conn.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush anything already queued in the same frame batch.
			n := len(conn.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-conn.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client messages until the connection drops.
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			return
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			conn.SendError("invalid_message", "failed to parse message")
			continue
		}

		if err := conn.HandleClientMessage(&clientMsg); err != nil {
			logger.Debug("Failed to handle client message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
		}
	}
}

// monitorConnections evicts connections whose pongs have gone silent.
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			staleThreshold := h.config.ReadTimeout * 2
			now := time.Now()
			for _, conn := range h.registry.GetAll() {
				if idle := now.Sub(conn.GetLastPong()); idle > staleThreshold {
					logger.Info("Removing stale connection",
						logger.String("connection_id", conn.ID),
						logger.String("user_id", conn.UserID),
						logger.Duration("idle_time", idle),
					)
					h.Unregister(conn)
				}
			}
		}
	}
}

// GetStats snapshots the hub's counters.
func (h *Hub) GetStats() HubStats {
	return HubStats{
		ConnectionsTotal:  atomic.LoadInt64(&h.connectionsTotal),
		ConnectionsActive: int64(h.registry.Count()),
		AlertsReceived:    atomic.LoadInt64(&h.alertsReceived),
		AlertsBroadcast:   atomic.LoadInt64(&h.alertsBroadcast),
		MessagesDropped:   atomic.LoadInt64(&h.messagesDropped),
		LastAlertTime:     time.Unix(atomic.LoadInt64(&h.lastAlertUnix), 0),
	}
}
