package wsgateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/config"
	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
)

func testHubConfig() config.WSGatewayConfig {
	return config.WSGatewayConfig{
		Port:           8088,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxConnections: 100,
		AlertChannel:   "alerts.live",
	}
}

func waitForMessage(t *testing.T, conn *Connection) ServerMessage {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to decode message: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ServerMessage{}
	}
}

func TestHubBroadcastsPublishedAlerts(t *testing.T) {
	redis := storage.NewMemoryRedis()
	hub := NewHub(testHubConfig(), redis, "alerts.live")
	if err := hub.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer hub.Stop()

	// Added to the registry directly, bypassing the socket pumps.
	conn := NewConnection("conn-1", "user-1", nil)
	hub.registry.Add(conn)

	alert := testAlert("AAPL", 0.9)
	if err := redis.Publish(context.Background(), "alerts.live", alert); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msg := waitForMessage(t, conn)
	if msg.Type != "alert" {
		t.Fatalf("message type = %q, want alert", msg.Type)
	}

	payload, err := json.Marshal(msg.Data)
	if err != nil {
		t.Fatalf("failed to re-encode payload: %v", err)
	}
	var got models.Alert
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("failed to decode alert payload: %v", err)
	}
	if got.Symbol != "AAPL" || got.ConfidenceScore != 0.9 {
		t.Errorf("got alert %s/%v, want AAPL/0.9", got.Symbol, got.ConfidenceScore)
	}

	// Counters update just after delivery, poll briefly.
	deadline := time.Now().Add(time.Second)
	for {
		stats := hub.GetStats()
		if stats.AlertsReceived == 1 && stats.AlertsBroadcast == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats = %+v, want one alert received and broadcast", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubRespectsSymbolSubscriptions(t *testing.T) {
	redis := storage.NewMemoryRedis()
	hub := NewHub(testHubConfig(), redis, "alerts.live")
	if err := hub.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer hub.Stop()

	subscribed := NewConnection("conn-1", "user-1", nil)
	subscribed.Subscribe("TSLA")
	other := NewConnection("conn-2", "user-2", nil)
	other.Subscribe("MSFT")
	hub.registry.Add(subscribed)
	hub.registry.Add(other)

	if err := redis.Publish(context.Background(), "alerts.live", testAlert("TSLA", 0.8)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msg := waitForMessage(t, subscribed)
	if msg.Type != "alert" {
		t.Errorf("subscribed connection got %q, want alert", msg.Type)
	}

	select {
	case data := <-other.Send:
		t.Errorf("unsubscribed connection received message: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubStartIsIdempotent(t *testing.T) {
	redis := storage.NewMemoryRedis()
	hub := NewHub(testHubConfig(), redis, "alerts.live")
	if err := hub.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := hub.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	hub.Stop()
	hub.Stop()
}

func TestHubIgnoresMalformedMessages(t *testing.T) {
	redis := storage.NewMemoryRedis()
	hub := NewHub(testHubConfig(), redis, "alerts.live")
	if err := hub.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer hub.Stop()

	conn := NewConnection("conn-1", "user-1", nil)
	hub.registry.Add(conn)

	// Raw string payload does not decode into an alert.
	if err := redis.Publish(context.Background(), "alerts.live", "not an alert"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := redis.Publish(context.Background(), "alerts.live", testAlert("AAPL", 0.7)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msg := waitForMessage(t, conn)
	if msg.Type != "alert" {
		t.Errorf("message type = %q, want alert", msg.Type)
	}
}
