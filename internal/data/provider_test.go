package data

import (
	"context"
	"testing"
	"time"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()

	types := factory.List()
	if len(types) != 2 || types[0] != "mock" || types[1] != "websocket" {
		t.Errorf("unexpected provider types: %v", types)
	}

	provider, err := factory.Create("mock", ProviderConfig{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if provider.Name() != "mock" {
		t.Errorf("expected mock, got %q", provider.Name())
	}

	if _, err := factory.Create("bloomberg", ProviderConfig{}); err != ErrUnknownProvider {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestMockProvider_EmitsQuotes(t *testing.T) {
	provider, err := NewMockProvider(ProviderConfig{TickInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewMockProvider failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	feed, err := provider.Subscribe(ctx, []string{"AAPL", "TSLA"})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !provider.IsConnected() {
		t.Error("provider should report connected after Subscribe")
	}

	seen := make(map[string]bool)
	for len(seen) < 2 {
		select {
		case quote, ok := <-feed.Quotes:
			if !ok {
				t.Fatal("quote channel closed early")
			}
			if err := quote.Validate(); err != nil {
				t.Fatalf("invalid quote emitted: %v", err)
			}
			if quote.PrevClose <= 0 || quote.DayOpen <= 0 {
				t.Error("mock quotes should carry session context")
			}
			seen[quote.Symbol] = true
		case <-ctx.Done():
			t.Fatal("timed out waiting for quotes")
		}
	}

	if err := provider.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if provider.IsConnected() {
		t.Error("provider should report disconnected after Close")
	}
}

func TestMockProvider_DoubleSubscribe(t *testing.T) {
	provider, err := NewMockProvider(ProviderConfig{TickInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewMockProvider failed: %v", err)
	}
	defer provider.Close()

	ctx := context.Background()
	if _, err := provider.Subscribe(ctx, []string{"AAPL"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := provider.Subscribe(ctx, []string{"AAPL"}); err != ErrProviderAlreadyConnected {
		t.Errorf("expected ErrProviderAlreadyConnected, got %v", err)
	}
}

func TestMockProvider_CloseBeforeSubscribe(t *testing.T) {
	provider, _ := NewMockProvider(ProviderConfig{})
	if err := provider.Close(); err != ErrProviderNotConnected {
		t.Errorf("expected ErrProviderNotConnected, got %v", err)
	}
}
