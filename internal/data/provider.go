package data

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

var (
	// ErrProviderNotConnected is returned when operations are attempted on
	// a disconnected provider
	ErrProviderNotConnected = errors.New("provider is not connected")
	// ErrProviderAlreadyConnected is returned when connecting twice
	ErrProviderAlreadyConnected = errors.New("provider is already connected")
	// ErrUnknownProvider is returned for unregistered provider types
	ErrUnknownProvider = errors.New("unknown provider type")
)

// Feed carries everything a provider emits: quotes feed evaluation directly,
// bars feed the indicator series.
type Feed struct {
	Quotes <-chan *models.Quote
	Bars   <-chan *models.Bar1m
}

// Provider is a source of market data for a set of symbols
type Provider interface {
	// Subscribe connects and starts streaming data for the given symbols.
	// The feed's channels close when ctx is cancelled or the provider shuts
	// down.
	Subscribe(ctx context.Context, symbols []string) (*Feed, error)

	// Close shuts the provider down
	Close() error

	// IsConnected reports whether the provider is currently connected
	IsConnected() bool

	// Name returns the provider type ("mock", "websocket")
	Name() string
}

// ProviderConfig holds provider construction settings
type ProviderConfig struct {
	APIKey    string
	APISecret string
	WSURL     string

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// Mock provider settings
	TickInterval time.Duration
}

// Factory builds providers by type name
type Factory struct {
	builders map[string]func(ProviderConfig) (Provider, error)
}

// NewFactory creates a factory with the built-in providers registered
func NewFactory() *Factory {
	f := &Factory{builders: make(map[string]func(ProviderConfig) (Provider, error))}
	f.Register("mock", NewMockProvider)
	f.Register("websocket", NewWebSocketProvider)
	return f
}

// Create builds a provider of the given type
func (f *Factory) Create(providerType string, config ProviderConfig) (Provider, error) {
	builder, ok := f.builders[providerType]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return builder(config)
}

// Register adds a provider builder, replacing any existing one for the type
func (f *Factory) Register(providerType string, builder func(ProviderConfig) (Provider, error)) {
	f.builders[providerType] = builder
}

// List returns the registered provider types, sorted
func (f *Factory) List() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
