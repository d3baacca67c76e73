package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohamedkhairy/trade-alerter/internal/alert"
	"github.com/mohamedkhairy/trade-alerter/internal/alerter"
	"github.com/mohamedkhairy/trade-alerter/internal/config"
	"github.com/mohamedkhairy/trade-alerter/internal/data"
	"github.com/mohamedkhairy/trade-alerter/internal/enrich"
	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/pubsub"
	"github.com/mohamedkhairy/trade-alerter/internal/rules"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting alerter service",
		logger.String("provider", cfg.MarketData.Provider),
		logger.String("rule_store", cfg.Alerter.RuleStoreType),
		logger.Int("health_port", cfg.Alerter.HealthCheckPort),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := pubsub.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client", logger.ErrorField(err))
	}
	defer redisClient.Close()

	ruleStore, err := buildRuleStore(cfg, redisClient)
	if err != nil {
		logger.Fatal("Failed to initialize rule store", logger.ErrorField(err))
	}

	ruleCache := rules.NewCachedSource(ruleStore, cfg.Alerter.RuleCacheTTL)
	go func() {
		if err := rules.WatchChanges(ctx, redisClient, ruleCache); err != nil {
			logger.Warn("Rule change watcher unavailable, relying on cache TTL",
				logger.ErrorField(err),
			)
		}
	}()

	db, err := storage.NewPostgresStorage(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize PostgreSQL storage", logger.ErrorField(err))
	}
	defer db.Close()

	dedupe := alert.NewDeduplicator(redisClient, cfg.Alerter.DedupeTTL)
	sink := alert.NewSink(redisClient, dedupe, alert.SinkConfig{
		Stream:  cfg.Alerter.AlertStream,
		Channel: cfg.Alerter.AlertChannel,
	})

	writer := alert.NewWriter(redisClient, db, alert.DefaultWriterConfig(cfg.Alerter.AlertStream))
	go func() {
		if err := writer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Alert writer stopped", logger.ErrorField(err))
		}
	}()

	provider, err := data.NewFactory().Create(cfg.MarketData.Provider, data.ProviderConfig{
		APIKey:            cfg.MarketData.APIKey,
		APISecret:         cfg.MarketData.APISecret,
		WSURL:             cfg.MarketData.WebSocketURL,
		ReconnectDelay:    cfg.Alerter.ReconnectDelay,
		MaxReconnectDelay: cfg.Alerter.MaxReconnectDelay,
	})
	if err != nil {
		logger.Fatal("Failed to create market data provider",
			logger.ErrorField(err),
			logger.String("provider", cfg.MarketData.Provider),
		)
	}
	defer provider.Close()

	symbols, err := resolveSymbols(ctx, cfg, db)
	if err != nil {
		logger.Fatal("Failed to resolve watch symbols", logger.ErrorField(err))
	}

	service := alerter.New(ruleCache, enrich.NewEnricher(), sink, provider, symbols)

	healthServer := startHealthServer(cfg.Alerter.HealthCheckPort)

	errCh := make(chan error, 1)
	go func() {
		errCh <- service.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down alerter service", logger.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Alerter service stopped", logger.ErrorField(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", logger.ErrorField(err))
	}

	logger.Info("Alerter service stopped")
}

// buildRuleStore constructs the configured rule store and seeds it from the
// rules file when one is set.
func buildRuleStore(cfg *config.Config, redisClient storage.RedisClient) (rules.RuleStore, error) {
	var store rules.RuleStore
	switch cfg.Alerter.RuleStoreType {
	case "redis":
		redisStore, err := rules.NewRedisStore(redisClient, rules.DefaultRedisStoreConfig())
		if err != nil {
			return nil, err
		}
		store = redisStore
	case "postgres":
		dbStore, err := rules.NewDatabaseStore(cfg.Database)
		if err != nil {
			return nil, err
		}
		store = dbStore
	default:
		store = rules.NewMemoryStore()
	}

	if cfg.Alerter.RulesFile == "" {
		return store, nil
	}

	raw, err := os.ReadFile(cfg.Alerter.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", cfg.Alerter.RulesFile, err)
	}
	parsed, err := rules.ParseRulesConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", cfg.Alerter.RulesFile, err)
	}

	seeded := 0
	for _, rule := range parsed {
		if err := store.AddRule(rule); err != nil {
			if errors.Is(err, models.ErrRuleExists) {
				continue
			}
			return nil, fmt.Errorf("failed to seed rule %s: %w", rule.Name, err)
		}
		seeded++
	}
	logger.Info("Seeded rules from file",
		logger.String("path", cfg.Alerter.RulesFile),
		logger.Int("seeded", seeded),
		logger.Int("total", len(parsed)),
	)
	return store, nil
}

// resolveSymbols prefers the explicit symbol list from configuration and
// falls back to the active watchlist.
func resolveSymbols(ctx context.Context, cfg *config.Config, watchlist storage.WatchlistStorage) ([]string, error) {
	if len(cfg.MarketData.Symbols) > 0 {
		return cfg.MarketData.Symbols, nil
	}

	items, err := watchlist.GetActiveSymbols(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(items))
	for _, item := range items {
		symbols = append(symbols, item.Symbol)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured: set MARKET_DATA_SYMBOLS or add watchlist entries")
	}
	return symbols, nil
}

func startHealthServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		logger.Info("Starting health server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start health server", logger.ErrorField(err))
		}
	}()
	return server
}
