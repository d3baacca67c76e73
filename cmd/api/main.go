package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/api"
	"github.com/mohamedkhairy/trade-alerter/internal/config"
	"github.com/mohamedkhairy/trade-alerter/internal/pubsub"
	"github.com/mohamedkhairy/trade-alerter/internal/rules"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/auth"
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

	logger.Info("Starting API service",
		logger.Int("port", cfg.API.Port),
		logger.String("rule_store", cfg.Alerter.RuleStoreType),
	)

	redisClient, err := pubsub.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client", logger.ErrorField(err))
	}
	defer redisClient.Close()

	var ruleStore rules.RuleStore
	switch cfg.Alerter.RuleStoreType {
	case "redis":
		ruleStore, err = rules.NewRedisStore(redisClient, rules.DefaultRedisStoreConfig())
		if err != nil {
			logger.Fatal("Failed to initialize rule store", logger.ErrorField(err))
		}
	case "postgres":
		ruleStore, err = rules.NewDatabaseStore(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to initialize rule store", logger.ErrorField(err))
		}
	default:
		ruleStore = rules.NewMemoryStore()
	}

	db, err := storage.NewPostgresStorage(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize PostgreSQL storage", logger.ErrorField(err))
	}
	defer db.Close()

	router := api.NewRouter(api.RouterConfig{
		RuleStore:    ruleStore,
		AlertStorage: db,
		Watchlist:    db,
		Notifier:     rules.NewChangePublisher(redisClient),
		Verifier:     auth.NewVerifier(cfg.API.JWTSecret),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		logger.Info("API server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start API server", logger.ErrorField(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down API service", logger.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down API server", logger.ErrorField(err))
	}

	logger.Info("API service stopped")
}
