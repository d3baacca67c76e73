package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohamedkhairy/trade-alerter/internal/config"
	"github.com/mohamedkhairy/trade-alerter/internal/pubsub"
	"github.com/mohamedkhairy/trade-alerter/internal/wsgateway"
	"github.com/mohamedkhairy/trade-alerter/pkg/auth"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

var upgrader = websocket.Upgrader{
	// TODO: restrict origins once the frontend host is settled
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

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

	logger.Info("Starting WebSocket gateway service",
		logger.Int("port", cfg.WSGateway.Port),
		logger.Int("max_connections", cfg.WSGateway.MaxConnections),
		logger.String("alert_channel", cfg.WSGateway.AlertChannel),
	)

	redisClient, err := pubsub.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client", logger.ErrorField(err))
	}
	defer redisClient.Close()

	verifier := auth.NewVerifier(cfg.WSGateway.JWTSecret)

	hub := wsgateway.NewHub(cfg.WSGateway, redisClient, cfg.WSGateway.AlertChannel)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start WebSocket hub", logger.ErrorField(err))
	}
	defer hub.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(hub, verifier, cfg.WSGateway, w, r)
	})
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetStats())
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WSGateway.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Gateway server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start gateway server", logger.ErrorField(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down WebSocket gateway service", logger.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down gateway server", logger.ErrorField(err))
	}

	logger.Info("WebSocket gateway service stopped")
}

// handleWebSocket authenticates the client and hands the socket to the hub.
func handleWebSocket(hub *wsgateway.Hub, verifier *auth.Verifier, cfg config.WSGatewayConfig, w http.ResponseWriter, r *http.Request) {
	stats := hub.GetStats()
	if int(stats.ConnectionsActive) >= cfg.MaxConnections {
		logger.Warn("Max connections reached, rejecting connection",
			logger.Int("max_connections", cfg.MaxConnections),
			logger.Int64("active_connections", stats.ConnectionsActive),
		)
		http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
		return
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// Browsers cannot set headers on WebSocket upgrades, accept a
		// token query parameter as well.
		if token := r.URL.Query().Get("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}

	userID := "default"
	if tokenString, err := auth.ExtractTokenFromHeader(authHeader); err == nil {
		userID, err = verifier.ValidateToken(tokenString)
		if err != nil {
			logger.Warn("Invalid token, rejecting connection", logger.ErrorField(err))
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}
	} else if verifier.Enabled() {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection", logger.ErrorField(err))
		return
	}

	wsConn := wsgateway.NewConnection(uuid.New().String(), userID, conn)
	hub.Register(wsConn)

	logger.Info("WebSocket connection established",
		logger.String("connection_id", wsConn.ID),
		logger.String("user_id", userID),
		logger.String("remote_addr", r.RemoteAddr),
	)
}
