package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	Database DatabaseConfig
	Redis    RedisConfig

	MarketData MarketDataConfig

	// Services
	Alerter   AlerterConfig
	API       APIConfig
	WSGateway WSGatewayConfig
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// MarketDataConfig holds market data provider configuration
type MarketDataConfig struct {
	Provider     string // "mock", "websocket"
	APIKey       string
	APISecret    string
	WebSocketURL string
	Symbols      []string
}

// AlerterConfig holds rule evaluation service configuration
type AlerterConfig struct {
	HealthCheckPort   int
	RuleStoreType     string // "memory", "redis", or "postgres"
	RulesFile         string // optional YAML file seeding the rule set
	RuleCacheTTL      time.Duration
	AlertStream       string
	AlertChannel      string
	DedupeTTL         time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port         int
	JWTSecret    string
	JWTExpiry    time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WSGatewayConfig holds WebSocket gateway configuration
type WSGatewayConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxConnections int
	JWTSecret      string
	AlertChannel   string
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "trade_alerter"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		MarketData: MarketDataConfig{
			Provider:     getEnv("MARKET_DATA_PROVIDER", "mock"),
			APIKey:       getEnv("MARKET_DATA_API_KEY", ""),
			APISecret:    getEnv("MARKET_DATA_API_SECRET", ""),
			WebSocketURL: getEnv("MARKET_DATA_WS_URL", ""),
			Symbols:      getEnvAsStringSlice("MARKET_DATA_SYMBOLS", []string{}),
		},
		Alerter: AlerterConfig{
			HealthCheckPort:   getEnvAsInt("ALERTER_HEALTH_PORT", 8081),
			RuleStoreType:     getEnv("ALERTER_RULE_STORE_TYPE", "memory"),
			RulesFile:         getEnv("ALERTER_RULES_FILE", ""),
			RuleCacheTTL:      getEnvAsDuration("ALERTER_RULE_CACHE_TTL", 60*time.Second),
			AlertStream:       getEnv("ALERTER_ALERT_STREAM", "alerts"),
			AlertChannel:      getEnv("ALERTER_ALERT_CHANNEL", "alerts.live"),
			DedupeTTL:         getEnvAsDuration("ALERTER_DEDUPE_TTL", 1*time.Hour),
			ReconnectDelay:    getEnvAsDuration("ALERTER_RECONNECT_DELAY", 1*time.Second),
			MaxReconnectDelay: getEnvAsDuration("ALERTER_MAX_RECONNECT_DELAY", 30*time.Second),
		},
		API: APIConfig{
			Port:         getEnvAsInt("API_PORT", 8090),
			JWTSecret:    getEnv("API_JWT_SECRET", ""),
			JWTExpiry:    getEnvAsDuration("API_JWT_EXPIRY", 24*time.Hour),
			ReadTimeout:  getEnvAsDuration("API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("API_WRITE_TIMEOUT", 15*time.Second),
		},
		WSGateway: WSGatewayConfig{
			Port:           getEnvAsInt("WS_GATEWAY_PORT", 8088),
			ReadTimeout:    getEnvAsDuration("WS_GATEWAY_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("WS_GATEWAY_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:   getEnvAsDuration("WS_GATEWAY_PING_INTERVAL", 30*time.Second),
			MaxConnections: getEnvAsInt("WS_GATEWAY_MAX_CONNECTIONS", 1000),
			JWTSecret:      getEnv("WS_GATEWAY_JWT_SECRET", ""),
			AlertChannel:   getEnv("WS_GATEWAY_ALERT_CHANNEL", "alerts.live"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	switch c.Alerter.RuleStoreType {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("ALERTER_RULE_STORE_TYPE must be \"memory\", \"redis\", or \"postgres\", got %q", c.Alerter.RuleStoreType)
	}
	if c.MarketData.Provider == "websocket" && c.MarketData.WebSocketURL == "" {
		return fmt.Errorf("MARKET_DATA_WS_URL is required for the websocket provider")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
