package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every recognized setting. All fields are read from the
// environment (optionally seeded from a .env file); invalid or missing
// required values are fatal at startup and nowhere else.
type Config struct {
	// Solana endpoints
	SolanaRPC string
	SolanaWSS string

	// Coordination detection
	MinWhales         int
	TimeWindowHours   float64
	MinTradeAmountSol float64
	DustThresholdSol  float64
	SignalMaxAgeHours float64

	// Feed connection lifecycle
	ReconnectBaseDelayMs int
	ReconnectMaxDelayMs  int
	MaxReconnectAttempts int

	// Transaction fetching
	MaxInFlightFetches int
	FetchTimeoutMs     int

	// Database
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	// RabbitMQ (optional for the API binary)
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPassword string

	// HTTP servers
	Port        string
	WatcherPort string
}

// Load reads configuration from the environment, seeding it from .env when
// one is present.
func Load() (*Config, error) {
	// Missing .env is fine, real deployments use plain environment variables
	_ = godotenv.Load()

	var parseErr error
	cfg := &Config{
		SolanaRPC:            os.Getenv("SOLANA_RPC"),
		SolanaWSS:            os.Getenv("SOLANA_WSS"),
		MinWhales:            getEnvInt("MIN_WHALES", 3, &parseErr),
		TimeWindowHours:      getEnvFloat("TIME_WINDOW_HOURS", 1, &parseErr),
		MinTradeAmountSol:    getEnvFloat("MIN_TRADE_AMOUNT_SOL", 0.5, &parseErr),
		DustThresholdSol:     getEnvFloat("DUST_THRESHOLD_SOL", 0.001, &parseErr),
		SignalMaxAgeHours:    getEnvFloat("SIGNAL_MAX_AGE_HOURS", 4, &parseErr),
		ReconnectBaseDelayMs: getEnvInt("RECONNECT_BASE_DELAY_MS", 1000, &parseErr),
		ReconnectMaxDelayMs:  getEnvInt("RECONNECT_MAX_DELAY_MS", 30000, &parseErr),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 10, &parseErr),
		MaxInFlightFetches:   getEnvInt("MAX_IN_FLIGHT_FETCHES", 16, &parseErr),
		FetchTimeoutMs:       getEnvInt("FETCH_TIMEOUT_MS", 10000, &parseErr),
		DBHost:               os.Getenv("DB_HOST"),
		DBUser:               os.Getenv("DB_USER"),
		DBPassword:           os.Getenv("DB_PASSWORD"),
		DBName:               os.Getenv("DB_NAME"),
		DBPort:               getEnvDefault("DB_PORT", "5432"),
		RabbitMQHost:         os.Getenv("RABBITMQ_HOST"),
		RabbitMQPort:         getEnvDefault("RABBITMQ_PORT", "5672"),
		RabbitMQUser:         os.Getenv("RABBITMQ_USER"),
		RabbitMQPassword:     os.Getenv("RABBITMQ_PASSWORD"),
		Port:                 getEnvDefault("PORT", "8080"),
		WatcherPort:          getEnvDefault("WATCHER_PORT", "8081"),
	}

	if parseErr != nil {
		return nil, parseErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.MinWhales < 1 {
		return fmt.Errorf("MIN_WHALES must be >= 1, got %d", c.MinWhales)
	}
	if c.TimeWindowHours <= 0 {
		return fmt.Errorf("TIME_WINDOW_HOURS must be positive, got %v", c.TimeWindowHours)
	}
	if c.MinTradeAmountSol < 0 {
		return fmt.Errorf("MIN_TRADE_AMOUNT_SOL must not be negative, got %v", c.MinTradeAmountSol)
	}
	if c.DustThresholdSol < 0 {
		return fmt.Errorf("DUST_THRESHOLD_SOL must not be negative, got %v", c.DustThresholdSol)
	}
	if c.SignalMaxAgeHours <= 0 {
		return fmt.Errorf("SIGNAL_MAX_AGE_HOURS must be positive, got %v", c.SignalMaxAgeHours)
	}
	if c.ReconnectBaseDelayMs <= 0 {
		return fmt.Errorf("RECONNECT_BASE_DELAY_MS must be positive, got %d", c.ReconnectBaseDelayMs)
	}
	if c.ReconnectMaxDelayMs < c.ReconnectBaseDelayMs {
		return fmt.Errorf("RECONNECT_MAX_DELAY_MS must be >= RECONNECT_BASE_DELAY_MS")
	}
	if c.MaxReconnectAttempts < 1 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be >= 1, got %d", c.MaxReconnectAttempts)
	}
	if c.MaxInFlightFetches < 1 {
		return fmt.Errorf("MAX_IN_FLIGHT_FETCHES must be >= 1, got %d", c.MaxInFlightFetches)
	}
	if c.FetchTimeoutMs <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_MS must be positive, got %d", c.FetchTimeoutMs)
	}
	return nil
}

// TimeWindow returns the rolling coordination window as a duration
func (c *Config) TimeWindow() time.Duration {
	return time.Duration(c.TimeWindowHours * float64(time.Hour))
}

// SignalMaxAge returns the maximum OPEN signal age as a duration
func (c *Config) SignalMaxAge() time.Duration {
	return time.Duration(c.SignalMaxAgeHours * float64(time.Hour))
}

// ReconnectBaseDelay returns the initial reconnect backoff delay
func (c *Config) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.ReconnectBaseDelayMs) * time.Millisecond
}

// ReconnectMaxDelay returns the reconnect backoff cap
func (c *Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.ReconnectMaxDelayMs) * time.Millisecond
}

// FetchTimeout returns the per-fetch timeout
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// DSN builds the postgres connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// AMQPURL builds the RabbitMQ connection string
func (c *Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int, parseErr *error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if *parseErr == nil {
			*parseErr = fmt.Errorf("%s: invalid integer %q", key, v)
		}
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64, parseErr *error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		if *parseErr == nil {
			*parseErr = fmt.Errorf("%s: invalid number %q", key, v)
		}
		return fallback
	}
	return f
}
