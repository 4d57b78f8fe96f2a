// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (required when Store is "postgres")
	Store       string // "postgres" or "memory"

	// Streaming (Kafka)
	KafkaEnabled      bool
	KafkaBrokers      []string
	TransactionsTopic string
	AlertsTopic       string
	ProcessedTopic    string
	ConsumerGroup     string

	// Scoring
	ModelPath           string // Path to the trained model artifact (optional, rules-only without it)
	RuleWeight          float64
	MLWeight            float64
	BlockThreshold      float64 // Combined score at or above this is declined
	ReviewThreshold     float64 // Combined score at or above this is flagged
	HighRiskCountries   []string
	MLHighRiskCountries []string
	SuspiciousMerchants []string

	// HTTP limits
	RateLimitRPS   int
	RateLimitBurst int
	WSMaxClients   int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional, tracing disabled if not set)

	// Shutdown
	ShutdownTimeout time.Duration
}

const (
	DefaultPort              = "8000"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultStore             = "memory"
	DefaultKafkaBrokers      = "localhost:9092"
	DefaultTransactionsTopic = "fraud-detection-transactions"
	DefaultAlertsTopic       = "fraud-detection-alerts"
	DefaultProcessedTopic    = "fraud-detection-processed"
	DefaultConsumerGroup     = "fraud-detection-consumer-group"
	DefaultRuleWeight        = 0.4
	DefaultMLWeight          = 0.6
	DefaultBlockThreshold    = 0.7
	DefaultReviewThreshold   = 0.3
	DefaultRateLimit         = 100
	DefaultRateBurst         = 200
	DefaultWSMaxClients      = 10000
	DefaultShutdownTimeout   = 30 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Store:               getEnv("STORE", DefaultStore),
		KafkaEnabled:        getEnvBool("KAFKA_ENABLED", false),
		KafkaBrokers:        getEnvList("KAFKA_BROKERS", DefaultKafkaBrokers),
		TransactionsTopic:   getEnv("KAFKA_TRANSACTIONS_TOPIC", DefaultTransactionsTopic),
		AlertsTopic:         getEnv("KAFKA_ALERTS_TOPIC", DefaultAlertsTopic),
		ProcessedTopic:      getEnv("KAFKA_PROCESSED_TOPIC", DefaultProcessedTopic),
		ConsumerGroup:       getEnv("KAFKA_CONSUMER_GROUP", DefaultConsumerGroup),
		ModelPath:           os.Getenv("MODEL_PATH"), // Optional, rules-only scoring without it
		RuleWeight:          getEnvFloat("RULE_WEIGHT", DefaultRuleWeight),
		MLWeight:            getEnvFloat("ML_WEIGHT", DefaultMLWeight),
		BlockThreshold:      getEnvFloat("BLOCK_THRESHOLD", DefaultBlockThreshold),
		ReviewThreshold:     getEnvFloat("REVIEW_THRESHOLD", DefaultReviewThreshold),
		HighRiskCountries:   getEnvList("HIGH_RISK_COUNTRIES", "XX,YY"),
		MLHighRiskCountries: getEnvList("ML_HIGH_RISK_COUNTRIES", "XX,YY,ZZ"),
		SuspiciousMerchants: getEnvList("SUSPICIOUS_MERCHANTS", "test,suspicious,fraud"),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		RateLimitBurst:      int(getEnvInt64("RATE_LIMIT_BURST", int64(DefaultRateBurst))),
		WSMaxClients:        int(getEnvInt64("WS_MAX_CLIENTS", int64(DefaultWSMaxClients))),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=postgres")
		}
	case "memory":
		// No database needed
	default:
		return fmt.Errorf("STORE must be \"postgres\" or \"memory\", got %q", c.Store)
	}

	if c.IsProduction() && c.Store == "memory" {
		return fmt.Errorf("STORE=memory is not allowed in production")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"text\", got %q", c.LogFormat)
	}

	if c.RuleWeight < 0 || c.RuleWeight > 1 || c.MLWeight < 0 || c.MLWeight > 1 {
		return fmt.Errorf("RULE_WEIGHT and ML_WEIGHT must be in [0,1]")
	}
	if math.Abs(c.RuleWeight+c.MLWeight-1.0) > 1e-9 {
		return fmt.Errorf("RULE_WEIGHT and ML_WEIGHT must sum to 1.0, got %.3f", c.RuleWeight+c.MLWeight)
	}

	if c.ReviewThreshold <= 0 || c.BlockThreshold > 1 || c.ReviewThreshold >= c.BlockThreshold {
		return fmt.Errorf("thresholds must satisfy 0 < REVIEW_THRESHOLD < BLOCK_THRESHOLD <= 1")
	}

	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
