package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func validConfig() Config {
	return Config{
		Port:            "8000",
		Env:             "development",
		LogLevel:        "info",
		LogFormat:       "json",
		Store:           "memory",
		KafkaBrokers:    []string{"localhost:9092"},
		RuleWeight:      0.4,
		MLWeight:        0.6,
		BlockThreshold:  0.7,
		ReviewThreshold: 0.3,
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, DefaultTransactionsTopic, cfg.TransactionsTopic)
	assert.Equal(t, DefaultAlertsTopic, cfg.AlertsTopic)
	assert.Equal(t, DefaultProcessedTopic, cfg.ProcessedTopic)
	assert.Equal(t, DefaultConsumerGroup, cfg.ConsumerGroup)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"XX", "YY"}, cfg.HighRiskCountries)
	assert.Equal(t, []string{"XX", "YY", "ZZ"}, cfg.MLHighRiskCountries)
	assert.Equal(t, []string{"test", "suspicious", "fraud"}, cfg.SuspiciousMerchants)
	assert.InDelta(t, 0.4, cfg.RuleWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.MLWeight, 1e-9)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "KAFKA_ENABLED", "true")
	setEnv(t, "KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	setEnv(t, "HIGH_RISK_COUNTRIES", "AA,BB,CC")
	setEnv(t, "SHUTDOWN_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"AA", "BB", "CC"}, cfg.HighRiskCountries)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Port = "not-a-port" },
			wantErr: "PORT must be a number",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Port = "70000" },
			wantErr: "PORT must be a number",
		},
		{
			name:    "postgres store without url",
			mutate:  func(c *Config) { c.Store = "postgres" },
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store = "mysql" },
			wantErr: "STORE must be",
		},
		{
			name:    "memory store in production",
			mutate:  func(c *Config) { c.Env = "production" },
			wantErr: "not allowed in production",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: "LOG_FORMAT must be",
		},
		{
			name: "weights not summing to one",
			mutate: func(c *Config) {
				c.RuleWeight = 0.5
				c.MLWeight = 0.6
			},
			wantErr: "must sum to 1.0",
		},
		{
			name:    "weight out of range",
			mutate:  func(c *Config) { c.RuleWeight = -0.1 },
			wantErr: "must be in [0,1]",
		},
		{
			name: "review threshold above block threshold",
			mutate: func(c *Config) {
				c.ReviewThreshold = 0.8
				c.BlockThreshold = 0.7
			},
			wantErr: "REVIEW_THRESHOLD < BLOCK_THRESHOLD",
		},
		{
			name: "kafka enabled without brokers",
			mutate: func(c *Config) {
				c.KafkaEnabled = true
				c.KafkaBrokers = nil
			},
			wantErr: "KAFKA_BROKERS is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "0.35")
	setEnv(t, "TEST_INVALID", "forty")

	assert.InDelta(t, 0.35, getEnvFloat("TEST_FLOAT", 0), 1e-9)
	assert.InDelta(t, 0.5, getEnvFloat("TEST_INVALID", 0.5), 1e-9)
}

func TestGetEnvList(t *testing.T) {
	setEnv(t, "TEST_LIST", " a, b ,,c ")

	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST", ""))
	assert.Equal(t, []string{"x", "y"}, getEnvList("NONEXISTENT_VAR", "x,y"))
}
