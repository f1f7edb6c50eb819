package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration (optional symbol-metadata cache)
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Metrics endpoint
	MetricsPort int

	// Pipeline configuration
	Pipeline PipelineConfig
}

// PipelineConfig holds the tunables shared by the daemons
type PipelineConfig struct {
	// Gap detection: relative close-to-close change that marks a bar as a gap
	GapThreshold float64

	// Broker fee as a fraction of notional
	FeeRate float64

	// Starting equity used to seed account_state when it is missing
	InitialEquity float64

	// History window handed to strategies (bars, oldest first)
	HistoryBars int

	// Per-tick batch caps
	SignalBatchSize int
	OrderBatchSize  int

	// Poll intervals
	AggregatorPoll time.Duration
	RunnerPoll     time.Duration
	EnginePoll     time.Duration
	BrokerPoll     time.Duration
	HealthPoll     time.Duration

	// Health thresholds
	HeartbeatTimeout time.Duration
	MinuteDataMaxLag time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		DatabaseHost:     getEnvOrDefault("PG_HOST", "127.0.0.1"),
		DatabasePort:     getEnvOrDefault("PG_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("PG_DBNAME", "stock_db"),
		DatabaseUser:     getEnvOrDefault("PG_USER", "postgres"),
		DatabasePassword: getEnvOrDefault("PG_PASSWORD", ""),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		MetricsPort: getEnvInt("METRICS_PORT", 8080),

		Pipeline: PipelineConfig{
			GapThreshold:  getEnvFloat("GAP_THRESHOLD", 0.20),
			FeeRate:       getEnvFloat("FEE_RATE", 0.0001),
			InitialEquity: getEnvFloat("INITIAL_EQUITY", 1000000),
			HistoryBars:   getEnvInt("HISTORY_BARS", 500),

			SignalBatchSize: getEnvInt("SIGNAL_BATCH_SIZE", 100),
			OrderBatchSize:  getEnvInt("ORDER_BATCH_SIZE", 100),

			AggregatorPoll: getEnvSeconds("AGGREGATOR_POLL_SECONDS", 3),
			RunnerPoll:     getEnvSeconds("RUNNER_POLL_SECONDS", 3),
			EnginePoll:     getEnvSeconds("ENGINE_POLL_SECONDS", 2),
			BrokerPoll:     getEnvSeconds("BROKER_POLL_SECONDS", 2),
			HealthPoll:     getEnvSeconds("HEALTH_POLL_SECONDS", 10),

			HeartbeatTimeout: getEnvSeconds("HEARTBEAT_TIMEOUT_SECONDS", 60),
			MinuteDataMaxLag: getEnvSeconds("MINUTE_DATA_MAX_LAG_SECONDS", 120),
		},
	}
}

// Validate checks configuration needed before any daemon can start
func (c *Config) Validate() error {
	if c.DatabaseHost == "" || c.DatabaseName == "" || c.DatabaseUser == "" {
		return fmt.Errorf("incomplete database configuration (PG_HOST/PG_DBNAME/PG_USER)")
	}
	if c.Pipeline.GapThreshold <= 0 || c.Pipeline.GapThreshold >= 1 {
		return fmt.Errorf("GAP_THRESHOLD must be in (0, 1), got %v", c.Pipeline.GapThreshold)
	}
	if c.Pipeline.HistoryBars <= 0 {
		return fmt.Errorf("HISTORY_BARS must be positive, got %d", c.Pipeline.HistoryBars)
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvSeconds gets environment variable as a whole number of seconds
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
