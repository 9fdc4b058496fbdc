// config.go
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	MongoURI    string
	MongoDBName string
	RabbitURL   string
	RedisAddr   string
	AuthURL     string
	CarrierURL  string
	Port        string
	LogLevel    string

	// Display order ids read "<prefix>-YYMMDD-<seq>".
	OrderIDPrefix string

	// Risk gate: COD orders above this total (paise) are flagged.
	CODThresholdPaise int64

	// Webhook retry ledger.
	WebhookMaxRetries   int
	WebhookRetryBase    time.Duration
	WebhookApplyTimeout time.Duration
	RetrySweepSpec      string // cron spec with seconds field

	// Inbound webhook rate limit (per source IP).
	WebhookRateLimit  int
	WebhookRateWindow time.Duration
}

func Load() *Config {
	return &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "order_fulfillment_db"),
		RabbitURL:   getEnv("RABBIT_URL", "amqp://localhost"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		AuthURL:     getEnv("AUTH_URL", "http://localhost:3000"),
		CarrierURL:  getEnv("CARRIER_URL", "http://localhost:3005"),
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		OrderIDPrefix:     getEnv("ORDER_ID_PREFIX", "ORD"),
		CODThresholdPaise: getEnvInt64("RISK_COD_THRESHOLD_PAISE", 5_000_000),

		WebhookMaxRetries:   getEnvInt("WEBHOOK_MAX_RETRIES", 5),
		WebhookRetryBase:    getEnvDuration("WEBHOOK_RETRY_BASE", 30*time.Second),
		WebhookApplyTimeout: getEnvDuration("WEBHOOK_APPLY_TIMEOUT", 5*time.Second),
		RetrySweepSpec:      getEnv("WEBHOOK_RETRY_SWEEP_SPEC", "*/30 * * * * *"),

		WebhookRateLimit:  getEnvInt("WEBHOOK_RATE_LIMIT", 60),
		WebhookRateWindow: getEnvDuration("WEBHOOK_RATE_WINDOW", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
