// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Config holds configuration knobs for the HTTP server, storage, checkout and relay.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	StoreBackend    string
	MongoURI        string
	MongoDatabase   string
	PostgresURL     string
	CatalogSeedFile string

	RedisAddr     string
	OrderCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	CheckoutMaxAttempts int
	CheckoutBackoff     time.Duration
	CheckoutTimeout     time.Duration

	RelayWorkers       int
	RelayBuffer        int
	RelayMaxAttempts   int
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

func listenv(key string) []string {
	var out []string
	for _, part := range strings.Split(getenv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load collects configuration from environment with defaults.
func Load() Config {
	attempts := atoienv("CHECKOUT_MAX_ATTEMPTS", 3)
	if attempts < 1 {
		attempts = 1
	}
	workers := atoienv("RELAY_WORKERS", 2)
	if workers < 1 {
		workers = 1
	}
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
		LogLevel:        strings.ToLower(getenv("LOG_LEVEL", "info")),

		StoreBackend:    strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		MongoURI:        getenv("MONGO_URI", ""),
		MongoDatabase:   getenv("MONGO_DATABASE", "checkout"),
		PostgresURL:     getenv("POSTGRES_URL", ""),
		CatalogSeedFile: getenv("CATALOG_SEED_FILE", ""),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		OrderCacheTTL: durenvs("ORDER_CACHE_TTL", 900),

		KafkaBrokers: listenv("KAFKA_BROKERS"),
		KafkaTopic:   getenv("KAFKA_TOPIC", "orders.placed"),

		CheckoutMaxAttempts: attempts,
		CheckoutBackoff:     durenvms("CHECKOUT_BACKOFF_MS", 25),
		CheckoutTimeout:     durenvms("CHECKOUT_TIMEOUT_MS", 5000),

		RelayWorkers:       workers,
		RelayBuffer:        atoienv("RELAY_BUFFER", 128),
		RelayMaxAttempts:   atoienv("RELAY_MAX_ATTEMPTS", 5),
		BreakerMaxFailures: atoienv("BREAKER_MAX_FAILURES", 5),
		BreakerOpenTimeout: durenvs("BREAKER_OPEN_TIMEOUT", 30),
	}
}
