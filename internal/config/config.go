// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/commerce-engine/internal/domain"
	"github.com/joho/godotenv"
)

const (
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	Port             string
	LogMode          string
	SessionBackend   string
	SessionTTL       time.Duration
	RedisAddr        string
	RedisPassword    string
	MongoURI         string
	MongoDBName      string
	CatalogDBPath    string
	CatalogCacheSize int
	CatalogCacheTTL  time.Duration
	KafkaBrokers     []string
	DefaultCurrency  domain.Currency

	// MaxQuantityPerItem caps a single cart line; 0 disables the cap.
	MaxQuantityPerItem uint32

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

// Load reads envFile if it exists, then the environment. Variables already
// set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Port:           getEnv("CART_SERVICE_PORT", "50052"),
		LogMode:        getEnv("LOG_MODE", "dev"),
		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", BackendRedis)),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:    getEnv("MONGO_DB_NAME", "cartdb"),
		CatalogDBPath:  getEnv("CATALOG_DB_PATH", "catalog.db"),
		OtelEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CatalogCacheTTL, err = getDuration("CATALOG_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CatalogCacheSize, err = getInt("CATALOG_CACHE_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.OtelEnabled, err = getBool("OTEL_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OtelInsecure, err = getBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, err
	}
	if cfg.OtelSampleRatio, err = getFloat("OTEL_SAMPLER_RATIO", 1); err != nil {
		return nil, err
	}
	maxQty, err := getInt("MAX_QUANTITY_PER_ITEM", 9999)
	if err != nil {
		return nil, err
	}
	if maxQty < 0 || int64(maxQty) > math.MaxUint32 {
		return nil, fmt.Errorf("MAX_QUANTITY_PER_ITEM: %d out of range", maxQty)
	}
	cfg.MaxQuantityPerItem = uint32(maxQty)
	if cfg.DefaultCurrency, err = domain.ParseCurrency(getEnv("DEFAULT_CURRENCY", "USD")); err != nil {
		return nil, fmt.Errorf("DEFAULT_CURRENCY: %w", err)
	}

	for _, b := range strings.Split(getEnv("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	switch cfg.SessionBackend {
	case BackendRedis, BackendMongo, BackendMemory:
	default:
		return nil, fmt.Errorf("SESSION_BACKEND: unknown backend %q", cfg.SessionBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
