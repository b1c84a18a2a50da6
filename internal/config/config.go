package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var envBindings = map[string]string{
	"server.port": "PORT",

	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key":   "JWT_SECRET_KEY",
	"jwt.expiry_hours": "JWT_EXPIRY_HOURS",

	"argon2.time":        "ARGON2_TIME",
	"argon2.memory":      "ARGON2_MEMORY",
	"argon2.threads":     "ARGON2_THREADS",
	"argon2.key_length":  "ARGON2_KEY_LENGTH",
	"argon2.salt_length": "ARGON2_SALT_LENGTH",

	"ledger.retry_attempts": "LEDGER_RETRY_ATTEMPTS",
	"ledger.retry_backoff":  "LEDGER_RETRY_BACKOFF",
	"ledger.max_adjustment": "LEDGER_MAX_ADJUSTMENT",
	"activity.max_reward":   "ACTIVITY_MAX_REWARD",
	"catalog.cache_ttl":     "CATALOG_CACHE_TTL",
	"voucher.ttl":           "VOUCHER_TTL",
}

// Init reads an optional env file and binds every known key to its
// environment variable. Environment variables win over the file.
func Init(envFile string) {
	viper.SetConfigFile(envFile)
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
		return
	}

	// Env files are read with flat upper-case keys; lift them onto the
	// dotted keys unless the real environment already provides a value.
	for key, env := range envBindings {
		fileKey := strings.ToLower(env)
		if _, ok := os.LookupEnv(env); ok || !viper.InConfig(fileKey) {
			continue
		}
		viper.Set(key, viper.Get(fileKey))
	}
}

// SetDefaults registers defaults for application keys. Database and
// Redis defaults live with their connectors.
func SetDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
	viper.SetDefault("ledger.retry_attempts", 3)
	viper.SetDefault("ledger.retry_backoff", 50*time.Millisecond)
	viper.SetDefault("ledger.max_adjustment", 1000)
	viper.SetDefault("activity.max_reward", 100)
	viper.SetDefault("catalog.cache_ttl", 5*time.Minute)
	viper.SetDefault("voucher.ttl", 15*time.Minute)
}

// LedgerConfig tunes the coin workflow.
type LedgerConfig struct {
	RetryAttempts int
	RetryBackoff  time.Duration
	MaxAdjustment int64
}

func LoadLedgerConfig() *LedgerConfig {
	SetDefaults()
	attempts := viper.GetInt("ledger.retry_attempts")
	if attempts < 1 {
		attempts = 1
	}
	return &LedgerConfig{
		RetryAttempts: attempts,
		RetryBackoff:  viper.GetDuration("ledger.retry_backoff"),
		MaxAdjustment: viper.GetInt64("ledger.max_adjustment"),
	}
}

// ActivityConfig bounds activity assignment input.
type ActivityConfig struct {
	MaxReward int64
}

func LoadActivityConfig() *ActivityConfig {
	SetDefaults()
	return &ActivityConfig{
		MaxReward: viper.GetInt64("activity.max_reward"),
	}
}

// CatalogConfig controls reward catalog caching and voucher lifetime.
type CatalogConfig struct {
	CacheTTL   time.Duration
	VoucherTTL time.Duration
}

func LoadCatalogConfig() *CatalogConfig {
	SetDefaults()
	return &CatalogConfig{
		CacheTTL:   viper.GetDuration("catalog.cache_ttl"),
		VoucherTTL: viper.GetDuration("voucher.ttl"),
	}
}
