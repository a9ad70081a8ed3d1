package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseFile       string // Optional: path to SQLite database file (default: ./pushmfa.db)
	StageMode          string // Optional: item matching mode of the default stage (default: number_matching_3)
	FCMCredentialsFile string // Optional: path to the FCM service-account JSON; push delivery is disabled when unset
	BrandTitle         string // Optional: brand name shown in notification titles (default: PushMFA)
	Domain             string // Optional: domain shown in notification bodies

	PollInterval   time.Duration // Optional: fallback re-read interval while waiting (default: 1s)
	MaxChecks      int           // Optional: number of intervals before an attempt times out (default: 30)
	DeviceTokenTTL time.Duration // Optional: lifetime of minted device tokens (default: 24h)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile:       getEnvOrDefault("PUSHMFA_DATABASE_FILE", "pushmfa.db"),
		StageMode:          getEnvOrDefault("PUSHMFA_STAGE_MODE", "number_matching_3"),
		FCMCredentialsFile: os.Getenv("PUSHMFA_FCM_CREDENTIALS_FILE"),
		BrandTitle:         getEnvOrDefault("PUSHMFA_BRAND_TITLE", "PushMFA"),
		Domain:             os.Getenv("PUSHMFA_DOMAIN"),

		PollInterval:   getEnvDurationOrDefault("PUSHMFA_POLL_INTERVAL", time.Second),
		MaxChecks:      getEnvIntOrDefault("PUSHMFA_MAX_CHECKS", 30),
		DeviceTokenTTL: getEnvDurationOrDefault("PUSHMFA_DEVICE_TOKEN_TTL", 24*time.Hour),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
