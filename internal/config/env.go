package config

import (
	"os"
	"strconv"
)

// EnvConfig holds process configuration for the headless harness.
type EnvConfig struct {
	Redis RedisConfig
	DND5E DND5EConfig
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// DND5EConfig holds D&D 5e API configuration
type DND5EConfig struct {
	BaseURL string
}

// LoadEnv loads harness configuration from environment variables. Nothing is
// required: without REDIS_URL or REDIS_ADDR the harness runs on the
// in-memory host. REDIS_URL wins when both are set.
func LoadEnv() *EnvConfig {
	return &EnvConfig{
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsIntOrDefault("REDIS_DB", 0),
		},
		DND5E: DND5EConfig{
			BaseURL: os.Getenv("DND5E_API_URL"),
		},
	}
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
