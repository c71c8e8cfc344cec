package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=wholesale port=5432 sslmode=disable"

type Config struct {
	HTTPPort           string
	DatabaseDSN        string
	JWTSecret          string
	CORSOrigins        string
	RedisAddress       string // empty disables idempotency keys
	LogLevel           string
	DefaultPhoneRegion string // region used to parse customer phone numbers without a country prefix
}

func Load() *Config {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:        getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSOrigins:        getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		RedisAddress:       getEnv("REDIS_ADDRESS", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DefaultPhoneRegion: getEnv("DEFAULT_PHONE_REGION", "US"),
	}

	SetLogLevel(cfg.LogLevel)
	logger := GetLogger()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if cfg.DatabaseDSN == defaultDSN {
		logger.Warn("DATABASE_DSN uses the default value, set your own Postgres connection for production")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		logger.Warn("CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production")
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT is empty")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
