package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DatabaseURL  string
	DBMaxConns   int
	JWTSecret    string
	JWTTTL       time.Duration
	JWTRefresh   time.Duration
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	KafkaBrokers []string
	Location     *time.Location

	TripEnforceTransitions bool

	SentryDSN         string
	SentryEnvironment string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		DBMaxConns:             getEnvAsInt("DB_MAX_CONNS", 10),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		JWTTTL:                 time.Duration(getEnvAsInt("JWT_TTL", 60)) * time.Minute,
		JWTRefresh:             time.Duration(getEnvAsInt("JWT_REFRESH_TTL", 20160)) * time.Minute,
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPass:              getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvAsInt("REDIS_DB", 0),
		KafkaBrokers:           splitList(getEnv("KAFKA_BROKERS", "")),
		TripEnforceTransitions: getEnvAsBool("TRIP_ENFORCE_TRANSITIONS", false),
		SentryDSN:              getEnv("SENTRY_DSN", ""),
		SentryEnvironment:      getEnv("SENTRY_ENVIRONMENT", "development"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("JWT_TTL must be a positive number of minutes")
	}

	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
