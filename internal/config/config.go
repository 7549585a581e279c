package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Identity provider
	JWTSecret          string
	IdentityURL        string
	IdentityServiceKey string
	CallerCacheTTL     time.Duration

	// Recording storage
	GCSBucket        string
	GCSPublicBaseURL string
	UploadMaxBytes   int64
	UploadTimeout    time.Duration

	// Reporting
	ReportLocation *time.Location
	SessionMaxAge  time.Duration

	// Anomaly digest
	AnomalyDigestInterval time.Duration
	SMTPHost              string
	SMTPPort              string
	SMTPUser              string
	SMTPPass              string
	SMTPFrom              string

	// Tracing
	OTLPEndpoint string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:     getEnvOrDefault("PORT", "8080"),
		Env:      getEnvOrDefault("ENV", "development"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),

		JWTSecret:          mustGetEnv("JWT_SECRET"),
		IdentityURL:        getEnvOrDefault("IDENTITY_URL", ""),
		IdentityServiceKey: getEnvOrDefault("IDENTITY_SERVICE_KEY", ""),
		CallerCacheTTL:     time.Duration(getEnvAsIntOrDefault("CALLER_CACHE_SECONDS", 60)) * time.Second,

		GCSBucket:        getEnvOrDefault("GCS_BUCKET", "recordings"),
		GCSPublicBaseURL: getEnvOrDefault("GCS_PUBLIC_BASE_URL", ""),
		UploadMaxBytes:   int64(getEnvAsIntOrDefault("UPLOAD_MAX_MB", 100)) * 1024 * 1024,
		UploadTimeout:    time.Duration(getEnvAsIntOrDefault("UPLOAD_TIMEOUT_SECONDS", 60)) * time.Second,

		ReportLocation: getLocationOrDefault("REPORT_TIMEZONE", time.UTC),
		SessionMaxAge:  time.Duration(getEnvAsIntOrDefault("SESSION_MAX_AGE_HOURS", 24)) * time.Hour,

		AnomalyDigestInterval: time.Duration(getEnvAsIntOrDefault("ANOMALY_DIGEST_HOURS", 24)) * time.Hour,
		SMTPHost:              getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:              getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:              getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:              getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:              getEnvOrDefault("SMTP_FROM", "reports@callinsight.app"),

		OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getLocationOrDefault(key string, defaultLoc *time.Location) *time.Location {
	val := os.Getenv(key)
	if val == "" {
		return defaultLoc
	}
	loc, err := time.LoadLocation(val)
	if err != nil {
		return defaultLoc
	}
	return loc
}
