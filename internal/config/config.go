package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Outbound notification transport
	TransportBaseURL string
	TransportTimeout time.Duration

	// Job processing
	Workers            int
	RateLimit          int
	DefaultMaxAttempts int
	BackoffBase        time.Duration

	// Background poller intervals
	RetryInterval   time.Duration
	DelayedInterval time.Duration

	// Maintenance retention windows
	CompletedJobRetention    time.Duration
	StaleCartRetention       time.Duration
	ExpiredTokenGrace        time.Duration
	NotificationLogRetention time.Duration

	// Maintenance cron schedules
	JobPurgeSchedule        string
	StaleCartSchedule       string
	ExpiredTokenSchedule    string
	NotificationLogSchedule string

	// Comprehensive cleanup: a weekly RunAll pass on top of the per-task
	// schedules. Off by default.
	EnableComprehensiveCleanup   bool
	ComprehensiveCleanupSchedule string
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		TransportBaseURL: getEnv("TRANSPORT_BASE_URL", "http://localhost:9090"),
		TransportTimeout: getDuration("TRANSPORT_TIMEOUT", 10*time.Second),

		Workers:            getInt("WORKERS", 5),
		RateLimit:          getInt("RATE_LIMIT_PER_JOB_TYPE", 100),
		DefaultMaxAttempts: getInt("DEFAULT_MAX_ATTEMPTS", 3),
		BackoffBase:        getDuration("BACKOFF_BASE", 5*time.Second),

		RetryInterval:   getDuration("RETRY_INTERVAL", 10*time.Second),
		DelayedInterval: getDuration("DELAYED_INTERVAL", 5*time.Second),

		CompletedJobRetention:    getDuration("COMPLETED_JOB_RETENTION", 24*time.Hour),
		StaleCartRetention:       getDuration("STALE_CART_RETENTION", 30*24*time.Hour),
		ExpiredTokenGrace:        getDuration("EXPIRED_TOKEN_GRACE", 24*time.Hour),
		NotificationLogRetention: getDuration("NOTIFICATION_LOG_RETENTION", 90*24*time.Hour),

		JobPurgeSchedule:        getEnv("JOB_PURGE_SCHEDULE", "15 3 * * *"),
		StaleCartSchedule:       getEnv("STALE_CART_SCHEDULE", "0 3 * * *"),
		ExpiredTokenSchedule:    getEnv("EXPIRED_TOKEN_SCHEDULE", "30 3 * * *"),
		NotificationLogSchedule: getEnv("NOTIFICATION_LOG_SCHEDULE", "0 4 * * 0"),

		EnableComprehensiveCleanup:   getBool("ENABLE_COMPREHENSIVE_CLEANUP", false),
		ComprehensiveCleanupSchedule: getEnv("COMPREHENSIVE_CLEANUP_SCHEDULE", "0 5 * * 0"),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
