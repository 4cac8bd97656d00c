// Package config provides centralized default values for BotForge
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Println("Loading configuration overrides from .env file...")
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if valStr := os.Getenv(key); valStr != "" {
		parts := strings.Split(valStr, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			log.Printf("Config override: %s=%v (default: %v)", key, out, defaultValue)
			return out
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	DashboardOrigins   []string

	// Cache Configuration
	MaxTenants           int
	MaxSessionsPerTenant int
	CacheBackend         string // "memory" or "redis"
	RedisURL             string

	// Database Pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration

	// Session lifecycle
	SessionCacheTTL       time.Duration
	SessionRetention      time.Duration
	SessionCriticalStates []string

	// Group lifecycle
	GroupMaxSize          int
	GroupsPerBotCap       int
	GroupInactivityWindow time.Duration

	// Engine
	WebhookDefaultTimeout time.Duration
	WebhookRetryBackoff   time.Duration
	BroadcastActivityDays int

	// Action dispatcher
	DispatchQueueSize int
	DispatchWorkers   int

	// Cleanup Intervals
	CleanupInterval time.Duration
	CleanupVerbose  bool

	// Ops monitoring
	OpsTickInterval time.Duration
	OpsJWTSecret    string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	DashboardOrigins = getEnvStringSlice("DASHBOARD_ORIGINS", []string{
		"http://localhost:3000", "http://localhost:5173",
		"http://127.0.0.1:3000", "http://127.0.0.1:5173",
		"http://[::1]:3000", "http://[::1]:5173",
	})

	// Memory Management
	MaxTenants = getEnvInt("MAX_TENANTS", 5)
	MaxSessionsPerTenant = getEnvInt("MAX_SESSIONS_PER_TENANT", 50000)
	CacheBackend = getEnvString("CACHE_BACKEND", "memory")
	RedisURL = getEnvString("REDIS_URL", "")

	// Database Pool
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 500*time.Millisecond)

	// Session lifecycle. The cache TTL is deliberately long: sessions stay
	// warm while referenced and the sweep handles the retention horizon.
	SessionCacheTTL = getEnvDuration("SESSION_CACHE_TTL", 365*24*time.Hour)
	SessionRetention = getEnvDuration("SESSION_RETENTION", 365*24*time.Hour)
	SessionCriticalStates = getEnvStringSlice("SESSION_CRITICAL_STATES",
		[]string{"game_started", "auction_active", "awaiting_players", "payment_required"})

	// Group lifecycle
	GroupMaxSize = getEnvInt("GROUP_MAX_SIZE", 10000)
	GroupsPerBotCap = getEnvInt("GROUPS_PER_BOT_CAP", 1000)
	GroupInactivityWindow = getEnvDuration("GROUP_INACTIVITY_WINDOW", 7*24*time.Hour)

	// Engine
	WebhookDefaultTimeout = getEnvDuration("WEBHOOK_DEFAULT_TIMEOUT", 10*time.Second)
	WebhookRetryBackoff = getEnvDuration("WEBHOOK_RETRY_BACKOFF", 250*time.Millisecond)
	BroadcastActivityDays = getEnvInt("BROADCAST_ACTIVITY_DAYS", 30)

	// Action dispatcher
	DispatchQueueSize = getEnvInt("DISPATCH_QUEUE_SIZE", 4096)
	DispatchWorkers = getEnvInt("DISPATCH_WORKERS", 4)

	// Cleanup Intervals
	CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 30*time.Minute)
	CleanupVerbose = getEnvBool("CLEANUP_VERBOSE", true)

	// Ops monitoring
	OpsTickInterval = getEnvDuration("OPS_TICK_INTERVAL", 2*time.Second)
	OpsJWTSecret = getEnvString("OPS_JWT_SECRET", "")
}
