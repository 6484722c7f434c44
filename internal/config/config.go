package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port                 string
	StoreDriver          string
	DatabaseURL          string
	JWTSecret            string
	JWTIssuer            string
	TokenTTL             time.Duration
	BcryptCost           int
	UploadPath           string
	MaxUploadBytes       int64
	CorsOrigins          []string
	TrustedProxies       []string
	RateLimitBackend     string
	RedisAddr            string
	RateLimitPerMin      int
	ReconcileSchedule    string
	MetricsSampleSeconds int
	MetricsDiskPath      string
	LogDir               string
	LogRetentionDays     int
}

func Load() Config {
	cfg := Config{
		Port:                 envOr("PORT", "5000"),
		StoreDriver:          strings.ToLower(envOr("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:          envOr("DATABASE_URL", ""),
		JWTSecret:            mustEnv("JWT_SECRET"),
		JWTIssuer:            envOr("JWT_ISSUER", "collegehub"),
		TokenTTL:             envOrDuration("TOKEN_TTL", 24*time.Hour),
		BcryptCost:           envOrInt("BCRYPT_COST", 10),
		UploadPath:           envOr("UPLOAD_PATH", "uploads"),
		MaxUploadBytes:       int64(envOrInt("MAX_UPLOAD_MB", 10)) << 20,
		CorsOrigins:          parseCSV(envOr("CORS_ORIGINS", "")),
		TrustedProxies:       parseCSV(envOr("TRUSTED_PROXIES", "")),
		RateLimitBackend:     strings.ToLower(envOr("RATE_LIMIT_BACKEND", RateLimitMemory)),
		RedisAddr:            envOr("REDIS_ADDR", "localhost:6379"),
		RateLimitPerMin:      envOrInt("RATE_LIMIT_PER_MIN", 30),
		ReconcileSchedule:    envRaw("RECONCILE_SCHEDULE", "0 3 * * *"),
		MetricsSampleSeconds: envOrInt("METRICS_SAMPLE_INTERVAL", 15),
		MetricsDiskPath:      envOr("METRICS_DISK_PATH", "."),
		LogDir:               envOr("LOG_DIR", "storage/logs"),
		LogRetentionDays:     envOrInt("LOG_RETENTION_DAYS", 7),
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DatabaseURL == "" {
		panic("missing env var: DATABASE_URL (required when STORE_DRIVER=postgres)")
	}
	return cfg
}

func mustEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		panic("missing env var: " + key)
	}
	return value
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// envRaw distinguishes an unset variable from one explicitly set to empty.
func envRaw(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(value)
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
		return fallback
	}
	return parsed
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
