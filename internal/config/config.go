package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort              = "8080"
	defaultDatabaseURL       = "estatecollab.db"
	defaultJWTSecret         = "change-me-jwt-secret"
	defaultJWTTTL            = "24h"
	defaultEmailFrom         = "EstateCollab <notifications@estatecollab.local>"
	defaultActiveEdits       = "true"
	defaultRelayPollInterval = "2s"
	defaultRelayBatchSize    = "100"
	defaultDigestInterval    = "15m"
	defaultDigestDelay       = "1h"
	defaultPurgeAfter        = "720h"
	defaultCleanupInterval   = "24h"
	defaultPublicBaseURL     = "http://localhost:5173"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	JWTSecret string
	JWTTTL    time.Duration

	// Optional. Without it pushes fan out through the in-process hub only.
	RedisURL string

	// Optional. Without it the unread digest job is not started.
	ResendAPIKey  string
	EmailFrom     string
	PublicBaseURL string

	ProgressStepsFile        string
	AllowActiveContractEdits bool

	RelayPollInterval time.Duration
	RelayBatchSize    int

	DigestInterval time.Duration
	DigestDelay    time.Duration

	NotificationPurgeAfter time.Duration
	CleanupInterval        time.Duration

	CORSAllowedOrigins []string
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.Port = strings.TrimSpace(getEnv("PORT", defaultPort))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.ResendAPIKey = strings.TrimSpace(os.Getenv("RESEND_API_KEY"))
	cfg.EmailFrom = strings.TrimSpace(getEnv("EMAIL_FROM", defaultEmailFrom))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL)), "/")
	cfg.ProgressStepsFile = strings.TrimSpace(os.Getenv("PROGRESS_STEPS_FILE"))
	cfg.AllowActiveContractEdits = parseBoolEnv("ALLOW_ACTIVE_CONTRACT_EDITS", defaultActiveEdits)

	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL); err != nil {
		return nil, err
	}
	if cfg.RelayPollInterval, err = parseDurationEnv("RELAY_POLL_INTERVAL", defaultRelayPollInterval); err != nil {
		return nil, err
	}
	if cfg.RelayBatchSize, err = parseIntEnv("RELAY_BATCH_SIZE", defaultRelayBatchSize); err != nil {
		return nil, err
	}
	if cfg.DigestInterval, err = parseDurationEnv("DIGEST_INTERVAL", defaultDigestInterval); err != nil {
		return nil, err
	}
	if cfg.DigestDelay, err = parseDurationEnv("DIGEST_DELAY", defaultDigestDelay); err != nil {
		return nil, err
	}
	if cfg.NotificationPurgeAfter, err = parseDurationEnv("NOTIFICATION_PURGE_AFTER", defaultPurgeAfter); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = parseDurationEnv("CLEANUP_INTERVAL", defaultCleanupInterval); err != nil {
		return nil, err
	}

	if extra := os.Getenv("CORS_ALLOWED_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log.Printf("config loaded: env=%s port=%s redis=%t digest=%t active_contract_edits=%t",
		cfg.AppEnv, cfg.Port, cfg.RedisURL != "", cfg.ResendAPIKey != "", cfg.AllowActiveContractEdits)

	return cfg, nil
}

// IsProduction reports whether strict validation applies.
func (c *Config) IsProduction() bool {
	return isProdLike(c.AppEnv)
}

func validateConfig(cfg *Config) error {
	if cfg.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.RelayPollInterval <= 0 {
		return fmt.Errorf("RELAY_POLL_INTERVAL must be > 0")
	}
	if cfg.RelayBatchSize <= 0 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be > 0")
	}
	if cfg.DigestInterval <= 0 || cfg.DigestDelay <= 0 {
		return fmt.Errorf("DIGEST_INTERVAL and DIGEST_DELAY must be > 0")
	}
	if cfg.NotificationPurgeAfter <= 0 || cfg.CleanupInterval <= 0 {
		return fmt.Errorf("NOTIFICATION_PURGE_AFTER and CLEANUP_INTERVAL must be > 0")
	}
	if cfg.ResendAPIKey != "" && cfg.EmailFrom == "" {
		return fmt.Errorf("EMAIL_FROM must be set when RESEND_API_KEY is set")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if !strings.HasPrefix(cfg.DatabaseURL, "postgres://") && !strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
			return fmt.Errorf("in prod/release DATABASE_URL must point to PostgreSQL")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
