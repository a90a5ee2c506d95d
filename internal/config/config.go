package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/classpace/entitlement-sync/internal/entitlement"
)

// Config holds all configuration for the entitlement sync service. Every
// credential is environment-injected; nothing is compiled in.
type Config struct {
	DataDir     string
	BindAddress string
	Port        int

	StripeSecretKey     string
	StripeWebhookSecret string

	DirectoryURL        string
	DirectoryServiceKey string
	DirectoryJWTSecret  string

	TeacherProductID string
	StudentProductID string
	DefaultTier      entitlement.Tier

	SyncInterval time.Duration // 0 disables the background batch loop
	CallTimeout  time.Duration // per external call

	LogFormat string
	LogLevel  string
}

// StoreDir returns the directory holding the entitlement store database.
func (c *Config) StoreDir() string {
	return c.DataDir
}

// Load reads configuration from environment variables. A .env file is loaded
// if present but not required. Missing credentials are fatal: the caller must
// abort before any reconciliation work.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("SYNC_PORT", 8787)
	if err != nil {
		return nil, err
	}
	syncInterval, err := envOrDefaultDuration("SYNC_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	callTimeout, err := envOrDefaultDuration("SYNC_CALL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:             envOrDefault("SYNC_DATA_DIR", "/data"),
		BindAddress:         envOrDefault("SYNC_BIND_ADDRESS", "0.0.0.0"),
		Port:                port,
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		DirectoryURL:        strings.TrimSpace(os.Getenv("DIRECTORY_URL")),
		DirectoryServiceKey: strings.TrimSpace(os.Getenv("DIRECTORY_SERVICE_KEY")),
		DirectoryJWTSecret:  strings.TrimSpace(os.Getenv("DIRECTORY_JWT_SECRET")),
		TeacherProductID:    strings.TrimSpace(os.Getenv("TEACHER_PRODUCT_ID")),
		StudentProductID:    strings.TrimSpace(os.Getenv("STUDENT_PRODUCT_ID")),
		DefaultTier:         entitlement.Tier(envOrDefault("DEFAULT_TIER", string(entitlement.TierTeacherPremium))),
		SyncInterval:        syncInterval,
		CallTimeout:         callTimeout,
		LogFormat:           envOrDefault("SYNC_LOG_FORMAT", "auto"),
		LogLevel:            envOrDefault("SYNC_LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.DirectoryURL == "" {
		missing = append(missing, "DIRECTORY_URL")
	}
	if c.DirectoryServiceKey == "" {
		missing = append(missing, "DIRECTORY_SERVICE_KEY")
	}
	if c.TeacherProductID == "" {
		missing = append(missing, "TEACHER_PRODUCT_ID")
	}
	if c.StudentProductID == "" {
		missing = append(missing, "STUDENT_PRODUCT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("SYNC_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if !c.DefaultTier.Valid() {
		return fmt.Errorf("DEFAULT_TIER must be one of %q or %q, got %q",
			entitlement.TierTeacherPremium, entitlement.TierStudentPremium, c.DefaultTier)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("SYNC_CALL_TIMEOUT must be greater than 0, got %s", c.CallTimeout)
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("SYNC_INTERVAL must not be negative, got %s", c.SyncInterval)
	}

	parsed, err := url.Parse(c.DirectoryURL)
	if err != nil {
		return fmt.Errorf("DIRECTORY_URL must be a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("DIRECTORY_URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("DIRECTORY_URL must include a host")
	}
	return nil
}

// ValidateServe checks the additional variables required by the HTTP server.
func (c *Config) ValidateServe() error {
	var missing []string
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.DirectoryJWTSecret == "" {
		missing = append(missing, "DIRECTORY_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
