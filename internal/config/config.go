// Package config provides configuration loading and management for the gift
// service. It handles environment variable parsing and provides default
// values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// In development, it loads .env and .env.local files if they exist.
// In production, it relies solely on system environment variables.
// The loading order ensures that system environment variables take precedence over .env files.
func init() {
	// godotenv.Load() does not override already-set environment variables,
	// preserving OS env > .env precedence

	// Load .env file if it exists (for shared development config)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Load .env.local if it exists (for local overrides, gitignored)
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the gift service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // Database connection string (PostgreSQL); empty selects the in-memory store
	NATSURL     string // NATS server URL for lifecycle events
	S3Endpoint  string // S3-compatible asset store endpoint
	S3Region    string // S3 region
	S3Bucket    string // S3 bucket name
	S3AccessKey string // S3 access key
	S3SecretKey string // S3 secret key
	JWTIssuer   string // Expected issuer for JWT validation
	JWTAudience string // Expected audience for JWT validation
	AuthURL     string // Auth service URL for user directory lookups

	// Access token codec
	EncryptionSecret string // Secret keying the share-link token codec

	// Notification settings
	SMTPHost    string // SMTP relay host; empty disables email
	SMTPPort    int    // SMTP relay port
	SMTPUser    string // SMTP username
	SMTPPass    string // SMTP password
	SMTPFrom    string // From address on outbound mail
	LinkBaseURL string // Public frontend origin used in share links
}

// Default configuration values used when environment variables are not set
const (
	defaultPort     = "8080"
	defaultS3Region = "us-east-1"
	defaultEnv      = "dev"
	defaultSMTPPort = 587
	defaultLinkBase = "http://localhost:5173"
)

// Load reads environment variables and produces a Config suitable for
// wiring the service. Returns an error if required parameters are missing.
func Load() (Config, error) {
	cfg := Config{
		Env:         getEnv("GIFT_ENV", defaultEnv),
		Port:        getEnv("GIFT_PORT", defaultPort),
		S3Region:    getEnv("GIFT_S3_REGION", defaultS3Region),
		LinkBaseURL: getEnv("GIFT_LINK_BASE_URL", defaultLinkBase),
	}

	// Optional backends; absent values select the in-process fallbacks.
	cfg.DatabaseDSN = os.Getenv("GIFT_DB_DSN")
	cfg.NATSURL = os.Getenv("GIFT_NATS_URL")
	cfg.S3Endpoint = os.Getenv("GIFT_S3_ENDPOINT")
	cfg.S3Bucket = os.Getenv("GIFT_S3_BUCKET")
	cfg.S3AccessKey = os.Getenv("GIFT_S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("GIFT_S3_SECRET_KEY")
	cfg.AuthURL = os.Getenv("GIFT_AUTH_URL")

	cfg.JWTIssuer = os.Getenv("GIFT_JWT_ISSUER")
	cfg.JWTAudience = os.Getenv("GIFT_JWT_AUDIENCE")

	// The codec falls back to a derived development key when unset; the
	// warning is emitted where the codec is built.
	cfg.EncryptionSecret = os.Getenv("GIFT_ENCRYPTION_SECRET")

	cfg.SMTPHost = os.Getenv("GIFT_SMTP_HOST")
	cfg.SMTPPort = defaultSMTPPort
	if port, exists := os.LookupEnv("GIFT_SMTP_PORT"); exists {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.SMTPPort = p
		}
	}
	cfg.SMTPUser = os.Getenv("GIFT_SMTP_USER")
	cfg.SMTPPass = os.Getenv("GIFT_SMTP_PASS")
	cfg.SMTPFrom = getEnv("GIFT_SMTP_FROM", cfg.SMTPUser)

	// Validate required parameters
	if cfg.JWTIssuer == "" {
		return cfg, fmt.Errorf("GIFT_JWT_ISSUER is required")
	}

	if cfg.JWTAudience == "" {
		return cfg, fmt.Errorf("GIFT_JWT_AUDIENCE is required")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}
