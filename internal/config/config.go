package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"authcore/pkg/errors"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string
	FrontendURL    string

	// OAuth / OIDC provider settings
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string
	Scopes             []string
	IssuerURL          string
	ClockSkew          time.Duration
	StateTTL           time.Duration

	// Account-linking policy; ships off (see LinkByEmail docs on the
	// reconciler for the security rationale)
	LinkByEmail bool

	// Application session settings
	SessionSecret string
	SessionTTL    time.Duration

	DatabaseURL string
	RedisURL    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:5174")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		RedirectURL:        getEnv("REDIRECT_URL", ""),
		Scopes:             parseList(getEnv("OAUTH_SCOPES", "openid,email,profile")),
		IssuerURL:          getEnv("ISSUER_URL", "https://accounts.google.com"),
		ClockSkew:          getDurationEnv("CLOCK_SKEW_SECONDS", 300),
		StateTTL:           getDurationEnv("STATE_TTL_SECONDS", 600),

		LinkByEmail: getBoolEnv("LINK_BY_EMAIL", false),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getDurationEnv("SESSION_TTL_SECONDS", 86400),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
	}

	return cfg, nil
}

// Validate checks settings that must be correct before serving any login.
// Failures here are fatal at startup, never discovered per request.
func (c *Config) Validate() error {
	if c.GoogleClientID == "" {
		return errors.New(errors.ErrorTypeConfiguration, "GOOGLE_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		return errors.New(errors.ErrorTypeConfiguration, "GOOGLE_CLIENT_SECRET is required")
	}
	if c.RedirectURL == "" {
		return errors.New(errors.ErrorTypeConfiguration, "REDIRECT_URL is required")
	}
	if err := requireEncrypted("REDIRECT_URL", c.RedirectURL); err != nil {
		return err
	}
	if err := requireEncrypted("ISSUER_URL", c.IssuerURL); err != nil {
		return err
	}
	if c.SessionSecret == "" {
		return errors.New(errors.ErrorTypeConfiguration, "SESSION_SECRET is required")
	}
	if !containsScope(c.Scopes, "openid") {
		return errors.New(errors.ErrorTypeConfiguration, "OAUTH_SCOPES must include openid")
	}
	return nil
}

// requireEncrypted rejects plaintext endpoints. Localhost is exempt so
// the flow can run against a local fake provider during development.
func requireEncrypted(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeConfiguration, fmt.Sprintf("%s is not a valid URL", name), err)
	}
	if u.Scheme == "https" {
		return nil
	}
	if u.Scheme == "http" && (u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1") {
		return nil
	}
	return errors.New(errors.ErrorTypeConfiguration, fmt.Sprintf("%s must use https", name))
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseList parses a comma-separated value into a slice
func parseList(raw string) []string {
	if raw == "" {
		return []string{}
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv reads a duration configured as a number of seconds
func getDurationEnv(key string, fallbackSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return time.Duration(fallbackSeconds) * time.Second
}
