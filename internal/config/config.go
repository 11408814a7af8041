// Package config provides configuration loading for the DID service. It
// handles environment variable parsing and provides default values for all
// settings.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package
// initialization. godotenv.Load does not override already-set variables, so
// OS env > .env > .env.local precedence holds; production deployments rely
// only on the process environment.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the DID service.
type Config struct {
	Env             string        // Deployment environment (dev, staging, prod)
	Address         string        // HTTP server address (e.g., ":8080")
	MetricsAddress  string        // Metrics server address (e.g., ":9090")
	RegistryBackend string        // Registry backend (memory, postgres)
	DatabaseDSN     string        // PostgreSQL connection string
	WebDomain       string        // Domain this service hosts did:web documents for ("" disables hosting)
	WebTimeout      time.Duration // did:web fetch timeout
	WebCacheTTL     time.Duration // did:web result cache TTL
	AuthPublicKey   []byte        // Ed25519 public key validating bearer JWTs on mutations (nil disables auth)
	AuthAudience    string        // Expected audience for bearer JWTs
}

const (
	defaultAddress        = ":8080"
	defaultMetricsAddress = ":9090"
	defaultAudience       = "registryaccord-did"
	defaultWebTimeout     = 10 * time.Second
	defaultWebCacheTTL    = 5 * time.Minute
)

// Load reads environment variables and produces a Config suitable for
// wiring the service. Only the Postgres DSN is conditionally required: it
// must be set when DID_REGISTRY_BACKEND=postgres.
func Load() (Config, error) {
	cfg := Config{
		Env:             getEnv("DID_ENV", "dev"),
		Address:         getEnv("DID_HTTP_ADDR", defaultAddress),
		MetricsAddress:  getEnv("DID_METRICS_ADDR", defaultMetricsAddress),
		RegistryBackend: strings.ToLower(getEnv("DID_REGISTRY_BACKEND", "memory")),
		WebDomain:       os.Getenv("DID_WEB_DOMAIN"),
		AuthAudience:    getEnv("DID_AUTH_AUD", defaultAudience),
	}

	if dsn, exists := os.LookupEnv("DID_DB_DSN"); exists {
		cfg.DatabaseDSN = dsn
	}
	switch cfg.RegistryBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return Config{}, errors.New("DID_DB_DSN is required when DID_REGISTRY_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown DID_REGISTRY_BACKEND %q", cfg.RegistryBackend)
	}

	if raw, exists := os.LookupEnv("DID_WEB_TIMEOUT_SECONDS"); exists {
		d, err := parseSeconds(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DID_WEB_TIMEOUT_SECONDS: %w", err)
		}
		cfg.WebTimeout = d
	} else {
		cfg.WebTimeout = defaultWebTimeout
	}

	if raw, exists := os.LookupEnv("DID_WEB_CACHE_TTL_SECONDS"); exists {
		d, err := parseSeconds(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DID_WEB_CACHE_TTL_SECONDS: %w", err)
		}
		cfg.WebCacheTTL = d
	} else {
		cfg.WebCacheTTL = defaultWebCacheTTL
	}

	// Bearer auth on mutating routes is opt-in: absent key, routes are open.
	if raw, exists := os.LookupEnv("DID_AUTH_PUBLIC_KEY"); exists {
		keyBytes, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DID_AUTH_PUBLIC_KEY base64: %w", err)
		}
		cfg.AuthPublicKey = keyBytes
	}

	return cfg, nil
}

// getEnv retrieves an environment variable, returning fallback when unset
// or empty.
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// parseSeconds converts a string count of seconds to a time.Duration.
// Returns an error unless the value is a positive integer.
func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, errors.New("value must be > 0")
	}
	return time.Duration(seconds) * time.Second, nil
}
