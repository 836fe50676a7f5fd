package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultTestBackendURL = "http://localhost:54321"
	defaultTestBackendKey = "test-anon-key"
)

type Config struct {
	DBFile           string
	AdminAddr        string
	APIAddr          string
	BaseURL          string
	BackendURL       string
	BackendKey       string
	BackendJWTSecret string
	AuthSecret       string
	SessionTTL       time.Duration
	CORSOrigins      []string
	AdminUser        string
	AdminPassword    string
}

// Load reads the configuration from the environment.
// A .env file in the working directory is applied first, without
// overriding variables that are already set.
func Load(cliMode bool) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}

	sessionTTL, err := time.ParseDuration(getEnv("SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}

	cfg := &Config{
		DBFile:           getEnv("CONVERSA_DB", "conversa.db"),
		AdminAddr:        getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:          getEnv("API_ADDR", ":8080"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		BackendURL:       strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
		BackendKey:       os.Getenv("BACKEND_KEY"),
		BackendJWTSecret: os.Getenv("BACKEND_JWT_SECRET"),
		AuthSecret:       os.Getenv("AUTH_SECRET"),
		SessionTTL:       sessionTTL,
		CORSOrigins:      splitList(getEnv("CORS_ORIGIN", "")),
		AdminUser:        getEnv("ADMIN_USER", "admin"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if cliMode {
		if c.AdminPassword == "" {
			return fmt.Errorf("ADMIN_PASSWORD is required")
		}
		return nil
	}

	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}

	if c.BackendKey == "" {
		return fmt.Errorf("BACKEND_KEY is required")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be greater than 0")
	}

	return nil
}

// TestBackend returns the backend URL and key used by test runs,
// TEST_BACKEND_URL and TEST_BACKEND_KEY, with placeholders when unset.
func TestBackend() (url, key string) {
	return getEnv("TEST_BACKEND_URL", defaultTestBackendURL), getEnv("TEST_BACKEND_KEY", defaultTestBackendKey)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
