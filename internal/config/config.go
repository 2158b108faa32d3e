// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	AllowedOrigins []string

	Sidecar SidecarConfig
	Chat    ChatConfig
}

// SidecarConfig controls the inference sidecar client.
type SidecarConfig struct {
	URL            string
	Model          string
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
}

// ChatConfig controls conversation storage and prompt assembly.
type ChatConfig struct {
	MaxStoredMessages int
	MaxHistory        int
	Retention         time.Duration
	SweepInterval     time.Duration
	SystemPrompt      string
	Temperature       float64
	MaxTokens         int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		Sidecar: SidecarConfig{
			URL:            getEnv("SIDECAR_URL", "http://localhost:11434"),
			Model:          getEnv("SIDECAR_MODEL", "llama3"),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			HealthTimeout:  getEnvDuration("HEALTH_TIMEOUT", 5*time.Second),
			MaxRetries:     getEnvInt("MAX_RETRIES", 3),
			BackoffBase:    getEnvDuration("BACKOFF_BASE", time.Second),
			BackoffCap:     getEnvDuration("BACKOFF_CAP", 5*time.Second),
		},
		Chat: ChatConfig{
			MaxStoredMessages: getEnvInt("MAX_STORED_MESSAGES", 200),
			MaxHistory:        getEnvInt("MAX_HISTORY", 10),
			Retention:         getEnvDuration("RETENTION_WINDOW", 24*time.Hour),
			SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
			SystemPrompt:      getEnv("SYSTEM_PROMPT", ""),
			Temperature:       getEnvFloat("DEFAULT_TEMPERATURE", 0.7),
			MaxTokens:         getEnvInt("DEFAULT_MAX_TOKENS", 1024),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields make sense.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Sidecar.URL == "" {
		return fmt.Errorf("SIDECAR_URL cannot be empty")
	}
	if c.Sidecar.Model == "" {
		return fmt.Errorf("SIDECAR_MODEL cannot be empty")
	}
	if c.Sidecar.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be > 0")
	}
	if c.Sidecar.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.Sidecar.BackoffBase <= 0 || c.Sidecar.BackoffCap < c.Sidecar.BackoffBase {
		return fmt.Errorf("BACKOFF_CAP must be >= BACKOFF_BASE > 0")
	}
	if c.Chat.MaxStoredMessages <= 0 {
		return fmt.Errorf("MAX_STORED_MESSAGES must be > 0")
	}
	if c.Chat.MaxHistory <= 0 {
		return fmt.Errorf("MAX_HISTORY must be > 0")
	}
	if c.Chat.MaxHistory > c.Chat.MaxStoredMessages {
		return fmt.Errorf("MAX_HISTORY cannot exceed MAX_STORED_MESSAGES")
	}
	if c.Chat.Retention <= 0 {
		return fmt.Errorf("RETENTION_WINDOW must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("30s", "24h") and falls
// back to plain seconds for bare integers.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
