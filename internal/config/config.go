package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Categories
	CategoriesPath      string
	MaxItemsPerCategory int
	DescriptionMaxRunes int
	RefreshInterval     time.Duration

	// Transports
	FetchTimeout  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	JSONProxyBase string
	RelayBase     string
	FetchRate     float64 // requests per second, 0 disables throttling
	FetchBurst    int

	// Source resolver
	SearchBase string
	SearchHL   string
	SearchGL   string
	SearchCEID string

	// Serving and persistence
	HTTPAddr     string
	SnapshotPath string
	DatabaseURL  string

	Debug bool
}

func Load() (*Config, error) {
	cfg := &Config{
		CategoriesPath:      getEnvOrDefault("CATEGORIES_CONFIG_PATH", "configs/categories.yaml"),
		MaxItemsPerCategory: getEnvIntOrDefault("MAX_ITEMS_PER_CATEGORY", 20),
		DescriptionMaxRunes: getEnvIntOrDefault("DESCRIPTION_MAX_RUNES", 1000),
		RefreshInterval:     getEnvDurationOrDefault("REFRESH_INTERVAL", 5*time.Minute),

		FetchTimeout:  getEnvDurationOrDefault("FETCH_TIMEOUT", 15*time.Second),
		RetryAttempts: getEnvIntOrDefault("RETRY_ATTEMPTS", 1),
		RetryDelay:    getEnvDurationOrDefault("RETRY_DELAY", time.Second),
		JSONProxyBase: getEnvOrDefault("JSON_PROXY_BASE", "https://api.rss2json.com/v1/api.json"),
		RelayBase:     getEnvOrDefault("RELAY_BASE", "https://api.allorigins.win/raw"),
		FetchRate:     getEnvFloatOrDefault("FETCH_RATE", 0),
		FetchBurst:    getEnvIntOrDefault("FETCH_BURST", 4),

		SearchBase: getEnvOrDefault("SEARCH_BASE", "https://news.google.com/rss/search"),
		SearchHL:   getEnvOrDefault("SEARCH_HL", "en-IN"),
		SearchGL:   getEnvOrDefault("SEARCH_GL", "IN"),
		SearchCEID: getEnvOrDefault("SEARCH_CEID", "IN:en"),

		HTTPAddr:     getEnvOrDefault("HTTP_ADDR", ":8080"),
		SnapshotPath: os.Getenv("SNAPSHOT_PATH"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.MaxItemsPerCategory <= 0 {
		return fmt.Errorf("MAX_ITEMS_PER_CATEGORY must be positive")
	}
	if c.DescriptionMaxRunes <= 0 {
		return fmt.Errorf("DESCRIPTION_MAX_RUNES must be positive")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("RETRY_DELAY must not be negative")
	}
	if c.FetchRate < 0 {
		return fmt.Errorf("FETCH_RATE must not be negative")
	}
	if c.FetchRate > 0 && c.FetchBurst < 1 {
		return fmt.Errorf("FETCH_BURST must be at least 1 when FETCH_RATE is set")
	}
	if c.JSONProxyBase == "" && c.RelayBase == "" {
		return fmt.Errorf("at least one of JSON_PROXY_BASE or RELAY_BASE is required")
	}
	return nil
}
