// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// MapsConfig provides settings for the Nominatim address provider.
type MapsConfig interface {
	GetNominatimURL() string
	GetNominatimUserAgent() string
	GetNominatimCountryCodes() string
	GetNominatimRatePerSecond() float64
	GetNominatimTimeout() time.Duration
}

// CacheConfig provides settings for the Redis response cache.
type CacheConfig interface {
	GetRedisURL() string
	GetMapsCacheTTL() time.Duration
	IsCacheEnabled() bool
}

// SearchConfig provides settings for the remote search service.
type SearchConfig interface {
	GetSearchAPIURL() string
	GetSearchAPIKey() string
	GetSearchAPITimeout() time.Duration
}

// PipelineConfig provides tuning for the query pipeline.
type PipelineConfig interface {
	GetSuggestDebounce() time.Duration
	GetSuggestMinChars() int
	GetChatHistoryLimit() int
	GetClassifierPolicyPath() string
	GetSessionIdleTTL() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	CORSAllowAll          bool
	CORSOrigins           []string
	NominatimURL          string
	NominatimUserAgent    string
	NominatimCountryCodes string
	NominatimRate         float64
	NominatimTimeout      time.Duration
	RedisURL              string
	MapsCacheTTL          time.Duration
	SearchAPIURL          string
	SearchAPIKey          string
	SearchAPITimeout      time.Duration
	SuggestDebounce       time.Duration
	SuggestMinChars       int
	ChatHistoryLimit      int
	ClassifierPolicyPath  string
	SessionIdleTTL        time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// MapsConfig implementation
func (c *Config) GetNominatimURL() string            { return c.NominatimURL }
func (c *Config) GetNominatimUserAgent() string      { return c.NominatimUserAgent }
func (c *Config) GetNominatimCountryCodes() string   { return c.NominatimCountryCodes }
func (c *Config) GetNominatimRatePerSecond() float64 { return c.NominatimRate }
func (c *Config) GetNominatimTimeout() time.Duration { return c.NominatimTimeout }

// CacheConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetMapsCacheTTL() time.Duration  { return c.MapsCacheTTL }
func (c *Config) IsCacheEnabled() bool            { return c.RedisURL != "" }

// SearchConfig implementation
func (c *Config) GetSearchAPIURL() string            { return c.SearchAPIURL }
func (c *Config) GetSearchAPIKey() string            { return c.SearchAPIKey }
func (c *Config) GetSearchAPITimeout() time.Duration { return c.SearchAPITimeout }

// PipelineConfig implementation
func (c *Config) GetSuggestDebounce() time.Duration { return c.SuggestDebounce }
func (c *Config) GetSuggestMinChars() int           { return c.SuggestMinChars }
func (c *Config) GetChatHistoryLimit() int          { return c.ChatHistoryLimit }
func (c *Config) GetClassifierPolicyPath() string   { return c.ClassifierPolicyPath }
func (c *Config) GetSessionIdleTTL() time.Duration  { return c.SessionIdleTTL }

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from .env (when present) and the environment.
func Load() (*Config, error) {
	return load(true)
}

// LoadForMaps is Load for tools that only talk to the address lookup
// service; SEARCH_API_URL may be unset.
func LoadForMaps() (*Config, error) {
	return load(false)
}

func load(requireSearch bool) (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		NominatimURL:          strings.TrimRight(getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"), "/"),
		NominatimUserAgent:    getEnv("NOMINATIM_USER_AGENT", "FractionaXSearch/1.0"),
		NominatimCountryCodes: getEnv("NOMINATIM_COUNTRY_CODES", "us"),
		NominatimRate:         mustFloat(getEnv("NOMINATIM_RATE_PER_SECOND", "1")),
		NominatimTimeout:      mustDuration(getEnv("NOMINATIM_TIMEOUT", "5s")),
		RedisURL:              getEnv("REDIS_URL", ""),
		MapsCacheTTL:          mustDuration(getEnv("MAPS_CACHE_TTL", "24h")),
		SearchAPIURL:          strings.TrimRight(getEnv("SEARCH_API_URL", ""), "/"),
		SearchAPIKey:          getEnv("SEARCH_API_KEY", ""),
		SearchAPITimeout:      mustDuration(getEnv("SEARCH_API_TIMEOUT", "60s")),
		SuggestDebounce:       mustDuration(getEnv("SUGGEST_DEBOUNCE", "300ms")),
		SuggestMinChars:       mustInt(getEnv("SUGGEST_MIN_CHARS", "3")),
		ChatHistoryLimit:      mustInt(getEnv("CHAT_HISTORY_LIMIT", "10")),
		ClassifierPolicyPath:  getEnv("CLASSIFIER_POLICY_PATH", ""),
		SessionIdleTTL:        mustDuration(getEnv("SESSION_IDLE_TTL", "30m")),
	}

	if requireSearch && cfg.SearchAPIURL == "" {
		return nil, fmt.Errorf("SEARCH_API_URL is required")
	}
	if cfg.NominatimRate <= 0 {
		return nil, fmt.Errorf("NOMINATIM_RATE_PER_SECOND must be positive")
	}
	if cfg.SuggestDebounce <= 0 {
		return nil, fmt.Errorf("SUGGEST_DEBOUNCE must be a positive duration")
	}
	if cfg.SuggestMinChars < 1 {
		return nil, fmt.Errorf("SUGGEST_MIN_CHARS must be at least 1")
	}
	if cfg.ChatHistoryLimit < 1 {
		return nil, fmt.Errorf("CHAT_HISTORY_LIMIT must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func mustFloat(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return f
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
