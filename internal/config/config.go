// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.cormorant/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive values (the PostgreSQL password) are masked in MarshalJSON and
// String so the config can be logged safely. Validation is fail-fast: Load
// returns an error instead of letting a bad value surface mid-request.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxTurns indicates the turn budget is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidTimeout indicates a per-call timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidStorageBackend indicates an unknown session storage backend.
	ErrInvalidStorageBackend = errors.New("invalid storage backend")

	// ErrInvalidSearchURL indicates the SearXNG base URL is malformed.
	ErrInvalidSearchURL = errors.New("invalid search base URL")

	// ErrInvalidPostgresConfig indicates incomplete PostgreSQL settings.
	ErrInvalidPostgresConfig = errors.New("invalid PostgreSQL configuration")
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
)

// Session storage backend identifiers used in Config.StorageBackend.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// DefaultSystemPrompt strongly nudges tool use for current events and facts,
// and asks the model to cite the URLs it actually used.
const DefaultSystemPrompt = "You are a research assistant with live web access. " +
	"For time-sensitive, factual, or news-like questions, you MUST call the " +
	"`web_search` tool first, then synthesize a concise answer. Cite the URLs " +
	"you actually used (short list). If a query is general knowledge, you may " +
	"answer directly."

// SearchConfig holds SearXNG service configuration for the web_search tool.
type SearchConfig struct {
	// BaseURL is the SearXNG instance URL (e.g., http://searxng:8080).
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	// MaxResults caps the number of results returned per query.
	MaxResults int `mapstructure:"max_results" json:"max_results"`
}

// FetchConfig holds limits for the web_fetch tool.
type FetchConfig struct {
	// MaxResponseBytes caps the fetched page size.
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" json:"max_response_bytes"`
	// TimeoutSeconds is the per-request timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// OtelConfig holds OTLP trace export settings. Tracing is disabled when
// Endpoint is empty.
type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// Model provider and generation configuration
	Provider     string `mapstructure:"provider" json:"provider"`         // "googleai" (default), "ollama", "openai"
	ModelName    string `mapstructure:"model_name" json:"model_name"`     // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	SystemPrompt string `mapstructure:"system_prompt" json:"system_prompt"`
	OllamaHost   string `mapstructure:"ollama_host" json:"ollama_host"`

	// Agent loop bounds
	MaxTurns            int `mapstructure:"max_turns" json:"max_turns"`                         // model turns per user message
	ModelTimeoutSeconds int `mapstructure:"model_timeout_seconds" json:"model_timeout_seconds"` // per model call
	ToolTimeoutSeconds  int `mapstructure:"tool_timeout_seconds" json:"tool_timeout_seconds"`   // per tool invocation
	MaxRetries          int `mapstructure:"max_retries" json:"max_retries"`                     // transient model-call retries

	// Tool configuration
	Search SearchConfig `mapstructure:"search" json:"search"`
	Fetch  FetchConfig  `mapstructure:"fetch" json:"fetch"`

	// Session storage
	StorageBackend   string `mapstructure:"storage_backend" json:"storage_backend"` // "memory" (default) or "postgres"
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Serving
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Observability
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".cormorant")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", ProviderGoogleAI)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("system_prompt", DefaultSystemPrompt)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("max_turns", 8)
	viper.SetDefault("model_timeout_seconds", 120)
	viper.SetDefault("tool_timeout_seconds", 30)
	viper.SetDefault("max_retries", 3)

	viper.SetDefault("search.base_url", "http://localhost:8888")
	viper.SetDefault("search.max_results", 4)
	viper.SetDefault("fetch.max_response_bytes", 10*1024*1024)
	viper.SetDefault("fetch.timeout_seconds", 30)

	viper.SetDefault("storage_backend", StorageMemory)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "cormorant")
	viper.SetDefault("postgres_password", "cormorant_dev_password")
	viper.SetDefault("postgres_db_name", "cormorant")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("addr", "localhost:8000")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})

	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.service_name", "cormorant")
	viper.SetDefault("otel.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
//
// Provider API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the
// Genkit plugins, not via viper; Validate only checks their presence.
func bindEnvVariables() {
	// Hardcoded keys can't fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "CORMORANT_PROVIDER")
	mustBind("model_name", "CORMORANT_MODEL_NAME")
	mustBind("ollama_host", "CORMORANT_OLLAMA_HOST")
	mustBind("storage_backend", "CORMORANT_STORAGE_BACKEND")
	mustBind("addr", "CORMORANT_ADDR")
	mustBind("cors_origins", "CORMORANT_CORS_ORIGINS")
	mustBind("search.base_url", "CORMORANT_SEARXNG_URL")
	mustBind("otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// parseDatabaseURL overrides the PostgreSQL settings from DATABASE_URL when
// set. The URL form wins over individual fields because deployment platforms
// hand out a single connection string.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("malformed port %q: %w", p, err)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// PostgresDSN returns the connection URL for pgx and golang-migrate.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// ModelTimeout returns the per-model-call timeout as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

// ToolTimeout returns the per-tool-invocation timeout as a duration.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// A ModelName that already contains a "/" is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return c.Provider + "/" + c.ModelName
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked to prevent substring matching; longer ones keep the
// first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
