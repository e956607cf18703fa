package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns the first error found; callers should treat any error as fatal.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateLoopBounds(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateAddr()
}

func (c *Config) validateProvider() error {
	switch c.Provider {
	case ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: provider %q requires GEMINI_API_KEY or GOOGLE_API_KEY",
				ErrInvalidProvider, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: provider %q requires OPENAI_API_KEY",
				ErrInvalidProvider, c.Provider)
		}
	case ProviderOllama:
		if _, err := url.ParseRequestURI(c.OllamaHost); err != nil {
			return fmt.Errorf("%w: malformed ollama_host %q: %v",
				ErrInvalidProvider, c.OllamaHost, err)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s, %s)",
			ErrInvalidProvider, c.Provider, ProviderGoogleAI, ProviderOllama, ProviderOpenAI)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	return nil
}

func (c *Config) validateLoopBounds() error {
	if c.MaxTurns < 1 || c.MaxTurns > 64 {
		return fmt.Errorf("%w: max_turns must be in [1, 64], got %d",
			ErrInvalidMaxTurns, c.MaxTurns)
	}
	if c.ModelTimeoutSeconds < 1 || c.ModelTimeoutSeconds > 600 {
		return fmt.Errorf("%w: model_timeout_seconds must be in [1, 600], got %d",
			ErrInvalidTimeout, c.ModelTimeoutSeconds)
	}
	if c.ToolTimeoutSeconds < 1 || c.ToolTimeoutSeconds > 300 {
		return fmt.Errorf("%w: tool_timeout_seconds must be in [1, 300], got %d",
			ErrInvalidTimeout, c.ToolTimeoutSeconds)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("%w: max_retries must be in [0, 10], got %d",
			ErrInvalidTimeout, c.MaxRetries)
	}
	return nil
}

func (c *Config) validateSearch() error {
	u, err := url.Parse(c.Search.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidSearchURL, c.Search.BaseURL)
	}
	if c.Search.MaxResults < 1 || c.Search.MaxResults > 20 {
		return fmt.Errorf("%w: search.max_results must be in [1, 20], got %d",
			ErrInvalidSearchURL, c.Search.MaxResults)
	}
	if c.Fetch.MaxResponseBytes < 1024 {
		return fmt.Errorf("%w: fetch.max_response_bytes must be at least 1024, got %d",
			ErrInvalidTimeout, c.Fetch.MaxResponseBytes)
	}
	if c.Fetch.TimeoutSeconds < 1 || c.Fetch.TimeoutSeconds > 300 {
		return fmt.Errorf("%w: fetch.timeout_seconds must be in [1, 300], got %d",
			ErrInvalidTimeout, c.Fetch.TimeoutSeconds)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.StorageBackend {
	case StorageMemory:
		return nil
	case StoragePostgres:
		if c.PostgresHost == "" || c.PostgresUser == "" || c.PostgresDBName == "" {
			return fmt.Errorf("%w: host, user and db_name are required",
				ErrInvalidPostgresConfig)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: port must be in [1, 65535], got %d",
				ErrInvalidPostgresConfig, c.PostgresPort)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)",
			ErrInvalidStorageBackend, c.StorageBackend, StorageMemory, StoragePostgres)
	}
}

func (c *Config) validateAddr() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr must not be empty")
	}
	return nil
}
