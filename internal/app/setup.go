package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cormorant-ai/cormorant/db"
	"github.com/cormorant-ai/cormorant/internal/agent"
	"github.com/cormorant-ai/cormorant/internal/config"
	"github.com/cormorant-ai/cormorant/internal/log"
	"github.com/cormorant-ai/cormorant/internal/observability"
	"github.com/cormorant-ai/cormorant/internal/search"
	"github.com/cormorant-ai/cormorant/internal/session"
	"github.com/cormorant-ai/cormorant/internal/tools"
)

// Setup creates and initializes the application. On failure everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must attach before genkit.Init so the span processor sees
	// every span.
	a.otelCleanup = observability.SetupTracing(ctx, cfg.Otel, logger)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	store, pool, err := provideStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.pool = pool

	registry, err := provideRegistry(g, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	loop, err := agent.New(g, store, registry, agent.Config{
		ModelName:    cfg.FullModelName(),
		SystemPrompt: cfg.SystemPrompt,
		MaxTurns:     cfg.MaxTurns,
		ModelTimeout: cfg.ModelTimeout(),
		ToolTimeout:  cfg.ToolTimeout(),
		Retry: agent.RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: agent.DefaultRetryConfig().InitialInterval,
			MaxInterval:     agent.DefaultRetryConfig().MaxInterval,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating agent loop: %w", err)
	}
	a.Loop = loop

	logger.Info("application initialized",
		"provider", cfg.Provider,
		"model", cfg.FullModelName(),
		"storage", cfg.StorageBackend,
		"tools", registry.Names(),
	)

	return a, nil
}

// provideGenkit initializes Genkit with the configured provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no model auto-discovery.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		logger.Info("initialized Genkit with googleai provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideStore creates the configured session store. The postgres backend
// runs migrations and returns the pool for readiness checks and teardown.
func provideStore(ctx context.Context, cfg *config.Config, logger log.Logger) (session.Store, *pgxpool.Pool, error) {
	if cfg.StorageBackend != config.StoragePostgres {
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(logger), nil, nil
	}

	dsn := cfg.PostgresDSN()
	if err := db.Migrate(dsn, logger); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("using postgres session store",
		"host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	return session.NewPostgresStore(pool, logger), pool, nil
}

// provideRegistry builds the tool registry with both web tools.
func provideRegistry(g *genkit.Genkit, cfg *config.Config, logger log.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	searchClient := search.NewClient(cfg.Search.BaseURL, cfg.Search.MaxResults, logger)
	searchTool, err := tools.NewSearchTool(g, searchClient, logger)
	if err != nil {
		return nil, fmt.Errorf("creating search tool: %w", err)
	}
	if err := registry.Register(searchTool); err != nil {
		return nil, fmt.Errorf("registering search tool: %w", err)
	}

	fetchTool, err := tools.NewFetchTool(g, tools.FetchConfig{
		MaxResponseBytes: cfg.Fetch.MaxResponseBytes,
		Timeout:          time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fetch tool: %w", err)
	}
	if err := registry.Register(fetchTool); err != nil {
		return nil, fmt.Errorf("registering fetch tool: %w", err)
	}

	return registry, nil
}
