// Package app assembles the application: provider-specific Genkit setup,
// the session store, the tool registry and the agent loop, with a single
// Close tearing everything down in reverse order.
package app

import (
	"context"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cormorant-ai/cormorant/internal/agent"
	"github.com/cormorant-ai/cormorant/internal/config"
	"github.com/cormorant-ai/cormorant/internal/session"
	"github.com/cormorant-ai/cormorant/internal/tools"
)

// App holds the initialized application components.
type App struct {
	Config   *config.Config
	Genkit   *genkit.Genkit
	Loop     *agent.Loop
	Store    session.Store
	Registry *tools.Registry

	pool        *pgxpool.Pool // nil for the memory backend
	otelCleanup func()
}

// Ready reports whether the backing services can serve traffic. Used by the
// /ready probe.
func (a *App) Ready(ctx context.Context) error {
	if a.pool != nil {
		return a.pool.Ping(ctx)
	}
	return nil
}

// Close releases resources in reverse initialization order. Safe to call on
// a partially initialized App.
func (a *App) Close() error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}
	return nil
}
