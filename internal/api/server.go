// Package api exposes the agent loop over HTTP: a streaming SSE chat
// endpoint, a synchronous chat endpoint, and session management, all under
// /api/v1. Health probes live outside the middleware stack.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cormorant-ai/cormorant/internal/agent"
	"github.com/cormorant-ai/cormorant/internal/log"
	"github.com/cormorant-ai/cormorant/internal/session"
)

// ServerConfig contains everything needed to build the API server.
type ServerConfig struct {
	Logger      log.Logger
	Loop        *agent.Loop   // Required
	Store       session.Store // Required
	CORSOrigins []string      // Allowed origins for CORS

	// ReadyCheck reports backend readiness for /ready. Nil means always
	// ready.
	ReadyCheck func(ctx context.Context) error
}

// Server is the JSON/SSE API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Loop == nil {
		return nil, errors.New("agent loop is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{loop: cfg.Loop, store: cfg.Store, logger: logger}
	sh := &sessionHandler{store: cfg.Store, logger: logger}

	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("GET /api/v1/chat/stream", ch.stream)
	mux.HandleFunc("POST /api/v1/chat", ch.send)

	// Session management
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> CORS -> Routes
	// RequestID sits before Logging so request_id shows up in log attributes.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.ReadyCheck, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
