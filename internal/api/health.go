package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cormorant-ai/cormorant/internal/log"
)

const readyCheckTimeout = 5 * time.Second

// health is the liveness probe. Always 200 while the process serves.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness is the readiness probe. It runs the backend check (storage ping)
// and reports 503 while a dependency is down.
func readiness(check func(ctx context.Context) error, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
			defer cancel()

			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", "error", err)
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"reason": err.Error(),
				}, logger)
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
	}
}
