package controllers

import (
	"net/http"

	"github.com/minalesh/marketplace-backend/api/responses"
	"github.com/minalesh/marketplace-backend/pkg/config"
	"github.com/minalesh/marketplace-backend/pkg/db"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Minalesh-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only while both backing stores answer pings.
func HealthReady(cfg *config.Config, database db.Pinger, cache redis.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Minalesh-Env", cfg.App.Env)
		checks := map[string]string{"database": "ok", "redis": "ok"}
		healthy := true
		if database == nil {
			checks["database"] = "not configured"
			healthy = false
		} else if err := database.Ping(r.Context()); err != nil {
			logg.Error(r.Context(), "database ping failed", err)
			checks["database"] = "unreachable"
			healthy = false
		}
		if cache == nil {
			checks["redis"] = "not configured"
			healthy = false
		} else if err := cache.Ping(r.Context()); err != nil {
			logg.Error(r.Context(), "redis ping failed", err)
			checks["redis"] = "unreachable"
			healthy = false
		}
		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": checks})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
