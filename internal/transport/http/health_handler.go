package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"taskdeck/internal/security"
	"taskdeck/internal/store"
)

// HealthHandler reports liveness of the store and the decryption key
type HealthHandler struct {
	store   *store.Store
	engine  *security.Engine
	version string
	logger  *slog.Logger
}

// NewHealthHandler creates the health handler
func NewHealthHandler(st *store.Store, engine *security.Engine, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:   st,
		engine:  engine,
		version: version,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthResponse is the GET /api/health body
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{
		"database":   "healthy",
		"unlock_key": "healthy",
	}
	status := "healthy"

	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "database health check failed",
			slog.String("error", err.Error()))
		checks["database"] = "unhealthy"
		status = "degraded"
	}

	if err := h.engine.ValidatePrivateKey(); err != nil {
		h.logger.ErrorContext(ctx, "unlock key health check failed",
			slog.String("error", err.Error()))
		checks["unlock_key"] = "unhealthy"
		status = "degraded"
	}

	if status != "healthy" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, HealthResponse{
		Status:    status,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
