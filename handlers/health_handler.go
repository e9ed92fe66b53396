package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/workflow-runner/services/providers"
	"github.com/upb/workflow-runner/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Database is the subset of *sql.DB used by readiness checks
type Database interface {
	PingContext(ctx context.Context) error
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db       Database
	provider providers.ProviderClient
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and provider may be nil
// when the process runs without them.
func NewHealthHandler(db Database, provider providers.ProviderClient, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		provider: provider,
		logger:   logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness requires a reachable database. An unconfigured provider is
// reported but does not fail readiness since local fallback may serve.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	switch {
	case h.provider == nil:
		checks["provider"] = "none"
	case providers.IsConfigured(h.provider):
		checks["provider"] = h.provider.Name() + ": configured"
	default:
		checks["provider"] = h.provider.Name() + ": not_configured"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil // No database configured
	}

	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
