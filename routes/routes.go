package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/workflow-runner/app"
	"github.com/upb/workflow-runner/config"
	"github.com/upb/workflow-runner/handlers"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/middleware"
	"github.com/upb/workflow-runner/utils"
	"go.uber.org/zap"
)

// requestTimeoutSlack covers the work around the step calls of a run
const requestTimeoutSlack = 15 * time.Second

// RequestTimeout bounds a whole request. Every step of a run gets its own
// chain budget, so the bound covers MaxSteps of them and the chain reports
// its own timeout first.
func RequestTimeout(p config.PipelineConfig) time.Duration {
	return time.Duration(models.MaxSteps)*p.TotalTimeout + requestTimeoutSlack
}

// Handlers is the set of HTTP handlers mounted by the router
type Handlers struct {
	Health    *handlers.HealthHandler
	Workflows *handlers.WorkflowHandler
	Pipeline  *handlers.PipelineHandler
	Owner     *middleware.OwnerMiddleware
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	var db handlers.Database
	if deps.DB != nil {
		db = deps.DB
	}

	var metrics handlers.MetricsSource
	if deps.Pipeline.Metrics != nil {
		metrics = deps.Pipeline.Metrics
	}

	h := Handlers{
		Health:    handlers.NewHealthHandler(db, deps.Pipeline.Provider, deps.Logger),
		Workflows: handlers.NewWorkflowHandler(deps.WorkflowService, deps.Logger),
		Pipeline:  handlers.NewPipelineHandler(deps.WorkflowService, metrics, deps.WorkflowCache, deps.Logger),
		Owner:     deps.OwnerMiddleware,
	}

	return NewRouter(h, deps.Config.Server.AllowedOrigins, RequestTimeout(deps.Config.Pipeline), deps.Logger)
}

// NewRouter builds the chi router for the given handlers
func NewRouter(h Handlers, allowedOrigins []string, requestTimeout time.Duration, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.PropagateRequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:*"}
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.OwnerHeader, chimiddleware.RequestIDHeader},
		ExposedHeaders:   []string{chimiddleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", h.Health.HandleHealth)
	r.Get("/readyz", h.Health.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/steps", h.Pipeline.HandleSteps)
		r.Post("/execute", h.Pipeline.HandleExecute)
		r.Get("/metrics/pipeline", h.Pipeline.HandleMetrics)

		// Owner scoped routes
		r.Group(func(r chi.Router) {
			r.Use(h.Owner.RequireOwner)

			r.Route("/workflows", func(r chi.Router) {
				r.Get("/", h.Workflows.HandleList)
				r.Post("/", h.Workflows.HandleCreate)
				r.Get("/{id}", h.Workflows.HandleGet)
				r.Put("/{id}", h.Workflows.HandleUpdate)
				r.Delete("/{id}", h.Workflows.HandleDelete)
				r.Post("/{id}/duplicate", h.Workflows.HandleDuplicate)
			})

			r.Post("/run", h.Workflows.HandleRun)
			r.Get("/history", h.Workflows.HandleHistory)
			r.Get("/history/{id}", h.Workflows.HandleGetRun)
			r.Get("/stats", h.Workflows.HandleStats)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Endpoint not found")
	})

	return r
}
