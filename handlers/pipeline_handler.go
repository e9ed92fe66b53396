package handlers

import (
	"net/http"

	"github.com/upb/workflow-runner/internal/observability"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/services/workflow"
	"github.com/upb/workflow-runner/utils"
	"go.uber.org/zap"
)

// ExecuteRequest runs an ad-hoc step list. Step identifiers are checked by
// the service so unknown steps report their position.
type ExecuteRequest struct {
	Steps     []string `json:"steps" validate:"required"`
	InputText string   `json:"input_text" validate:"required"`
}

// ExecuteResponse is the result of an ad-hoc execution
type ExecuteResponse struct {
	StepOutputs     []models.StepOutput `json:"step_outputs"`
	FinalOutput     string              `json:"final_output"`
	ExecutionTimeMs int64               `json:"execution_time_ms"`
}

// StepsResponse lists the step catalog
type StepsResponse struct {
	Steps    []models.StepDescriptor `json:"steps"`
	MinSteps int                     `json:"min_steps"`
	MaxSteps int                     `json:"max_steps"`
}

// MetricsResponse combines pipeline counters with workflow cache statistics
type MetricsResponse struct {
	Pipeline observability.Snapshot `json:"pipeline"`
	Cache    *workflow.CacheStats   `json:"cache,omitempty"`
}

// MetricsSource exposes a snapshot of pipeline counters
type MetricsSource interface {
	Snapshot() observability.Snapshot
}

// CacheStatsSource exposes workflow cache statistics
type CacheStatsSource interface {
	Stats() workflow.CacheStats
}

// PipelineHandler serves the step catalog, ad-hoc execution and metrics
type PipelineHandler struct {
	service WorkflowService
	metrics MetricsSource
	cache   CacheStatsSource
	logger  *zap.Logger
}

// NewPipelineHandler creates a new PipelineHandler. metrics and cache may be nil.
func NewPipelineHandler(service WorkflowService, metrics MetricsSource, cache CacheStatsSource, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		service: service,
		metrics: metrics,
		cache:   cache,
		logger:  logger,
	}
}

// HandleSteps handles GET /api/v1/steps
func (h *PipelineHandler) HandleSteps(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, StepsResponse{
		Steps:    models.StepCatalog,
		MinSteps: models.MinSteps,
		MaxSteps: models.MaxSteps,
	})
}

// HandleExecute handles POST /api/v1/execute
func (h *PipelineHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	var req ExecuteRequest
	if !decodeAndValidate(w, r, &req, logger) {
		return
	}

	result, err := h.service.Execute(r.Context(), req.Steps, req.InputText)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Info("ad-hoc execution completed",
		zap.Strings("steps", req.Steps),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs))

	_ = utils.WriteOK(w, ExecuteResponse{
		StepOutputs:     result.StepOutputs,
		FinalOutput:     result.FinalOutput(),
		ExecutionTimeMs: result.ExecutionTimeMs,
	})
}

// HandleMetrics handles GET /api/v1/metrics/pipeline
func (h *PipelineHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		_ = utils.WriteError(w, http.StatusServiceUnavailable, "Metrics are disabled", nil)
		return
	}

	resp := MetricsResponse{Pipeline: h.metrics.Snapshot()}
	if h.cache != nil {
		stats := h.cache.Stats()
		resp.Cache = &stats
	}
	_ = utils.WriteOK(w, resp)
}
