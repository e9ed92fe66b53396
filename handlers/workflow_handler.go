package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/workflow-runner/internal/observability"
	"github.com/upb/workflow-runner/middleware"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/services/workflow"
	"github.com/upb/workflow-runner/utils"
	"go.uber.org/zap"
)

// CreateWorkflowRequest represents a request to create a workflow
type CreateWorkflowRequest struct {
	Name       string   `json:"name" validate:"required,max=100"`
	Steps      []string `json:"steps" validate:"required,min=2,max=4,dive,step"`
	IsTemplate bool     `json:"is_template"`
}

// UpdateWorkflowRequest represents a request to update a workflow
type UpdateWorkflowRequest struct {
	Name       *string  `json:"name,omitempty" validate:"omitempty,max=100"`
	Steps      []string `json:"steps,omitempty" validate:"omitempty,min=2,max=4,dive,step"`
	IsTemplate *bool    `json:"is_template,omitempty"`
}

// DuplicateWorkflowRequest optionally names the copy
type DuplicateWorkflowRequest struct {
	Name string `json:"name,omitempty" validate:"omitempty,max=100"`
}

// RunWorkflowRequest represents a request to run a saved workflow
type RunWorkflowRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required,uuid"`
	InputText  string `json:"input_text" validate:"required"`
}

// WorkflowListResponse wraps a list of workflows
type WorkflowListResponse struct {
	Workflows []*models.Workflow `json:"workflows"`
	Count     int                `json:"count"`
}

// WorkflowService defines the workflow operations used by the handlers
type WorkflowService interface {
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Workflow, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Workflow, error)
	Create(ctx context.Context, ownerID uuid.UUID, in workflow.CreateInput) (*models.Workflow, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, in workflow.UpdateInput) (*models.Workflow, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	Duplicate(ctx context.Context, ownerID, id uuid.UUID, name string) (*models.Workflow, error)
	Run(ctx context.Context, ownerID, workflowID uuid.UUID, input string) (*models.Run, error)
	Execute(ctx context.Context, steps []string, input string) (*models.PipelineResult, error)
	History(ctx context.Context, ownerID uuid.UUID, filter models.RunFilter) (*models.RunPage, error)
	GetRun(ctx context.Context, ownerID, id uuid.UUID) (*models.Run, error)
	Stats(ctx context.Context, ownerID uuid.UUID) (*workflow.Stats, error)
}

// WorkflowHandler handles workflow, run and history requests
type WorkflowHandler struct {
	service WorkflowService
	logger  *zap.Logger
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(service WorkflowService, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		service: service,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/workflows
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	workflows, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	_ = utils.WriteOK(w, WorkflowListResponse{Workflows: workflows, Count: len(workflows)})
}

// HandleCreate handles POST /api/v1/workflows
func (h *WorkflowHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req CreateWorkflowRequest
	if !h.decode(w, r, &req) {
		return
	}

	wf, err := h.service.Create(r.Context(), ownerID, workflow.CreateInput{
		Name:       req.Name,
		Steps:      req.Steps,
		IsTemplate: req.IsTemplate,
	})
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	h.log(r).Info("workflow created",
		zap.String("workflow_id", wf.ID.String()),
		zap.String("owner_id", ownerID.String()))

	_ = utils.WriteCreated(w, wf)
}

// HandleGet handles GET /api/v1/workflows/{id}
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	wf, err := h.service.Get(r.Context(), ownerID, id)
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	_ = utils.WriteOK(w, wf)
}

// HandleUpdate handles PUT /api/v1/workflows/{id}
func (h *WorkflowHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req UpdateWorkflowRequest
	if !h.decode(w, r, &req) {
		return
	}

	wf, err := h.service.Update(r.Context(), ownerID, id, workflow.UpdateInput{
		Name:       req.Name,
		Steps:      req.Steps,
		IsTemplate: req.IsTemplate,
	})
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	_ = utils.WriteOK(w, wf)
}

// HandleDelete handles DELETE /api/v1/workflows/{id}
func (h *WorkflowHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), ownerID, id); err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	h.log(r).Info("workflow deleted", zap.String("workflow_id", id.String()))
	utils.WriteNoContent(w)
}

// HandleDuplicate handles POST /api/v1/workflows/{id}/duplicate
func (h *WorkflowHandler) HandleDuplicate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	// The body is optional
	var req DuplicateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.log(r))
		return
	}

	wf, err := h.service.Duplicate(r.Context(), ownerID, id, req.Name)
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	_ = utils.WriteCreated(w, wf)
}

// HandleRun handles POST /api/v1/run
func (h *WorkflowHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req RunWorkflowRequest
	if !h.decode(w, r, &req) {
		return
	}
	workflowID, err := utils.ParseUUID(req.WorkflowID, "workflow_id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	run, err := h.service.Run(r.Context(), ownerID, workflowID, req.InputText)
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	h.log(r).Info("workflow run completed",
		zap.String("run_id", run.ID.String()),
		zap.String("workflow_id", workflowID.String()),
		zap.Int64("execution_time_ms", run.ExecutionTimeMs))

	_ = utils.WriteCreated(w, run)
}

// HandleHistory handles GET /api/v1/history
func (h *WorkflowHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var filter models.RunFilter
	var err error
	if filter.Page, err = queryInt(query.Get("page")); err != nil {
		_ = utils.WriteBadRequest(w, "page must be an integer", nil)
		return
	}
	if filter.Limit, err = queryInt(query.Get("limit")); err != nil {
		_ = utils.WriteBadRequest(w, "limit must be an integer", nil)
		return
	}
	if raw := query.Get("workflow_id"); raw != "" {
		id, err := utils.ParseUUID(raw, "workflow_id")
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		filter.WorkflowID = &id
	}

	page, err := h.service.History(r.Context(), ownerID, filter)
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	_ = utils.WriteOK(w, page)
}

// HandleGetRun handles GET /api/v1/history/{id}
func (h *WorkflowHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	run, err := h.service.GetRun(r.Context(), ownerID, id)
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	_ = utils.WriteOK(w, run)
}

// HandleStats handles GET /api/v1/stats
func (h *WorkflowHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), ownerID)
	if err != nil {
		HandleServiceError(w, err, h.log(r))
		return
	}

	_ = utils.WriteOK(w, stats)
}

func (h *WorkflowHandler) owner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ownerID, ok := middleware.GetOwnerIDFromContext(r.Context())
	if !ok {
		h.log(r).Error("missing owner ID in context")
		_ = utils.WriteUnauthorized(w, "Missing owner information")
		return uuid.Nil, false
	}
	return ownerID, true
}

func (h *WorkflowHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *WorkflowHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decodeAndValidate(w, r, dst, h.log(r))
}

func (h *WorkflowHandler) log(r *http.Request) *zap.Logger {
	return observability.LoggerFromContext(r.Context(), h.logger)
}

// decodeAndValidate parses a JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports whether the caller may go on.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Debug("failed to decode request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter; empty means zero
func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
