package workflow

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/repositories"
	"github.com/upb/workflow-runner/services"
	"github.com/upb/workflow-runner/services/pipeline"
	"go.uber.org/zap"
)

// Limits on user supplied values
const (
	MaxNameLength  = 100
	MaxInputLength = 5000
	DefaultLimit   = 10
	MaxLimit       = 100
)

// Runner executes a step list over an input text
type Runner interface {
	Execute(ctx context.Context, steps []string, input string, cfg pipeline.Config) (*models.PipelineResult, error)
}

// CreateInput describes a new workflow
type CreateInput struct {
	Name       string
	Steps      []string
	IsTemplate bool
}

// UpdateInput carries the fields to change; nil fields are left alone
type UpdateInput struct {
	Name       *string
	Steps      []string
	IsTemplate *bool
}

// Stats summarizes an owner's activity
type Stats struct {
	TotalWorkflows int        `json:"total_workflows"`
	TotalRuns      int        `json:"total_runs"`
	LastRunTime    *time.Time `json:"last_run_time"`
}

// Service manages workflows and their runs. Every operation is scoped to an
// owner; a workflow belonging to someone else is reported as not found.
type Service struct {
	workflows repositories.WorkflowRepository
	runs      repositories.RunRepository
	txMgr     repositories.TransactionManager
	runner    Runner
	pipeline  pipeline.Config
	cache     *Cache
	logger    *zap.Logger
}

// NewService creates a new workflow Service instance
func NewService(
	repos *repositories.Repositories,
	txMgr repositories.TransactionManager,
	runner Runner,
	pipelineCfg pipeline.Config,
	cache *Cache,
	logger *zap.Logger,
) *Service {
	return &Service{
		workflows: repos.Workflows,
		runs:      repos.Runs,
		txMgr:     txMgr,
		runner:    runner,
		pipeline:  pipelineCfg,
		cache:     cache,
		logger:    logger,
	}
}

// List returns the owner's workflows, newest first
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Workflow, error) {
	workflows, err := s.workflows.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, services.WrapInternal("failed to list workflows", err)
	}
	return workflows, nil
}

// Get returns one of the owner's workflows
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Workflow, error) {
	if wf := s.cache.Get(id); wf != nil {
		if wf.OwnerID != ownerID {
			return nil, services.ErrWorkflowNotFound
		}
		return wf, nil
	}

	wf, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrWorkflowNotFound
		}
		return nil, services.WrapInternal("failed to load workflow", err)
	}
	s.cache.Set(wf)

	if wf.OwnerID != ownerID {
		return nil, services.ErrWorkflowNotFound
	}
	return wf, nil
}

// Create validates and stores a new workflow
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*models.Workflow, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	steps, err := validateSteps(in.Steps)
	if err != nil {
		return nil, err
	}

	wf := models.NewWorkflow(ownerID, name, steps)
	wf.IsTemplate = in.IsTemplate
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, services.WrapInternal("failed to create workflow", err)
	}

	s.logger.Info("workflow created",
		zap.String("workflow_id", wf.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.Strings("steps", wf.Steps))
	return wf, nil
}

// Update applies the non-nil fields of in to one of the owner's workflows
func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, in UpdateInput) (*models.Workflow, error) {
	wf, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name, err := validateName(*in.Name)
		if err != nil {
			return nil, err
		}
		wf.Name = name
	}
	if in.Steps != nil {
		steps, err := validateSteps(in.Steps)
		if err != nil {
			return nil, err
		}
		wf.Steps = steps
	}
	if in.IsTemplate != nil {
		wf.IsTemplate = *in.IsTemplate
	}
	wf.Touch()

	if err := s.workflows.Update(ctx, wf); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.cache.Invalidate(id)
			return nil, services.ErrWorkflowNotFound
		}
		return nil, services.WrapInternal("failed to update workflow", err)
	}
	// Evict only after the write: a read racing it may have cached the old row
	s.cache.Invalidate(id)

	s.logger.Info("workflow updated", zap.String("workflow_id", id.String()))
	return wf, nil
}

// Delete removes one of the owner's workflows together with its run history
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}

	err := s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		deleted, err := s.runs.DeleteByWorkflowID(txCtx, id)
		if err != nil {
			return err
		}
		s.logger.Debug("deleted workflow runs",
			zap.String("workflow_id", id.String()),
			zap.Int64("runs", deleted))
		return s.workflows.Delete(txCtx, id)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.cache.Invalidate(id)
			return services.ErrWorkflowNotFound
		}
		return services.WrapInternal("failed to delete workflow", err)
	}
	s.cache.Invalidate(id)

	s.logger.Info("workflow deleted", zap.String("workflow_id", id.String()))
	return nil
}

// Duplicate copies one of the owner's workflows. A blank name becomes
// "<original> (Copy)". The copy is never a template.
func (s *Service) Duplicate(ctx context.Context, ownerID, id uuid.UUID, name string) (*models.Workflow, error) {
	original, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = copyName(original.Name)
	}
	name, err = validateName(name)
	if err != nil {
		return nil, err
	}

	dup := original.Duplicate(ownerID, name)
	if err := s.workflows.Create(ctx, dup); err != nil {
		return nil, services.WrapInternal("failed to duplicate workflow", err)
	}

	s.logger.Info("workflow duplicated",
		zap.String("source_id", id.String()),
		zap.String("workflow_id", dup.ID.String()))
	return dup, nil
}

// Run executes one of the owner's workflows over input and records the run.
// A failed pipeline is returned as is and nothing is recorded.
func (s *Service) Run(ctx context.Context, ownerID, workflowID uuid.UUID, input string) (*models.Run, error) {
	if err := ValidateInput(input); err != nil {
		return nil, err
	}

	wf, err := s.Get(ctx, ownerID, workflowID)
	if err != nil {
		return nil, err
	}

	result, err := s.runner.Execute(ctx, wf.Steps, input, s.pipeline)
	if err != nil {
		return nil, err
	}

	run := models.NewRun(wf, input, result)
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, services.WrapInternal("failed to record run", err)
	}

	s.logger.Info("workflow run recorded",
		zap.String("run_id", run.ID.String()),
		zap.String("workflow_id", workflowID.String()),
		zap.Int64("execution_time_ms", run.ExecutionTimeMs))
	return run, nil
}

// Execute runs an ad-hoc step list without recording anything
func (s *Service) Execute(ctx context.Context, steps []string, input string) (*models.PipelineResult, error) {
	if err := ValidateInput(input); err != nil {
		return nil, err
	}
	if _, err := validateSteps(steps); err != nil {
		return nil, err
	}
	return s.runner.Execute(ctx, steps, input, s.pipeline)
}

// History returns a page of the owner's runs. Page defaults to 1 and limit
// to DefaultLimit; limit is capped at MaxLimit.
func (s *Service) History(ctx context.Context, ownerID uuid.UUID, filter models.RunFilter) (*models.RunPage, error) {
	if filter.Page < 0 || filter.Limit < 0 {
		return nil, services.ErrInvalidPagination
	}
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	runs, err := s.runs.List(ctx, ownerID, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list runs", err)
	}
	total, err := s.runs.Count(ctx, ownerID, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to count runs", err)
	}

	return &models.RunPage{
		Runs:  runs,
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
	}, nil
}

// GetRun returns one of the owner's recorded runs
func (s *Service) GetRun(ctx context.Context, ownerID, id uuid.UUID) (*models.Run, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRunNotFound
		}
		return nil, services.WrapInternal("failed to load run", err)
	}
	if run.OwnerID != ownerID {
		return nil, services.ErrRunNotFound
	}
	return run, nil
}

// Stats returns workflow and run totals plus the time of the latest run
func (s *Service) Stats(ctx context.Context, ownerID uuid.UUID) (*Stats, error) {
	workflows, err := s.workflows.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, services.WrapInternal("failed to list workflows", err)
	}

	page, err := s.History(ctx, ownerID, models.RunFilter{Page: 1, Limit: 1})
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalWorkflows: len(workflows), TotalRuns: page.Total}
	if len(page.Runs) > 0 {
		last := page.Runs[0].CreatedAt
		stats.LastRunTime = &last
	}
	return stats, nil
}

// ValidateInput checks that input text is present and within MaxInputLength characters
func ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return services.ErrEmptyInput
	}
	if utf8.RuneCountInString(input) > MaxInputLength {
		return services.ErrInputTooLong
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", services.ErrInvalidName
	}
	return name, nil
}

// validateSteps returns the canonical step identifiers
func validateSteps(raw []string) ([]string, error) {
	steps, err := pipeline.ValidateSteps(raw)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid workflow steps", err).
			WithDetail("min_steps", models.MinSteps).
			WithDetail("max_steps", models.MaxSteps)
	}
	out := make([]string, len(steps))
	for i, step := range steps {
		out[i] = string(step)
	}
	return out, nil
}

func copyName(name string) string {
	const suffix = " (Copy)"
	if utf8.RuneCountInString(name)+len(suffix) > MaxNameLength {
		runes := []rune(name)
		name = string(runes[:MaxNameLength-len(suffix)])
	}
	return name + suffix
}
