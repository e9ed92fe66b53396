package models

import (
	"time"

	"github.com/google/uuid"
)

// StepOutput is the text produced by one completed step.
type StepOutput struct {
	StepName StepIdentifier `json:"step_name"`
	Output   string         `json:"output"`
}

// PipelineResult is the outcome of a fully successful pipeline execution.
type PipelineResult struct {
	StepOutputs     []StepOutput `json:"step_outputs"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
}

// FinalOutput returns the output of the last step, or "" when there is none.
func (r *PipelineResult) FinalOutput() string {
	if r == nil || len(r.StepOutputs) == 0 {
		return ""
	}
	return r.StepOutputs[len(r.StepOutputs)-1].Output
}

// Run records one execution of a workflow.
type Run struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	OwnerID         uuid.UUID    `json:"owner_id" db:"owner_id"`
	WorkflowID      uuid.UUID    `json:"workflow_id" db:"workflow_id"`
	WorkflowName    string       `json:"workflow_name" db:"workflow_name"`
	InputText       string       `json:"input_text" db:"input_text"`
	StepOutputs     []StepOutput `json:"step_outputs" db:"step_outputs"`
	ExecutionTimeMs int64        `json:"execution_time_ms" db:"execution_time_ms"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Run model
func (Run) TableName() string {
	return "runs"
}

// NewRun builds a Run from a workflow, its input and the pipeline result.
func NewRun(wf *Workflow, input string, result *PipelineResult) *Run {
	return &Run{
		ID:              uuid.New(),
		OwnerID:         wf.OwnerID,
		WorkflowID:      wf.ID,
		WorkflowName:    wf.Name,
		InputText:       input,
		StepOutputs:     result.StepOutputs,
		ExecutionTimeMs: result.ExecutionTimeMs,
		CreatedAt:       time.Now(),
	}
}

// RunFilter narrows a history query.
type RunFilter struct {
	WorkflowID *uuid.UUID
	Page       int
	Limit      int
}

// Offset returns the row offset for the filter's page.
func (f RunFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// RunPage is one page of run history.
type RunPage struct {
	Runs  []*Run `json:"runs"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int    `json:"total"`
}
