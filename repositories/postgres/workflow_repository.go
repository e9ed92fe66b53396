package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/repositories"
	"go.uber.org/zap"
)

const workflowColumns = `id, owner_id, name, steps, is_template, created_at, updated_at`

// WorkflowRepository implements the repositories.WorkflowRepository interface
type WorkflowRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *DB, logger *zap.Logger) repositories.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new workflow
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.Workflow) error {
	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		wf.ID,
		wf.OwnerID,
		wf.Name,
		pq.Array(wf.Steps),
		wf.IsTemplate,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	r.logger.Debug("workflow created", zap.String("id", wf.ID.String()))
	return nil
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	wf, err := scanWorkflow(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// ListByOwner retrieves an owner's workflows, newest first
func (r *WorkflowRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*models.Workflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow rows: %w", err)
	}

	return workflows, nil
}

// Update updates a workflow's name, steps and template flag
func (r *WorkflowRepository) Update(ctx context.Context, wf *models.Workflow) error {
	query := `
		UPDATE workflows
		SET name = $2,
		    steps = $3,
		    is_template = $4,
		    updated_at = $5
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		wf.ID,
		wf.Name,
		pq.Array(wf.Steps),
		wf.IsTemplate,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	if err := expectAffected(result, "workflow", wf.ID); err != nil {
		return err
	}

	r.logger.Debug("workflow updated", zap.String("id", wf.ID.String()))
	return nil
}

// Delete deletes a workflow
func (r *WorkflowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	if err := expectAffected(result, "workflow", id); err != nil {
		return err
	}

	r.logger.Debug("workflow deleted", zap.String("id", id.String()))
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	wf := &models.Workflow{}
	var steps pq.StringArray
	err := row.Scan(
		&wf.ID,
		&wf.OwnerID,
		&wf.Name,
		&steps,
		&wf.IsTemplate,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	wf.Steps = []string(steps)
	return wf, nil
}

func expectAffected(result sql.Result, entity string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, repositories.ErrNotFound)
	}
	return nil
}
