package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/repositories"
	"go.uber.org/zap"
)

const runColumns = `id, owner_id, workflow_id, workflow_name, input_text, step_outputs, execution_time_ms, created_at`

// RunRepository implements the repositories.RunRepository interface
type RunRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB, logger *zap.Logger) repositories.RunRepository {
	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a completed run
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	outputs, err := json.Marshal(run.StepOutputs)
	if err != nil {
		return fmt.Errorf("failed to encode step outputs: %w", err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		run.ID,
		run.OwnerID,
		run.WorkflowID,
		run.WorkflowName,
		run.InputText,
		outputs,
		run.ExecutionTimeMs,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	r.logger.Debug("run created",
		zap.String("id", run.ID.String()),
		zap.String("workflow_id", run.WorkflowID.String()))
	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	run, err := scanRun(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List retrieves an owner's runs matching the filter, newest first
func (r *RunRepository) List(ctx context.Context, ownerID uuid.UUID, filter models.RunFilter) ([]*models.Run, error) {
	where, args := runWhere(ownerID, filter)
	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`
		SELECT %s
		FROM runs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, runColumns, where, len(args)-1, len(args))

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// Count counts an owner's runs matching the filter, ignoring pagination
func (r *RunRepository) Count(ctx context.Context, ownerID uuid.UUID, filter models.RunFilter) (int, error) {
	where, args := runWhere(ownerID, filter)
	query := `SELECT COUNT(*) FROM runs WHERE ` + where

	var total int
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return total, nil
}

// DeleteByWorkflowID removes every run of a workflow
func (r *RunRepository) DeleteByWorkflowID(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM runs WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("runs deleted",
		zap.String("workflow_id", workflowID.String()),
		zap.Int64("count", deleted))
	return deleted, nil
}

func runWhere(ownerID uuid.UUID, filter models.RunFilter) (string, []interface{}) {
	clauses := []string{"owner_id = $1"}
	args := []interface{}{ownerID}
	if filter.WorkflowID != nil {
		args = append(args, *filter.WorkflowID)
		clauses = append(clauses, fmt.Sprintf("workflow_id = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}
	var outputs []byte
	err := row.Scan(
		&run.ID,
		&run.OwnerID,
		&run.WorkflowID,
		&run.WorkflowName,
		&run.InputText,
		&outputs,
		&run.ExecutionTimeMs,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(outputs, &run.StepOutputs); err != nil {
		return nil, fmt.Errorf("failed to decode step outputs: %w", err)
	}
	return run, nil
}
