package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/workflow-runner/models"
)

// ErrNotFound is wrapped by repositories when a row does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// WorkflowRepository handles workflow data operations
type WorkflowRepository interface {
	// Create creates a new workflow
	Create(ctx context.Context, wf *models.Workflow) error

	// GetByID retrieves a workflow by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)

	// ListByOwner retrieves an owner's workflows, newest first
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Workflow, error)

	// Update updates a workflow's name, steps and template flag
	Update(ctx context.Context, wf *models.Workflow) error

	// Delete deletes a workflow
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunRepository handles run history data operations
type RunRepository interface {
	// Create stores a completed run
	Create(ctx context.Context, run *models.Run) error

	// GetByID retrieves a run by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error)

	// List retrieves an owner's runs matching the filter, newest first
	List(ctx context.Context, ownerID uuid.UUID, filter models.RunFilter) ([]*models.Run, error)

	// Count counts an owner's runs matching the filter, ignoring pagination
	Count(ctx context.Context, ownerID uuid.UUID, filter models.RunFilter) (int, error)

	// DeleteByWorkflowID removes every run of a workflow
	DeleteByWorkflowID(ctx context.Context, workflowID uuid.UUID) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Workflows WorkflowRepository
	Runs      RunRepository
}
