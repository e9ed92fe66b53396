package models

import (
	"time"

	"github.com/google/uuid"
)

// Workflow is a named, ordered list of steps owned by a single owner.
type Workflow struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OwnerID    uuid.UUID `json:"owner_id" db:"owner_id"`
	Name       string    `json:"name" db:"name"`
	Steps      []string  `json:"steps" db:"steps"`
	IsTemplate bool      `json:"is_template" db:"is_template"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Workflow model
func (Workflow) TableName() string {
	return "workflows"
}

// NewWorkflow creates a new Workflow instance
func NewWorkflow(ownerID uuid.UUID, name string, steps []string) *Workflow {
	now := time.Now()
	return &Workflow{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		Steps:     append([]string(nil), steps...),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Duplicate returns a copy of the workflow under a new id, name and owner.
func (w *Workflow) Duplicate(ownerID uuid.UUID, name string) *Workflow {
	return NewWorkflow(ownerID, name, w.Steps)
}

// Touch bumps the update timestamp
func (w *Workflow) Touch() {
	w.UpdatedAt = time.Now()
}
