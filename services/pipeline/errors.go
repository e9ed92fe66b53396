package pipeline

import (
	"errors"
	"fmt"

	"github.com/upb/workflow-runner/models"
)

// ErrInvalidStepCount is returned when a step list is outside [MinSteps, MaxSteps]
var ErrInvalidStepCount = fmt.Errorf("a workflow needs between %d and %d steps", models.MinSteps, models.MaxSteps)

// UnknownStepError reports a step identifier outside the catalog
type UnknownStepError struct {
	Step string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step %q", e.Step)
}

// PipelineError is the single error of a failed pipeline run. It names the
// failing step and its 1-based position.
type PipelineError struct {
	Position int
	Step     string
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Position, e.Step, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsUnknownStep reports whether err carries an UnknownStepError
func IsUnknownStep(err error) bool {
	var unknown *UnknownStepError
	return errors.As(err, &unknown)
}

// ValidateSteps checks the step count and that every identifier is known.
// It returns the parsed identifiers.
func ValidateSteps(raw []string) ([]models.StepIdentifier, error) {
	if len(raw) < models.MinSteps || len(raw) > models.MaxSteps {
		return nil, ErrInvalidStepCount
	}
	return parseSteps(raw)
}

func parseSteps(raw []string) ([]models.StepIdentifier, error) {
	steps := make([]models.StepIdentifier, len(raw))
	for i, r := range raw {
		step, err := models.ParseStep(r)
		if err != nil {
			return nil, &PipelineError{Position: i + 1, Step: r, Err: &UnknownStepError{Step: r}}
		}
		steps[i] = step
	}
	return steps, nil
}
