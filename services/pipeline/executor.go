package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/workflow-runner/internal/observability"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/services/heuristics"
	"github.com/upb/workflow-runner/services/providers"
	"github.com/upb/workflow-runner/services/routing"
)

// Config controls one pipeline execution. It is read-only during a run.
type Config struct {
	AllowLocalFallback bool
	PerRequestTimeout  time.Duration
	TotalTimeout       time.Duration
	MaxCandidates      int
	PrimaryModel       string
	FallbackModels     []string
}

// Chain returns the fallback chain settings carried by the config
func (c Config) Chain() routing.ChainConfig {
	return routing.ChainConfig{
		PrimaryModel:      c.PrimaryModel,
		FallbackModels:    c.FallbackModels,
		MaxCandidates:     c.MaxCandidates,
		PerRequestTimeout: c.PerRequestTimeout,
		TotalTimeout:      c.TotalTimeout,
	}
}

// Executor runs an ordered list of steps, feeding each step's output to the
// next one.
type Executor struct {
	client   providers.ProviderClient
	fallback heuristics.Fallback
	logger   *zap.Logger
	metrics  observability.Metrics
}

// NewExecutor creates a new pipeline executor
func NewExecutor(client providers.ProviderClient, fallback heuristics.Fallback, logger *zap.Logger, metrics observability.Metrics) *Executor {
	if fallback == nil {
		fallback = heuristics.Local{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Executor{
		client:   client,
		fallback: fallback,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute runs steps over input. It returns a complete result or a single
// *PipelineError; partial outputs are never returned.
func (e *Executor) Execute(ctx context.Context, rawSteps []string, input string, cfg Config) (*models.PipelineResult, error) {
	steps, err := parseSteps(rawSteps)
	if err != nil {
		return nil, err
	}

	logger := observability.LoggerFromContext(ctx, e.logger)
	start := time.Now()
	chain := routing.NewFallbackChain(cfg.Chain(), e.client, logger, e.metrics)

	logger.Info("starting pipeline",
		zap.Int("steps", len(steps)),
		zap.Int("input_length", len(input)),
		zap.Bool("allow_local_fallback", cfg.AllowLocalFallback))

	outputs := make([]models.StepOutput, 0, len(steps))
	current := input

	for i, step := range steps {
		run := &stepRun{step: step, position: i + 1, state: StatePending, logger: logger, start: time.Now()}
		run.moveTo(StateRunning)

		output, err := e.runStep(ctx, chain, run, current, cfg)
		e.metrics.RecordStep(ctx, observability.StepLabels{Step: string(step), State: string(run.outcome)}, time.Since(run.start))
		if err != nil {
			logger.Error("pipeline aborted",
				zap.Int("position", run.position),
				zap.String("step", string(step)),
				zap.Error(err))
			return nil, &PipelineError{Position: run.position, Step: string(step), Err: err}
		}

		outputs = append(outputs, models.StepOutput{StepName: step, Output: output})
		current = output
	}

	result := &models.PipelineResult{
		StepOutputs:     outputs,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}

	logger.Info("pipeline completed",
		zap.Int("steps", len(outputs)),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs))

	return result, nil
}

// runStep dispatches one step and applies its output normalization
func (e *Executor) runStep(ctx context.Context, chain *routing.FallbackChain, run *stepRun, text string, cfg Config) (string, error) {
	if !run.step.IsAIBacked() {
		output, _ := e.fallback.Apply(run.step, text)
		run.moveTo(StateSucceeded)
		return output, nil
	}

	prompt, err := BuildPrompt(run.step, text)
	if err != nil {
		run.moveTo(StateAborted)
		return "", err
	}

	output, err := e.generate(ctx, chain, run, prompt, text, cfg)
	if err != nil {
		return "", err
	}

	switch run.step {
	case models.StepSentimentAnalysis:
		output = heuristics.NormalizeSentiment(output)
	case models.StepGenerateTitle:
		output = heuristics.StripTitleQuotes(output)
	}
	return output, nil
}

// generate calls the fallback chain and degrades to the local heuristic when
// allowed and the failure is recoverable
func (e *Executor) generate(ctx context.Context, chain *routing.FallbackChain, run *stepRun, prompt, text string, cfg Config) (string, error) {
	resp, err := chain.Generate(ctx, prompt)
	if err == nil {
		run.moveTo(StateSucceeded)
		return strings.TrimSpace(resp.Text), nil
	}

	if !routing.IsRecoverable(err) {
		run.moveTo(StateAborted)
		return "", err
	}

	run.moveTo(StateRecoverable)
	if !cfg.AllowLocalFallback {
		run.moveTo(StateAborted)
		return "", err
	}

	output, ok := e.fallback.Apply(run.step, text)
	if !ok {
		run.moveTo(StateAborted)
		return "", errors.Join(err, fmt.Errorf("no local fallback for step %s", run.step))
	}

	run.logger.Warn("falling back to local processing",
		zap.String("step", string(run.step)),
		zap.Error(err))
	run.moveTo(StateLocalFallback)
	run.moveTo(StateSucceeded)
	return output, nil
}

// stepRun is the dispatch state of one step
type stepRun struct {
	step     models.StepIdentifier
	position int
	state    StepState
	outcome  StepState
	logger   *zap.Logger
	start    time.Time
}

func (r *stepRun) moveTo(next StepState) {
	if !CanTransition(r.state, next) {
		r.logger.Warn("illegal step state transition",
			zap.String("step", string(r.step)),
			zap.String("from", string(r.state)),
			zap.String("to", string(next)))
	}
	r.logger.Debug("step state",
		zap.Int("position", r.position),
		zap.String("step", string(r.step)),
		zap.String("from", string(r.state)),
		zap.String("to", string(next)))

	// The metric label keeps the most informative state on the way to a terminal one.
	if next == StateLocalFallback || (next.Terminal() && r.outcome != StateLocalFallback) {
		r.outcome = next
	}
	r.state = next
}
