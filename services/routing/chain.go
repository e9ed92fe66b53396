package routing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/workflow-runner/internal/observability"
	"github.com/upb/workflow-runner/services/providers"
)

// ChainConfig holds the candidate list and time budgets of a FallbackChain
type ChainConfig struct {
	// PrimaryModel is always tried first
	PrimaryModel string

	// FallbackModels are tried in order after the primary
	FallbackModels []string

	// MaxCandidates caps the deduplicated candidate list
	MaxCandidates int

	// PerRequestTimeout bounds a single provider request
	PerRequestTimeout time.Duration

	// TotalTimeout bounds the whole Generate call
	TotalTimeout time.Duration
}

// Candidates returns the deduplicated, capped candidate list
func (c ChainConfig) Candidates() []string {
	return BuildCandidates(c.PrimaryModel, c.FallbackModels, c.MaxCandidates)
}

// FallbackChain drives a ProviderClient across candidate models until one
// succeeds, a failure aborts the chain, or the budget runs out.
type FallbackChain struct {
	config  ChainConfig
	client  providers.ProviderClient
	logger  *zap.Logger
	metrics observability.Metrics
	now     func() time.Time
}

// NewFallbackChain creates a new fallback chain
func NewFallbackChain(config ChainConfig, client providers.ProviderClient, logger *zap.Logger, metrics observability.Metrics) *FallbackChain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &FallbackChain{
		config:  config,
		client:  client,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Generate sends prompt to each candidate in order and returns the first
// non-empty response.
func (c *FallbackChain) Generate(ctx context.Context, prompt string) (*providers.GenerateResponse, error) {
	candidates := c.config.Candidates()
	if len(candidates) == 0 {
		return nil, &NoAvailableProviderError{}
	}

	start := c.now()
	var deadline time.Time
	if c.config.TotalTimeout > 0 {
		deadline = start.Add(c.config.TotalTimeout)
	}

	var (
		quotaSeen  bool
		retryAfter *int
		last       *ProviderFailure
		attempted  = make([]string, 0, len(candidates))
	)

	for _, model := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now := c.now()
		if !deadline.IsZero() && !now.Before(deadline) {
			c.logger.Warn("fallback chain budget exhausted",
				zap.Duration("budget", c.config.TotalTimeout),
				zap.Strings("attempted", attempted),
			)
			return nil, &TimeoutError{
				Budget:   c.config.TotalTimeout,
				Elapsed:  now.Sub(start),
				Attempts: attempted,
				Last:     failureOrNil(last),
			}
		}

		attempted = append(attempted, model)
		attemptStart := c.now()
		resp, err := c.attempt(ctx, model, prompt, c.requestDeadline(now, deadline))
		latency := c.now().Sub(attemptStart)

		if err == nil {
			c.record(ctx, model, "success", latency)
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		failure := ClassifyError(model, err)
		last = failure
		c.record(ctx, model, string(failure.Kind), latency)

		switch failure.Kind {
		case KindNotFound, KindTransient:
			c.logger.Warn("candidate model failed, trying next",
				zap.String("model", model),
				zap.String("kind", string(failure.Kind)),
				zap.Int("status", failure.StatusCode),
				zap.String("message", failure.Message),
			)
		case KindQuotaExceeded:
			quotaSeen = true
			if retryAfter == nil && failure.RetryAfterSeconds != nil {
				v := *failure.RetryAfterSeconds
				retryAfter = &v
			}
			c.logger.Warn("candidate model quota exceeded, trying next",
				zap.String("model", model),
				zap.String("message", failure.Message),
			)
		default:
			c.logger.Error("candidate model failed, aborting chain",
				zap.String("model", model),
				zap.String("kind", string(failure.Kind)),
				zap.Int("status", failure.StatusCode),
				zap.String("message", failure.Message),
			)
			return nil, failure
		}
	}

	if quotaSeen {
		return nil, &ProviderFailure{
			Kind:              KindQuotaExceeded,
			Message:           "quota exceeded for every candidate model",
			StatusCode:        http.StatusTooManyRequests,
			RetryAfterSeconds: retryAfter,
		}
	}
	return nil, &NoAvailableProviderError{Candidates: attempted, Last: failureOrNil(last)}
}

// requestDeadline is the earlier of the per-request bound and the chain deadline
func (c *FallbackChain) requestDeadline(now, chainDeadline time.Time) time.Time {
	var reqDeadline time.Time
	if c.config.PerRequestTimeout > 0 {
		reqDeadline = now.Add(c.config.PerRequestTimeout)
	}
	if reqDeadline.IsZero() || (!chainDeadline.IsZero() && chainDeadline.Before(reqDeadline)) {
		reqDeadline = chainDeadline
	}
	return reqDeadline
}

type attemptResult struct {
	resp *providers.GenerateResponse
	err  error
}

// attempt issues one request and races it against its deadline
func (c *FallbackChain) attempt(ctx context.Context, model, prompt string, deadline time.Time) (*providers.GenerateResponse, error) {
	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	var budget time.Duration
	if !deadline.IsZero() {
		budget = deadline.Sub(c.now())
		reqCtx, cancel = context.WithDeadline(ctx, deadline)
	}
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		resp, err := c.client.Generate(reqCtx, &providers.GenerateRequest{Model: model, Prompt: prompt})
		done <- attemptResult{resp: resp, err: err}
	}()

	var res attemptResult
	select {
	case res = <-done:
	case <-reqCtx.Done():
		res = attemptResult{err: reqCtx.Err()}
	}

	if res.err != nil {
		if ctx.Err() == nil && reqCtx.Err() != nil {
			return nil, timeoutFailure(model, budget)
		}
		return nil, res.err
	}
	if res.resp == nil || strings.TrimSpace(res.resp.Text) == "" {
		return nil, &ProviderFailure{
			Kind:       KindFatal,
			Model:      model,
			Message:    fmt.Sprintf("empty response from model %s", model),
			StatusCode: http.StatusBadGateway,
		}
	}
	return res.resp, nil
}

func timeoutFailure(model string, budget time.Duration) *ProviderFailure {
	return &ProviderFailure{
		Kind:       KindTransient,
		Model:      model,
		Message:    fmt.Sprintf("request timed out after %dms for model %s", budget.Milliseconds(), model),
		StatusCode: http.StatusGatewayTimeout,
	}
}

func (c *FallbackChain) record(ctx context.Context, model, outcome string, latency time.Duration) {
	c.metrics.RecordAttempt(ctx, observability.AttemptLabels{
		Provider: c.client.Name(),
		Model:    model,
		Outcome:  outcome,
	}, latency)
}

func failureOrNil(f *ProviderFailure) error {
	if f == nil {
		return nil
	}
	return f
}
