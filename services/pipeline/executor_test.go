package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/upb/workflow-runner/internal/observability"
	"github.com/upb/workflow-runner/models"
	"github.com/upb/workflow-runner/services/heuristics"
	"github.com/upb/workflow-runner/services/providers"
	"github.com/upb/workflow-runner/services/routing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient answers every request with the result of respond
type fakeClient struct {
	mu      sync.Mutex
	prompts []string
	models  []string
	respond func(model, prompt string) (string, error)
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.models = append(f.models, req.Model)
	f.mu.Unlock()

	text, err := f.respond(req.Model, req.Prompt)
	if err != nil {
		return nil, err
	}
	return &providers.GenerateResponse{Text: text, Model: req.Model, Provider: "fake"}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// countingFallback wraps Local and counts invocations
type countingFallback struct {
	mu    sync.Mutex
	calls int
}

func (c *countingFallback) Apply(step models.StepIdentifier, text string) (string, bool) {
	c.mu.Lock()
	if step.IsAIBacked() {
		c.calls++
	}
	c.mu.Unlock()
	return heuristics.Local{}.Apply(step, text)
}

func (c *countingFallback) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func providerErr(status int, msg string) error {
	return providers.NewProviderError("fake", "", "", msg, status, nil)
}

func testConfig(allowLocal bool) Config {
	return Config{
		AllowLocalFallback: allowLocal,
		PerRequestTimeout:  time.Second,
		TotalTimeout:       5 * time.Second,
		MaxCandidates:      2,
		PrimaryModel:       "primary",
		FallbackModels:     []string{"secondary"},
	}
}

func TestExecute_EndToEndWithUnavailableProvider(t *testing.T) {
	client := &fakeClient{respond: func(string, string) (string, error) {
		return "", providerErr(503, "Service Unavailable")
	}}
	exec := NewExecutor(client, nil, zaptest.NewLogger(t), nil)

	result, err := exec.Execute(context.Background(),
		[]string{"clean-text", "sentiment-analysis"},
		"  This   is bad.  \n\n",
		testConfig(true))
	require.NoError(t, err)

	assert.Equal(t, []models.StepOutput{
		{StepName: models.StepCleanText, Output: "This is bad."},
		{StepName: models.StepSentimentAnalysis, Output: "Negative"},
	}, result.StepOutputs)
	assert.GreaterOrEqual(t, result.ExecutionTimeMs, int64(0))
	assert.Equal(t, 2, client.callCount())
}

func TestExecute_ChainsOutputToNextInput(t *testing.T) {
	client := &fakeClient{respond: func(_, prompt string) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "Summarize"):
			return "  The summary.  ", nil
		case strings.HasPrefix(prompt, "Write a clear"):
			return `"Summary Title"`, nil
		default:
			return "Positive overall", nil
		}
	}}
	exec := NewExecutor(client, nil, zaptest.NewLogger(t), nil)

	result, err := exec.Execute(context.Background(),
		[]string{"clean_text", "summarize", "generate-title", "sentiment-analysis"},
		"Some   long text.",
		testConfig(false))
	require.NoError(t, err)
	require.Len(t, result.StepOutputs, 4)

	wantOrder := []models.StepIdentifier{models.StepCleanText, models.StepSummarize, models.StepGenerateTitle, models.StepSentimentAnalysis}
	for i, out := range result.StepOutputs {
		assert.Equal(t, wantOrder[i], out.StepName)
	}

	assert.Equal(t, "Some long text.", result.StepOutputs[0].Output)
	assert.Equal(t, "The summary.", result.StepOutputs[1].Output)
	assert.Equal(t, "Summary Title", result.StepOutputs[2].Output)
	assert.Equal(t, "Positive", result.StepOutputs[3].Output)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.prompts, 3)
	assert.True(t, strings.HasSuffix(client.prompts[0], "\nSome long text."))
	assert.True(t, strings.HasSuffix(client.prompts[1], "\nThe summary."))
	assert.True(t, strings.HasSuffix(client.prompts[2], "\nSummary Title"))
}

func TestExecute_CleanTextNeverCallsProvider(t *testing.T) {
	client := &fakeClient{respond: func(string, string) (string, error) {
		t.Fatal("provider must not be called")
		return "", nil
	}}
	exec := NewExecutor(client, nil, zaptest.NewLogger(t), nil)

	result, err := exec.Execute(context.Background(), []string{"clean-text", "clean-text"}, " a \n b ", testConfig(false))
	require.NoError(t, err)
	assert.Equal(t, "a b", result.FinalOutput())
}

func TestExecute_UnknownStepRejectedUpFront(t *testing.T) {
	client := &fakeClient{respond: func(string, string) (string, error) { return "x", nil }}
	exec := NewExecutor(client, nil, zaptest.NewLogger(t), nil)

	result, err := exec.Execute(context.Background(), []string{"summarize", "translate"}, "text", testConfig(false))

	assert.Nil(t, result)
	var pipeErr *PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, 2, pipeErr.Position)
	assert.Equal(t, "translate", pipeErr.Step)
	assert.True(t, IsUnknownStep(err))
	assert.Equal(t, 0, client.callCount())
}

func TestExecute_LocalFallbackGating(t *testing.T) {
	quota := func(string, string) (string, error) {
		return "", providerErr(429, "Quota exceeded, retry after 20s")
	}

	t.Run("disabled surfaces quota error", func(t *testing.T) {
		fb := &countingFallback{}
		exec := NewExecutor(&fakeClient{respond: quota}, fb, zaptest.NewLogger(t), nil)

		result, err := exec.Execute(context.Background(), []string{"clean-text", "sentiment-analysis"}, "This is a great improvement", testConfig(false))

		assert.Nil(t, result)
		assert.ErrorIs(t, err, routing.ErrQuotaExceeded)
		var failure *routing.ProviderFailure
		require.ErrorAs(t, err, &failure)
		require.NotNil(t, failure.RetryAfterSeconds)
		assert.Equal(t, 20, *failure.RetryAfterSeconds)
		assert.Equal(t, 0, fb.count())
	})

	t.Run("enabled returns heuristic output", func(t *testing.T) {
		fb := &countingFallback{}
		exec := NewExecutor(&fakeClient{respond: quota}, fb, zaptest.NewLogger(t), nil)

		result, err := exec.Execute(context.Background(), []string{"clean-text", "sentiment-analysis"}, "This is a great improvement", testConfig(true))
		require.NoError(t, err)

		assert.Equal(t, "Positive", result.FinalOutput())
		assert.Equal(t, 1, fb.count())
	})
}

func TestExecute_AuthFailureShortCircuits(t *testing.T) {
	client := &fakeClient{respond: func(string, string) (string, error) {
		return "", providerErr(401, "API key not valid")
	}}
	fb := &countingFallback{}
	exec := NewExecutor(client, fb, zaptest.NewLogger(t), nil)

	result, err := exec.Execute(context.Background(), []string{"summarize", "generate-title"}, "text", testConfig(true))

	assert.Nil(t, result)
	assert.ErrorIs(t, err, routing.ErrAuthFailure)
	var pipeErr *PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, 1, pipeErr.Position)
	assert.Equal(t, "summarize", pipeErr.Step)
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 0, fb.count())
}

func TestExecute_AbortStopsLaterSteps(t *testing.T) {
	calls := 0
	client := &fakeClient{respond: func(string, string) (string, error) {
		calls++
		if calls == 1 {
			return "first", nil
		}
		return "", providerErr(400, "invalid argument")
	}}
	exec := NewExecutor(client, nil, zaptest.NewLogger(t), nil)

	_, err := exec.Execute(context.Background(), []string{"summarize", "rewrite-professional", "generate-title"}, "text", testConfig(true))

	var pipeErr *PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, 2, pipeErr.Position)
	assert.ErrorIs(t, err, routing.ErrFatal)
	assert.Equal(t, 2, client.callCount())
}

func TestExecute_TimeoutIsNotDegraded(t *testing.T) {
	client := &fakeClient{respond: func(string, string) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "", providerErr(503, "overloaded")
	}}
	fb := &countingFallback{}
	exec := NewExecutor(client, fb, zaptest.NewLogger(t), nil)

	cfg := testConfig(true)
	cfg.MaxCandidates = 3
	cfg.FallbackModels = []string{"secondary", "tertiary"}
	cfg.TotalTimeout = 10 * time.Millisecond
	cfg.PerRequestTimeout = 5 * time.Millisecond

	_, err := exec.Execute(context.Background(), []string{"summarize", "generate-title"}, "text", cfg)

	var timeoutErr *routing.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 0, fb.count())

	// let the abandoned provider calls finish before goleak checks
	time.Sleep(50 * time.Millisecond)
}

func TestExecute_CallerCancellation(t *testing.T) {
	client := &fakeClient{respond: func(string, string) (string, error) { return "x", nil }}
	exec := NewExecutor(client, nil, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, []string{"clean-text", "summarize"}, "text", testConfig(true))

	assert.True(t, errors.Is(err, context.Canceled))
	var pipeErr *PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, 2, pipeErr.Position)
}

func TestExecute_RecordsStepMetrics(t *testing.T) {
	client := &fakeClient{respond: func(string, string) (string, error) {
		return "", providerErr(404, "no such model")
	}}
	metrics := observability.NewCollector()
	exec := NewExecutor(client, nil, zaptest.NewLogger(t), metrics)

	_, err := exec.Execute(context.Background(), []string{"clean-text", "tag-category"}, "software company", testConfig(true))
	require.NoError(t, err)

	states := map[string]string{}
	for _, c := range metrics.Snapshot().Steps {
		states[c.Labels["step"]] = c.Labels["state"]
	}
	assert.Equal(t, "succeeded", states["clean-text"])
	assert.Equal(t, "local_fallback", states["tag-category"])
}

func TestValidateSteps(t *testing.T) {
	tests := []struct {
		name    string
		steps   []string
		wantErr error
		unknown bool
	}{
		{name: "two steps", steps: []string{"clean-text", "summarize"}},
		{name: "four steps", steps: []string{"clean-text", "summarize", "tag-category", "generate-title"}},
		{name: "one step", steps: []string{"clean-text"}, wantErr: ErrInvalidStepCount},
		{name: "five steps", steps: []string{"clean-text", "clean-text", "clean-text", "clean-text", "clean-text"}, wantErr: ErrInvalidStepCount},
		{name: "unknown", steps: []string{"clean-text", "bogus"}, unknown: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateSteps(tt.steps)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.unknown:
				assert.True(t, IsUnknownStep(err))
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatePending, StateRunning))
	assert.True(t, CanTransition(StateRunning, StateRecoverable))
	assert.True(t, CanTransition(StateRecoverable, StateLocalFallback))
	assert.True(t, CanTransition(StateLocalFallback, StateSucceeded))
	assert.False(t, CanTransition(StateSucceeded, StateRunning))
	assert.False(t, CanTransition(StatePending, StateSucceeded))
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateRecoverable.Terminal())
}

func TestBuildPrompt(t *testing.T) {
	for _, d := range models.StepCatalog {
		prompt, err := BuildPrompt(d.ID, "INPUT")
		if !d.AIBacked {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(prompt, "\nINPUT"), d.ID)
	}
}
