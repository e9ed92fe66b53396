package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/upb/workflow-runner/internal/observability"
	"github.com/upb/workflow-runner/services/providers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedReply func(ctx context.Context) (string, error)

// scriptedClient answers per model and records the order of calls
type scriptedClient struct {
	mu      sync.Mutex
	replies map[string]scriptedReply
	calls   []string
}

func newScriptedClient(replies map[string]scriptedReply) *scriptedClient {
	return &scriptedClient{replies: replies}
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req.Model)
	reply, ok := c.replies[req.Model]
	c.mu.Unlock()

	if !ok {
		return nil, providers.NewProviderError("scripted", req.Model, "", "no such model", 404, nil)
	}
	text, err := reply(ctx)
	if err != nil {
		return nil, err
	}
	return &providers.GenerateResponse{Text: text, Model: req.Model, Provider: "scripted"}, nil
}

func (c *scriptedClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func ok(text string) scriptedReply {
	return func(context.Context) (string, error) { return text, nil }
}

func fail(status int, message string) scriptedReply {
	return func(context.Context) (string, error) {
		return "", providers.NewProviderError("scripted", "", "", message, status, nil)
	}
}

func hang() scriptedReply {
	return func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
}

func chainConfig(models ...string) ChainConfig {
	return ChainConfig{
		PrimaryModel:      models[0],
		FallbackModels:    models[1:],
		MaxCandidates:     len(models),
		PerRequestTimeout: time.Second,
		TotalTimeout:      5 * time.Second,
	}
}

func TestBuildCandidates(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		fallbacks []string
		max       int
		want      []string
	}{
		{name: "primary only", primary: "a", max: 2, want: []string{"a"}},
		{name: "dedup preserves order", primary: "a", fallbacks: []string{"b", "a", "c", "b"}, max: 5, want: []string{"a", "b", "c"}},
		{name: "cap applied after dedup", primary: "a", fallbacks: []string{"a", "b", "c"}, max: 2, want: []string{"a", "b"}},
		{name: "blanks and spaces dropped", primary: " a ", fallbacks: []string{"", "  ", "a", " b"}, max: 3, want: []string{"a", "b"}},
		{name: "zero cap means no cap", primary: "a", fallbacks: []string{"b", "c"}, max: 0, want: []string{"a", "b", "c"}},
		{name: "empty primary", primary: "", fallbacks: []string{"b"}, max: 2, want: []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCandidates(tt.primary, tt.fallbacks, tt.max)
			assert.Equal(t, tt.want, got)
			if tt.max > 0 {
				assert.LessOrEqual(t, len(got), tt.max)
			}
		})
	}
}

func TestFallbackChain_PrimarySucceeds(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1": ok("hello"),
		"m2": ok("unused"),
	})
	metrics := observability.NewCollector()
	chain := NewFallbackChain(chainConfig("m1", "m2"), client, zaptest.NewLogger(t), metrics)

	resp, err := chain.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, []string{"m1"}, client.Calls())

	snap := metrics.Snapshot()
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, "success", snap.Attempts[0].Labels["outcome"])
}

func TestFallbackChain_AdvancesOnNotFoundAndTransient(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m2": fail(503, "Service Unavailable"),
		"m3": ok("third time lucky"),
	})
	chain := NewFallbackChain(chainConfig("m1", "m2", "m3"), client, zaptest.NewLogger(t), nil)

	resp, err := chain.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, "third time lucky", resp.Text)
	assert.Equal(t, []string{"m1", "m2", "m3"}, client.Calls())
}

func TestFallbackChain_AllTransientTerminates(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		models := make([]string, n)
		replies := make(map[string]scriptedReply, n)
		for i := range models {
			models[i] = string(rune('a' + i))
			replies[models[i]] = fail(503, "overloaded")
		}
		client := newScriptedClient(replies)
		chain := NewFallbackChain(chainConfig(models...), client, zaptest.NewLogger(t), nil)

		_, err := chain.Generate(context.Background(), "prompt")

		var noProvider *NoAvailableProviderError
		require.ErrorAs(t, err, &noProvider)
		assert.Equal(t, models, noProvider.Candidates)
		assert.Len(t, client.Calls(), n)
		assert.Contains(t, err.Error(), "Tried: ")
		assert.True(t, IsRecoverable(err))
	}
}

func TestFallbackChain_QuotaAggregationFirstHintWins(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1": fail(429, "Too many requests"),
		"m2": fail(429, "Quota exceeded, retry after 10s"),
		"m3": fail(503, "temporarily unavailable"),
		"m4": fail(429, "Quota exceeded, retry after 30s"),
	})
	chain := NewFallbackChain(chainConfig("m1", "m2", "m3", "m4"), client, zaptest.NewLogger(t), nil)

	_, err := chain.Generate(context.Background(), "prompt")
	require.Error(t, err)

	var failure *ProviderFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindQuotaExceeded, failure.Kind)
	require.NotNil(t, failure.RetryAfterSeconds)
	assert.Equal(t, 10, *failure.RetryAfterSeconds)
	assert.Contains(t, err.Error(), "Retry after about 10 seconds.")
	assert.NotErrorIs(t, err, ErrTransient)
	assert.Len(t, client.Calls(), 4)
}

func TestFallbackChain_QuotaWithoutHint(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1": fail(429, "Too many requests"),
	})
	chain := NewFallbackChain(chainConfig("m1", "m2"), client, zaptest.NewLogger(t), nil)

	_, err := chain.Generate(context.Background(), "prompt")

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	var failure *ProviderFailure
	require.ErrorAs(t, err, &failure)
	assert.Nil(t, failure.RetryAfterSeconds)
}

func TestFallbackChain_AbortsImmediately(t *testing.T) {
	tests := []struct {
		name  string
		reply scriptedReply
		want  error
	}{
		{name: "auth failure", reply: fail(401, "unauthorized"), want: ErrAuthFailure},
		{name: "fatal", reply: fail(400, "invalid argument"), want: ErrFatal},
		{name: "empty text", reply: ok("   \n"), want: ErrFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newScriptedClient(map[string]scriptedReply{
				"m1": tt.reply,
				"m2": ok("never reached"),
			})
			chain := NewFallbackChain(chainConfig("m1", "m2"), client, zaptest.NewLogger(t), nil)

			_, err := chain.Generate(context.Background(), "prompt")

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, []string{"m1"}, client.Calls())
			assert.False(t, IsRecoverable(err))
		})
	}
}

func TestFallbackChain_PerRequestTimeoutIsTransient(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"slow": hang(),
		"fast": ok("done"),
	})
	cfg := chainConfig("slow", "fast")
	cfg.PerRequestTimeout = 20 * time.Millisecond
	metrics := observability.NewCollector()
	chain := NewFallbackChain(cfg, client, zaptest.NewLogger(t), metrics)

	resp, err := chain.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, []string{"slow", "fast"}, client.Calls())

	outcomes := map[string]string{}
	for _, c := range metrics.Snapshot().Attempts {
		outcomes[c.Labels["model"]] = c.Labels["outcome"]
	}
	assert.Equal(t, "transient", outcomes["slow"])
	assert.Equal(t, "success", outcomes["fast"])
}

func TestFallbackChain_TotalTimeout(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1": hang(),
		"m2": hang(),
		"m3": ok("too late"),
	})
	cfg := chainConfig("m1", "m2", "m3")
	cfg.PerRequestTimeout = 20 * time.Millisecond
	cfg.TotalTimeout = 30 * time.Millisecond
	chain := NewFallbackChain(cfg, client, zaptest.NewLogger(t), nil)

	_, err := chain.Generate(context.Background(), "prompt")

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, []string{"m1", "m2"}, timeoutErr.Attempts)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Contains(t, timeoutErr.Last.Error(), "request timed out after")
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, []string{"m1", "m2"}, client.Calls())
}

func TestFallbackChain_CallerCancellation(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"m1": hang(),
		"m2": ok("unused"),
	})
	chain := NewFallbackChain(chainConfig("m1", "m2"), client, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := chain.Generate(ctx, "prompt")

	assert.True(t, errors.Is(err, context.Canceled))
	_, classified := KindOf(err)
	assert.False(t, classified)
	assert.Equal(t, []string{"m1"}, client.Calls())
}

func TestFallbackChain_NoCandidates(t *testing.T) {
	chain := NewFallbackChain(ChainConfig{MaxCandidates: 2}, newScriptedClient(nil), nil, nil)

	_, err := chain.Generate(context.Background(), "prompt")

	var noProvider *NoAvailableProviderError
	assert.ErrorAs(t, err, &noProvider)
}
