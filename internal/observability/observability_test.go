package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json"},
		{name: "text debug", level: "DEBUG", format: "text"},
		{name: "bad level", level: "loud", format: "json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := WithRequestID(context.Background(), "req-123")
	LoggerFromContext(ctx, base).Info("hello")
	LoggerFromContext(context.Background(), base).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")

	_, ok := RequestIDFromContext(WithRequestID(context.Background(), ""))
	assert.False(t, ok)
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordAttempt(ctx, AttemptLabels{Provider: "gemini", Model: "m1", Outcome: "success"}, 10*time.Millisecond)
		}()
	}
	wg.Wait()

	c.RecordAttempt(ctx, AttemptLabels{Provider: "gemini", Model: "m1", Outcome: "transient"}, 5*time.Millisecond)
	c.RecordStep(ctx, StepLabels{Step: "summarize", State: "succeeded"}, time.Millisecond)
	c.RecordStep(ctx, StepLabels{Step: "clean-text", State: "succeeded"}, 0)

	snap := c.Snapshot()
	require.Len(t, snap.Attempts, 2)
	assert.Equal(t, "success", snap.Attempts[0].Labels["outcome"])
	assert.Equal(t, int64(10), snap.Attempts[0].Count)
	assert.Equal(t, int64(100), snap.Attempts[0].TotalLatency)
	assert.Equal(t, "transient", snap.Attempts[1].Labels["outcome"])

	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "clean-text", snap.Steps[0].Labels["step"])

	snap.Steps[0].Labels["step"] = "mutated"
	assert.Equal(t, "clean-text", c.Snapshot().Steps[0].Labels["step"])
}

func TestNopMetrics(t *testing.T) {
	var m Metrics = NopMetrics{}
	m.RecordAttempt(context.Background(), AttemptLabels{}, 0)
	m.RecordStep(context.Background(), StepLabels{}, 0)
}
