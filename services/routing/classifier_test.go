package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/workflow-runner/services/providers"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    FailureKind
	}{
		{name: "404 status", status: 404, message: "", want: KindNotFound},
		{name: "not found message", status: 400, message: "models/foo is not found for API version v1beta", want: KindNotFound},
		{name: "no such model", status: 0, message: "No such model: bar", want: KindNotFound},
		{name: "model unavailable", status: 0, message: "model unavailable in region", want: KindNotFound},
		{name: "not supported", status: 400, message: "generateContent is not supported", want: KindNotFound},
		{name: "429 status", status: 429, message: "", want: KindQuotaExceeded},
		{name: "rate limit message", status: 0, message: "Rate limit reached", want: KindQuotaExceeded},
		{name: "resource exhausted", status: 0, message: "RESOURCE EXHAUSTED", want: KindQuotaExceeded},
		{name: "gemini exhausted wording", status: 0, message: "Resource has been exhausted (e.g. check quota).", want: KindQuotaExceeded},
		{name: "quota exceeded beats 404", status: 404, message: "Quota exceeded for metric", want: KindQuotaExceeded},
		{name: "quota exceeded beats 401", status: 401, message: "quota exceeded", want: KindQuotaExceeded},
		{name: "500", status: 500, message: "", want: KindTransient},
		{name: "502", status: 502, message: "", want: KindTransient},
		{name: "503", status: 503, message: "", want: KindTransient},
		{name: "504", status: 504, message: "", want: KindTransient},
		{name: "408", status: 408, message: "", want: KindTransient},
		{name: "402", status: 402, message: "", want: KindTransient},
		{name: "timed out message", status: 0, message: "request timed out", want: KindTransient},
		{name: "temporarily message", status: 0, message: "The service is temporarily overloaded", want: KindTransient},
		{name: "service unavailable", status: 0, message: "Service Unavailable", want: KindTransient},
		{name: "internal error", status: 0, message: "An internal error has occurred", want: KindTransient},
		{name: "401", status: 401, message: "", want: KindAuthFailure},
		{name: "403", status: 403, message: "", want: KindAuthFailure},
		{name: "api key message", status: 400, message: "API key not valid. Please pass a valid API key.", want: KindAuthFailure},
		{name: "permission message", status: 0, message: "Permission denied on resource", want: KindAuthFailure},
		{name: "bad request", status: 400, message: "invalid argument", want: KindFatal},
		{name: "nothing", status: 0, message: "", want: KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status, tt.message))
		})
	}
}

func TestClassify_IsTotal(t *testing.T) {
	valid := map[FailureKind]bool{
		KindNotFound: true, KindQuotaExceeded: true, KindTransient: true, KindAuthFailure: true, KindFatal: true,
	}
	messages := []string{"", "x", "quota exceeded", "timeout", "forbidden", "not found", "\x00\xff"}
	for status := 0; status < 600; status += 7 {
		for _, msg := range messages {
			kind := Classify(status, msg)
			assert.True(t, valid[kind], "status %d message %q gave %q", status, msg, kind)
			assert.Equal(t, kind, Classify(status, msg))
		}
	}
	for _, status := range []int{0, 200, 404, 429, 500} {
		assert.Equal(t, KindQuotaExceeded, Classify(status, "Quota Exceeded for project"))
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		message string
		want    int
		ok      bool
	}{
		{message: "Please retry after 7s", want: 7, ok: true},
		{message: "Please retry in 12.2s.", want: 13, ok: true},
		{message: "RETRY IN 0.5 seconds", want: 1, ok: true},
		{message: "retry later", ok: false},
		{message: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Run("provider error with retry hint", func(t *testing.T) {
		err := providers.NewProviderError("gemini", "m1", "RESOURCE_EXHAUSTED", "Quota exceeded. Please retry in 3.4s.", 429, nil)

		f := ClassifyError("m1", err)

		assert.Equal(t, KindQuotaExceeded, f.Kind)
		assert.Equal(t, 429, f.StatusCode)
		assert.Equal(t, "m1", f.Model)
		require.NotNil(t, f.RetryAfterSeconds)
		assert.Equal(t, 4, *f.RetryAfterSeconds)
		assert.ErrorIs(t, f, ErrQuotaExceeded)
		assert.ErrorIs(t, f, err)
	})

	t.Run("already classified passes through", func(t *testing.T) {
		orig := &ProviderFailure{Kind: KindFatal, Model: "m0", Message: "empty"}
		wrapped := fmt.Errorf("wrapped: %w", orig)

		assert.Same(t, orig, ClassifyError("m1", wrapped))
	})

	t.Run("plain deadline is transient", func(t *testing.T) {
		f := ClassifyError("m1", context.DeadlineExceeded)

		assert.Equal(t, KindTransient, f.Kind)
		assert.Equal(t, 504, f.StatusCode)
	})

	t.Run("plain error is fatal", func(t *testing.T) {
		f := ClassifyError("m1", errors.New("something odd"))

		assert.Equal(t, KindFatal, f.Kind)
		assert.Nil(t, f.RetryAfterSeconds)
	})
}

func TestProviderFailure_IsAndError(t *testing.T) {
	secs := 9
	f := &ProviderFailure{Kind: KindQuotaExceeded, Model: "m", Message: "quota exceeded", RetryAfterSeconds: &secs}

	assert.ErrorIs(t, f, ErrQuotaExceeded)
	assert.NotErrorIs(t, f, ErrTransient)
	assert.Equal(t, "quota_exceeded (model m): quota exceeded Retry after about 9 seconds.", f.Error())
	assert.Equal(t, 9_000_000_000, int(f.RetryAfter()))

	kind, ok := KindOf(fmt.Errorf("step failed: %w", f))
	assert.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: &ProviderFailure{Kind: KindNotFound}, want: true},
		{name: "transient", err: &ProviderFailure{Kind: KindTransient}, want: true},
		{name: "quota", err: &ProviderFailure{Kind: KindQuotaExceeded}, want: true},
		{name: "auth", err: &ProviderFailure{Kind: KindAuthFailure}, want: false},
		{name: "fatal", err: &ProviderFailure{Kind: KindFatal}, want: false},
		{name: "no provider", err: &NoAvailableProviderError{Candidates: []string{"a"}}, want: true},
		{name: "timeout", err: &TimeoutError{Last: &ProviderFailure{Kind: KindTransient}}, want: false},
		{name: "cancellation", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
}
