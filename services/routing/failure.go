package routing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FailureKind is the classification of a provider failure
type FailureKind string

const (
	// KindNotFound means the model does not exist or is unsupported
	KindNotFound FailureKind = "not_found"

	// KindQuotaExceeded means the caller ran out of quota or was rate limited
	KindQuotaExceeded FailureKind = "quota_exceeded"

	// KindTransient means the failure may succeed on another attempt or model
	KindTransient FailureKind = "transient"

	// KindAuthFailure means credentials were rejected
	KindAuthFailure FailureKind = "auth_failure"

	// KindFatal covers everything else
	KindFatal FailureKind = "fatal"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound      = &ProviderFailure{Kind: KindNotFound}
	ErrQuotaExceeded = &ProviderFailure{Kind: KindQuotaExceeded}
	ErrTransient     = &ProviderFailure{Kind: KindTransient}
	ErrAuthFailure   = &ProviderFailure{Kind: KindAuthFailure}
	ErrFatal         = &ProviderFailure{Kind: KindFatal}
)

// ProviderFailure is a classified provider error
type ProviderFailure struct {
	Kind              FailureKind
	Model             string
	Message           string
	StatusCode        int
	RetryAfterSeconds *int
	Cause             error
}

// Error implements the error interface
func (f *ProviderFailure) Error() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	if f.Model != "" {
		b.WriteString(" (model ")
		b.WriteString(f.Model)
		b.WriteString(")")
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if f.RetryAfterSeconds != nil {
		fmt.Fprintf(&b, " Retry after about %d seconds.", *f.RetryAfterSeconds)
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (f *ProviderFailure) Unwrap() error {
	return f.Cause
}

// Is matches another ProviderFailure of the same kind
func (f *ProviderFailure) Is(target error) bool {
	t, ok := target.(*ProviderFailure)
	if !ok {
		return false
	}
	return f.Kind == t.Kind
}

// RetryAfter returns the retry hint as a duration, or zero when absent
func (f *ProviderFailure) RetryAfter() time.Duration {
	if f.RetryAfterSeconds == nil {
		return 0
	}
	return time.Duration(*f.RetryAfterSeconds) * time.Second
}

// TimeoutError is returned when the fallback chain's total budget runs out
type TimeoutError struct {
	Budget   time.Duration
	Elapsed  time.Duration
	Attempts []string
	Last     error
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("generation timed out after %s (budget %s)", e.Elapsed.Round(time.Millisecond), e.Budget)
	if e.Last != nil {
		msg += ": last failure: " + e.Last.Error()
	}
	return msg
}

// Unwrap returns the last classified failure, if any
func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// NoAvailableProviderError is returned when every candidate failed with a
// not-found or transient error
type NoAvailableProviderError struct {
	Candidates []string
	Last       error
}

// Error implements the error interface
func (e *NoAvailableProviderError) Error() string {
	return "no supported model is available. Tried: " + strings.Join(e.Candidates, ", ")
}

// Unwrap returns the last classified failure
func (e *NoAvailableProviderError) Unwrap() error {
	return e.Last
}

// KindOf reports the failure kind carried by err, if any
func KindOf(err error) (FailureKind, bool) {
	var f *ProviderFailure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// IsRecoverable reports whether a chain error may be replaced by a local
// heuristic result. Timeouts, auth failures, fatal failures and caller
// cancellation are never recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return false
	}
	var noProvider *NoAvailableProviderError
	if errors.As(err, &noProvider) {
		return true
	}

	kind, _ := KindOf(err)
	switch kind {
	case KindNotFound, KindQuotaExceeded, KindTransient:
		return true
	}
	return false
}
