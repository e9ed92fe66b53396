package routing

import (
	"context"
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"

	"github.com/upb/workflow-runner/services/providers"
)

var (
	quotaExceededPattern = regexp.MustCompile(`(?i)quota exceeded`)
	notFoundPattern      = regexp.MustCompile(`(?i)not found|no such model|model unavailable|not supported|unsupported model`)
	quotaPattern         = regexp.MustCompile(`(?i)quota|too many requests|rate limit|resource exhausted|resource has been exhausted`)
	transientPattern     = regexp.MustCompile(`(?i)timed out|timeout|temporar|unavailable|retry shortly|internal error|rate-limited upstream`)
	authPattern          = regexp.MustCompile(`(?i)api key|permission|unauthorized|forbidden|authenticat`)
	retryAfterPattern    = regexp.MustCompile(`(?i)retry (?:after|in)\s+([0-9]+(?:\.[0-9]+)?)\s*s`)
)

var transientStatuses = map[int]bool{
	http.StatusPaymentRequired:     true,
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Classify maps a provider status code and message to a failure kind.
// A status of 0 means the backend gave none. The result is total and
// deterministic.
func Classify(statusCode int, message string) FailureKind {
	switch {
	case quotaExceededPattern.MatchString(message):
		return KindQuotaExceeded
	case statusCode == http.StatusNotFound || notFoundPattern.MatchString(message):
		return KindNotFound
	case statusCode == http.StatusTooManyRequests || quotaPattern.MatchString(message):
		return KindQuotaExceeded
	case transientStatuses[statusCode] || transientPattern.MatchString(message):
		return KindTransient
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || authPattern.MatchString(message):
		return KindAuthFailure
	default:
		return KindFatal
	}
}

// ParseRetryAfter extracts a "retry after Ns" / "retry in N.Ns" hint from a
// message, rounded up to whole seconds.
func ParseRetryAfter(message string) (int, bool) {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return int(math.Ceil(v)), true
}

// ClassifyError turns a raw provider error into a ProviderFailure for model.
// Errors that are already classified pass through unchanged.
func ClassifyError(model string, err error) *ProviderFailure {
	var existing *ProviderFailure
	if errors.As(err, &existing) {
		return existing
	}

	status, message := providers.StatusAndMessage(err)
	if status == 0 && errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	failure := &ProviderFailure{
		Kind:       Classify(status, message),
		Model:      model,
		Message:    message,
		StatusCode: status,
		Cause:      err,
	}
	if failure.Kind == KindQuotaExceeded {
		if secs, ok := ParseRetryAfter(message); ok {
			failure.RetryAfterSeconds = &secs
		}
	}
	return failure
}
