package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/upb/workflow-runner/services"
	"github.com/upb/workflow-runner/services/pipeline"
	"github.com/upb/workflow-runner/services/routing"
	"github.com/upb/workflow-runner/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain and pipeline errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	// Copy so sentinel details are never mutated
	var details map[string]interface{}
	for _, src := range []map[string]interface{}{services.GetErrorDetails(err), failedStep(err)} {
		for k, v := range src {
			if details == nil {
				details = make(map[string]interface{})
			}
			details[k] = v
		}
	}

	var (
		timeoutErr    *routing.TimeoutError
		noProviderErr *routing.NoAvailableProviderError
		failure       *routing.ProviderFailure
	)

	switch {
	case services.IsValidationError(err), pipeline.IsUnknownStep(err), errors.Is(err, pipeline.ErrInvalidStepCount):
		writeError(w, logger, http.StatusBadRequest, err.Error(), details)

	case services.IsNotFoundError(err):
		writeError(w, logger, http.StatusNotFound, err.Error(), nil)

	case services.IsConflictError(err):
		writeError(w, logger, http.StatusConflict, err.Error(), details)

	case errors.As(err, &timeoutErr):
		logger.Warn("pipeline timed out", zap.Error(err))
		writeError(w, logger, http.StatusGatewayTimeout, err.Error(), details)

	case errors.As(err, &noProviderErr):
		logger.Warn("no provider available", zap.Error(err))
		writeError(w, logger, http.StatusServiceUnavailable, err.Error(), details)

	case errors.As(err, &failure):
		handleProviderFailure(w, err, failure, details, logger)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError, "An internal error occurred", nil)

	case errors.Is(err, context.DeadlineExceeded):
		// The request deadline ran out between or inside steps
		logger.Warn("run deadline exceeded", zap.Error(err))
		writeError(w, logger, http.StatusGatewayTimeout, "The run did not finish in time", details)

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeError(w, logger, http.StatusInternalServerError, "An unexpected error occurred", nil)
	}
}

func handleProviderFailure(w http.ResponseWriter, err error, failure *routing.ProviderFailure, details map[string]interface{}, logger *zap.Logger) {
	switch failure.Kind {
	case routing.KindQuotaExceeded:
		if retry := failure.RetryAfter(); retry > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
		}
		writeError(w, logger, http.StatusTooManyRequests, err.Error(), details)

	case routing.KindNotFound, routing.KindTransient:
		writeError(w, logger, http.StatusServiceUnavailable, err.Error(), details)

	default:
		// Auth and fatal failures are the upstream's problem, not the caller's
		logger.Error("provider failure",
			zap.String("kind", string(failure.Kind)),
			zap.String("model", failure.Model),
			zap.Error(err))
		writeError(w, logger, http.StatusBadGateway, err.Error(), details)
	}
}

// failedStep extracts the failing step position and name from a pipeline error
func failedStep(err error) map[string]interface{} {
	var pErr *pipeline.PipelineError
	if !errors.As(err, &pErr) {
		return nil
	}
	return map[string]interface{}{
		"step":     pErr.Step,
		"position": pErr.Position,
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string, details map[string]interface{}) {
	if err := utils.WriteError(w, status, message, details); err != nil {
		logger.Error("failed to write error response",
			zap.Int("status", status),
			zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
