package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/workflow-runner/internal/observability"
	"github.com/upb/workflow-runner/utils"
	"go.uber.org/zap"
)

// OwnerHeader carries the caller's owner ID
const OwnerHeader = "X-Owner-ID"

// OwnerMiddleware scopes requests to an owner. The owner ID is taken from a
// header set by whatever sits in front of the service; it is not verified here.
type OwnerMiddleware struct {
	logger *zap.Logger
}

// NewOwnerMiddleware creates a new OwnerMiddleware
func NewOwnerMiddleware(logger *zap.Logger) *OwnerMiddleware {
	return &OwnerMiddleware{logger: logger}
}

// RequireOwner rejects requests without a valid owner ID header
func (m *OwnerMiddleware) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := observability.LoggerFromContext(r.Context(), m.logger)

		raw := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if raw == "" {
			logger.Warn("missing owner header", zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Missing "+OwnerHeader+" header")
			return
		}

		ownerID, err := uuid.Parse(raw)
		if err != nil || ownerID == uuid.Nil {
			logger.Warn("invalid owner header", zap.String("value", raw))
			_ = utils.WriteBadRequest(w, OwnerHeader+" must be a valid UUID", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
	})
}
