package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/workflow-runner/internal/observability"
)

// Context key type to avoid collisions
type contextKey string

// OwnerIDKey is the context key for the owner ID
const OwnerIDKey contextKey = "owner_id"

// GetOwnerIDFromContext retrieves the owner ID from context
func GetOwnerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	ownerID, ok := ctx.Value(OwnerIDKey).(uuid.UUID)
	return ownerID, ok && ownerID != uuid.Nil
}

// WithOwnerID adds an owner ID to the context
func WithOwnerID(ctx context.Context, ownerID uuid.UUID) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// PropagateRequestID copies chi's request ID into the observability context
// so loggers created downstream carry it. It also echoes the ID back.
func PropagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set(middleware.RequestIDHeader, requestID)
		ctx := observability.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
