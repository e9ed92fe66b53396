package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/upb/workflow-runner/internal/observability"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request with status, size and latency.
// It must run after PropagateRequestID to pick up the request ID.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
					zap.String("remote_addr", r.RemoteAddr),
				}
				log := observability.LoggerFromContext(r.Context(), logger)
				switch {
				case ww.Status() >= http.StatusInternalServerError:
					log.Error("request completed", fields...)
				case ww.Status() >= http.StatusBadRequest:
					log.Warn("request completed", fields...)
				default:
					log.Info("request completed", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
