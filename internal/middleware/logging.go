// Package middleware contains HTTP middleware shared by every route.
//
// The pattern is:
//
//	func MyMiddleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // before
//	        next.ServeHTTP(w, r)
//	        // after
//	    })
//	}
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/example-author/internal/auth"
)

// responseWriter wraps http.ResponseWriter to capture the status code and
// size, which the standard writer does not expose after the fact.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// identityRecorder lets handlers deeper in the chain report who the caller
// was. Auth middleware runs per route group, after this logger, so the
// identity is not in the request context the logger sees.
type identityRecorder struct {
	identity string
}

type recorderKey struct{}

func withRecorder(ctx context.Context, rec *identityRecorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, rec)
}

func recorderFrom(ctx context.Context) *identityRecorder {
	rec, _ := ctx.Value(recorderKey{}).(*identityRecorder)
	return rec
}

// Logger logs one line per request: method, path, status, duration, bytes,
// the chi request id and, on authenticated routes, the caller's identity.
//
// Server errors log at Error, client errors at Warn, the rest at Info.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK, // if WriteHeader is never called
			}
			rec := &identityRecorder{}
			r = r.WithContext(withRecorder(r.Context(), rec))

			next.ServeHTTP(wrapped, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			}
			if id := chimiddleware.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("requestId", id))
			}
			if rec.identity != "" {
				attrs = append(attrs, slog.String("identity", rec.identity))
			}

			switch {
			case wrapped.statusCode >= 500:
				logger.Error("request completed", attrs...)
			case wrapped.statusCode >= 400:
				logger.Warn("request completed", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}
		})
	}
}

// RecordIdentity copies the authenticated identity into the request log
// line. Mount it after auth.RequireAuth or auth.OptionalAuth.
func RecordIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec := recorderFrom(r.Context()); rec != nil {
			if id, ok := auth.IdentityFromContext(r.Context()); ok {
				rec.identity = id
			}
		}
		next.ServeHTTP(w, r)
	})
}
