package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// StatusRecorder captures the status code written by the wrapped handler.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (s *StatusRecorder) WriteHeader(code int) {
	if s.Status == 0 {
		s.Status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *StatusRecorder) Write(b []byte) (int, error) {
	if s.Status == 0 {
		s.Status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *StatusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

type routeKey struct{}

// Routed wraps a ServeMux and publishes the matched pattern to outer
// middleware via RouteFromContext. It must wrap the mux directly since the
// mux sets Request.Pattern on the request it receives.
func Routed(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if slot, ok := r.Context().Value(routeKey{}).(*string); ok {
			*slot = r.Pattern
		}
	})
}

// RouteFromContext returns the mux pattern that served the request, available
// after the inner handler returned. Unmatched requests report "unmatched".
func RouteFromContext(ctx context.Context) string {
	if slot, ok := ctx.Value(routeKey{}).(*string); ok && *slot != "" {
		return *slot
	}
	return "unmatched"
}

// WithRouteSlot prepares the request context for Routed. LogRequests calls it;
// other middleware that needs the route must run inside LogRequests.
func WithRouteSlot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(routeKey{}).(*string); ok {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, new(string))
}

// InjectLogger attaches lg, tagged with the request id, to the request context.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := lg
			if id := RequestIDFromContext(r.Context()); id != "" {
				l = l.With(zap.String("request_id", id))
			}
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), l)))
		})
	}
}

// LogRequests logs one line per request once it completes.
func LogRequests() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := WithRouteSlot(r.Context())
			rec := &StatusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.Status
			if status == 0 {
				status = http.StatusOK
			}
			lg := zctx.From(ctx)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", RouteFromContext(ctx)),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case status >= http.StatusInternalServerError:
				lg.Error("Request", fields...)
			case status >= http.StatusBadRequest:
				lg.Warn("Request", fields...)
			default:
				lg.Info("Request", fields...)
			}
		})
	}
}
