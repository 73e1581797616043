package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type logFieldsKey struct{}

// logFields collects attributes from middleware further down the chain so
// the access line can carry them.
type logFields struct {
	mu    sync.Mutex
	attrs []any
}

// annotate adds key/value pairs to the request's access log line. It is a
// no-op outside Logging.
func annotate(ctx context.Context, args ...any) {
	f, ok := ctx.Value(logFieldsKey{}).(*logFields)
	if !ok {
		return
	}
	f.mu.Lock()
	f.attrs = append(f.attrs, args...)
	f.mu.Unlock()
}

func quietPath(path string) bool {
	return path == "/health" || path == "/ready"
}

// Logging writes one access line per request. Health checks log at debug, 5xx at
// error.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			fields := &logFields{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, fields)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case quietPath(r.URL.Path):
				level = slog.LevelDebug
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"size", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"ip", clientIP(r),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				args = append(args, "request_id", id)
			}
			fields.mu.Lock()
			args = append(args, fields.attrs...)
			fields.mu.Unlock()

			logger.Log(r.Context(), level, "request", args...)
		})
	}
}
