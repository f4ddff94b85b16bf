package handle

import (
	"context"
	"net/http"
	"time"

	"kitchen-display/pkg/logger"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID tags every request with an id, taken from the X-Request-ID
// header or generated, and attaches a logger carrying it.
func RequestID(mylog logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			reqLog := mylog.With("request_id", id)
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, reqLog)))

			reqLog.Action("request_completed").Debug("Request served",
				"method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

func logFrom(ctx context.Context, fallback logger.Logger) logger.Logger {
	if l, ok := ctx.Value(ctxKey{}).(logger.Logger); ok {
		return l
	}
	return fallback
}
