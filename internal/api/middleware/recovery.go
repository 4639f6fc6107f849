package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/tagwatch/tagwatch/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem. When the response has
// already started, for example a live stream that was upgraded to a
// WebSocket, only the log line is written.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				started := false
				if sw, ok := w.(*statusWriter); ok {
					started = sw.started()
				}
				requestID := GetRequestID(r.Context())

				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("route", routePattern(r)).
					Bool("response_started", started).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				if started {
					return
				}
				problem := models.NewInternalError(requestID, "an unexpected error occurred")
				problem.Instance = r.URL.Path
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
