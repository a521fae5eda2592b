package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"

	"github.com/mcoot/matchsync/internal/api/apierr"
)

// Recovery turns a handler panic into a JSON INTERNAL_ERROR response
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Aborted streams are not failures
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				attrs := []any{
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if id, ok := mux.Vars(r)["id"]; ok {
					attrs = append(attrs, slog.String("match_id", id))
				}
				logger.Error("panic recovered", attrs...)
				apierr.WriteError(w, apierr.NewInternalError())
			}()

			next.ServeHTTP(w, r)
		})
	}
}
