package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/frahmantamala/taxfree-console/internal"
)

// RecoveryMiddleware turns a panic into a logged 500. The panic value never
// reaches the client.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						"error", rec,
						"method", r.Method,
						"url", r.URL.String(),
						"trace_id", internal.TraceIDFromContext(r.Context()),
						"stack", string(debug.Stack()))

					status, body := internal.NewInternalError("Une erreur inattendue est survenue.", nil).ToHTTPResponse()
					writeJSON(w, status, body)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
