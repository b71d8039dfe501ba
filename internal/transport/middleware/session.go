package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
)

// SessionLoader hydrates the browser's session and attaches it to the
// request context.
func SessionLoader(sessions *session.Manager, lg *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := sessions.Init(w, r)
			if err != nil {
				lg.Error("failed to load session", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx := session.WithSession(r.Context(), s)
			ctx = logger.With(ctx, "session_id", s.ID, "user_id", s.UserIDString())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
