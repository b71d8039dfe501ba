package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

// Renderer draws the non-children outcomes.
type Renderer interface {
	Redirect(w http.ResponseWriter, r *http.Request, target string)
	RenderLoading(w http.ResponseWriter, r *http.Request)
	RenderDenied(w http.ResponseWriter, r *http.Request, out Outcome)
}

// PermissionSource loads the grant payload for a session whose grants were
// not part of the login response. It returns once the grants are stored or
// its own wait budget runs out.
type PermissionSource interface {
	Ensure(ctx context.Context, s *session.Session) error
}

type Guard struct {
	policy   permission.Policy
	source   PermissionSource
	renderer Renderer
	logger   *slog.Logger
}

func New(policy permission.Policy, source PermissionSource, renderer Renderer, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{policy: policy, source: source, renderer: renderer, logger: logger}
}

type ctxKey struct{}

// OutcomeFromContext returns the decision that let the request through.
func OutcomeFromContext(ctx context.Context) (Outcome, bool) {
	o, ok := ctx.Value(ctxKey{}).(Outcome)
	return o, ok
}

// Decide resolves the outcome for the current request, loading grants
// first when they are still missing.
func (g *Guard) Decide(r *http.Request, cfg Config) Outcome {
	s, _ := session.FromContext(r.Context())
	authenticated := s != nil && s.IsAuthenticated
	if authenticated && g.source != nil && s.Resolver(g.policy).Loading() {
		if err := g.source.Ensure(r.Context(), s); err != nil {
			if internal.IsType(err, internal.ErrorTypeSessionExpired) {
				authenticated = false
			} else {
				g.logger.Warn("permission load failed", "session_id", s.ID, "error", err)
			}
		}
	}
	return Evaluate(Input{
		Authenticated: authenticated,
		Resolver:      s.Resolver(g.policy),
		Config:        cfg,
		RequestURI:    r.URL.RequestURI(),
	})
}

// Require protects the wrapped routes with cfg.
func (g *Guard) Require(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := g.Decide(r, cfg)
			switch out.Effect {
			case RenderChildren:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, out)))
			case RedirectLogin:
				g.renderer.Redirect(w, r, LoginURL(out.ReturnTo))
			case RenderLoading:
				g.renderer.RenderLoading(w, r)
			case RedirectFallback:
				g.renderer.Redirect(w, r, out.Fallback)
			default:
				g.logger.Info("access denied",
					"path", r.URL.Path,
					"module", cfg.RequiredModule,
					"action", cfg.RequiredAction)
				g.renderer.RenderDenied(w, r, out)
			}
		})
	}
}

// Authenticated only requires a logged-in session.
func (g *Guard) Authenticated() func(http.Handler) http.Handler {
	return g.Require(Config{})
}

// Module requires access to any action of m.
func (g *Guard) Module(m permission.Module) func(http.Handler) http.Handler {
	return g.Require(Config{RequiredModule: m})
}

// Permission requires the exact (m, a) pair.
func (g *Guard) Permission(m permission.Module, a permission.Action) func(http.Handler) http.Handler {
	return g.Require(Config{RequiredModule: m, RequiredAction: a})
}
