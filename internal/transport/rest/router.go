package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/taxfree-console/api"
	"github.com/frahmantamala/taxfree-console/internal/accessadmin"
	"github.com/frahmantamala/taxfree-console/internal/agent"
	"github.com/frahmantamala/taxfree-console/internal/auditlog"
	"github.com/frahmantamala/taxfree-console/internal/auth"
	"github.com/frahmantamala/taxfree-console/internal/border"
	"github.com/frahmantamala/taxfree-console/internal/bordereau"
	"github.com/frahmantamala/taxfree-console/internal/dashboard"
	"github.com/frahmantamala/taxfree-console/internal/guard"
	"github.com/frahmantamala/taxfree-console/internal/maintenance"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/registration"
	"github.com/frahmantamala/taxfree-console/internal/report"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/transport/middleware"
	"github.com/frahmantamala/taxfree-console/internal/transport/swagger"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/internal/user"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Routes is everything the router mounts. A nil handler leaves its screens
// unmounted.
type Routes struct {
	Logger         *slog.Logger
	Sessions       *session.Manager
	Guard          *guard.Guard
	Health         *HealthHandler
	Origins        []string
	LoginLimiter   *middleware.RateLimiter
	Metrics        *middleware.Metrics
	MetricsPath    string
	MetricsHandler http.Handler

	Auth         *auth.Handler
	Registration *registration.Handler
	Maintenance  *maintenance.Handler
	Dashboard    *dashboard.Handler
	Forms        *bordereau.Handler
	Borders      *border.Handler
	Agents       *agent.Handler
	Audit        *auditlog.Handler
	Reports      *report.Handler
	Access       *accessadmin.Handler
	Account      *user.Handler
}

func RegisterAllRoutes(router chi.Router, rt Routes) {
	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(rt.Logger))
	router.Use(middleware.LoggingMiddleware(rt.Logger))
	if rt.Metrics != nil {
		router.Use(rt.Metrics.Instrument)
	}
	router.Use(middleware.CORS(rt.Origins))

	// OpenAPI document of the JSON surface and its UI
	router.Get(swagger.DocPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.OpenAPI)
	})
	router.Handle("/swagger/*", swagger.Handler())
	router.Handle("/static/*", view.Assets())
	if rt.MetricsHandler != nil {
		router.Handle(rt.MetricsPath, rt.MetricsHandler)
	}

	router.Route("/api/v1", func(r chi.Router) {
		if rt.Health != nil {
			r.Get("/health", rt.Health.Health)
			r.Get("/ping", rt.Health.Ping)
		}
	})

	// Console screens share the session cookie.
	router.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.SessionLoader(rt.Sessions, rt.Logger))

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, "/admin/dashboard", http.StatusFound)
		})

		if rt.Maintenance != nil {
			r.Get("/maintenance", rt.Maintenance.Show)
			r.Get("/maintenance/stream", rt.Maintenance.Stream)
		}
		if rt.Auth != nil {
			registerAuth(r, rt)
		}
		if rt.Registration != nil {
			registerWizards(r, rt.Registration)
		}
		if rt.Guard != nil {
			r.Route("/admin", func(ar chi.Router) {
				registerAdmin(ar, rt)
			})
		}
	})
}

func registerAuth(r chi.Router, rt Routes) {
	h := rt.Auth
	r.Get("/login", h.LoginPage)
	r.Group(func(lr chi.Router) {
		if rt.LoginLimiter != nil {
			lr.Use(rt.LoginLimiter.Limit(http.HandlerFunc(h.Throttled)))
		}
		lr.Post("/login", h.Login)
		lr.Post("/login/otp", h.VerifyOTP)
	})
	r.Get("/login/otp", h.OTPPage)
	r.Post("/login/otp/resend", h.ResendOTP)
	r.Post("/login/otp/cancel", h.CancelOTP)
	r.Get("/login/otp/countdown", h.Countdown)
	r.Post("/logout", h.Logout)

	if rt.Guard != nil {
		r.Group(func(pr chi.Router) {
			pr.Use(rt.Guard.Authenticated())
			pr.Get("/account/password", h.ChangePasswordPage)
			pr.Post("/account/password", h.ChangePassword)
			if rt.Account != nil {
				pr.With(h.RequirePasswordChange).Get("/account", rt.Account.Show)
				pr.With(h.RequirePasswordChange).Post("/account", rt.Account.Update)
			}
		})
	}
}

func registerWizards(r chi.Router, h *registration.Handler) {
	r.Get("/register/merchant", h.Start(wizard.KindMerchantRegistration))
	r.Get("/activate/{token}", h.Start(wizard.KindMerchantActivation))
	r.Get("/agent/activate/{token}", h.Start(wizard.KindAgentActivation))
	r.Get("/system-user/activate/{token}", h.Start(wizard.KindSystemUserActivation))
	r.Get("/invitation/{token}", h.Start(wizard.KindInvitationAcceptance))
	r.Get("/reset-password/{token}", h.Start(wizard.KindPasswordReset))
	r.Get("/forgot-password", h.Start(wizard.KindForgotPassword))

	r.Post("/wizard/password-check", h.PasswordCheck)
	r.Get("/wizard/{id}", h.Show)
	r.Post("/wizard/{id}", h.Advance)
	r.Post("/wizard/{id}/back", h.Back)
}

func registerAdmin(r chi.Router, rt Routes) {
	g := rt.Guard
	r.Use(g.Authenticated())
	if rt.Auth != nil {
		r.Use(rt.Auth.RequirePasswordChange)
	}

	if h := rt.Dashboard; h != nil {
		r.Group(func(dr chi.Router) {
			dr.Use(g.Module(permission.ModuleDashboard))
			dr.Get("/dashboard", h.Show)
			dr.Get("/dashboard/stream", h.Stream)
		})
	}

	if h := rt.Forms; h != nil {
		r.Route("/forms", func(fr chi.Router) {
			fr.Use(g.Module(permission.ModuleForms))
			fr.Get("/", h.List)
			fr.Get("/{id}", h.Detail)
			fr.With(g.Permission(permission.ModuleForms, permission.ActionEdit)).Post("/{id}/status", h.Correct)
		})
	}

	if h := rt.Borders; h != nil {
		r.Route("/borders", func(br chi.Router) {
			br.Use(g.Module(permission.ModuleBorders))
			br.Get("/", h.List)
			br.Get("/stats", h.Stats)
			br.Get("/{id}", h.Detail)
			br.With(g.Permission(permission.ModuleBorders, permission.ActionEdit)).Post("/{id}/active", h.SetActive)
		})
	}

	if h := rt.Agents; h != nil {
		r.Route("/agents", func(ag chi.Router) {
			ag.Use(g.Module(permission.ModuleAgents))
			ag.Get("/", h.List)
			ag.Get("/invitations", h.Invitations)
			ag.With(g.Permission(permission.ModuleAgents, permission.ActionCreate)).Post("/invitations/{id}/resend", h.ResendInvitation)
			ag.With(g.Permission(permission.ModuleAgents, permission.ActionDelete)).Post("/invitations/{id}/cancel", h.CancelInvitation)
			ag.Get("/{id}", h.Detail)
			ag.With(g.Permission(permission.ModuleAgents, permission.ActionEdit)).Post("/{id}/active", h.SetActive)
		})
	}

	if h := rt.Audit; h != nil {
		r.Route("/audit", func(ar chi.Router) {
			ar.Use(g.Module(permission.ModuleAudit))
			ar.Get("/", h.List)
			ar.With(g.Permission(permission.ModuleAudit, permission.ActionExport)).Get("/export", h.Export)
			ar.Get("/{id}", h.Detail)
		})
	}

	if h := rt.Reports; h != nil {
		r.Route("/reports", func(rr chi.Router) {
			rr.Use(g.Module(permission.ModuleReports))
			rr.Get("/", h.Summary)
			rr.With(g.Permission(permission.ModuleReports, permission.ActionExport)).Get("/export", h.Export)
		})
	}

	if h := rt.Access; h != nil {
		r.Route("/permissions", func(pr chi.Router) {
			pr.Use(g.Module(permission.ModulePermissions))
			pr.Get("/", h.List)
			pr.Get("/{id}", h.Detail)
			pr.Group(func(mr chi.Router) {
				mr.Use(g.Permission(permission.ModulePermissions, permission.ActionManage))
				mr.Post("/{id}/grant", h.Grant)
				mr.Post("/{id}/revoke", h.Revoke)
				mr.Post("/{id}/preset", h.ApplyPreset)
			})
		})
	}
}
