package guard

import (
	"net/url"
	"strings"

	"github.com/frahmantamala/taxfree-console/internal/permission"
)

type State int

const (
	Unauthenticated State = iota
	RoleExempt
	SuperAdminBypass
	PermissionsLoading
	Granted
	Denied
)

var stateNames = map[State]string{
	Unauthenticated:    "UNAUTHENTICATED",
	RoleExempt:         "ROLE_EXEMPT",
	SuperAdminBypass:   "SUPER_ADMIN_BYPASS",
	PermissionsLoading: "PERMISSIONS_LOADING",
	Granted:            "GRANTED",
	Denied:             "DENIED",
}

func (s State) String() string { return stateNames[s] }

// Effect is what the transport layer does with a decision.
type Effect int

const (
	RenderChildren Effect = iota
	RedirectLogin
	RenderLoading
	RedirectFallback
	RenderFallback
	RenderDenied
)

// Config is attached to one protected route. An empty RequiredModule only
// requires authentication.
type Config struct {
	RequiredModule permission.Module
	RequiredAction permission.Action
	FallbackRoute  string
	FallbackView   string
}

type Input struct {
	Authenticated bool
	Resolver      permission.Resolver
	Config        Config
	// RequestURI is the location to come back to after login.
	RequestURI string
}

type Outcome struct {
	State    State
	Effect   Effect
	ReturnTo string
	Fallback string
}

func (o Outcome) Allowed() bool { return o.Effect == RenderChildren }

// Evaluate applies the guard rules in order; the first match wins. It
// performs no I/O.
func Evaluate(in Input) Outcome {
	if !in.Authenticated {
		return Outcome{State: Unauthenticated, Effect: RedirectLogin, ReturnTo: SafeNext(in.RequestURI)}
	}
	if in.Resolver.RoleExempt() {
		return Outcome{State: RoleExempt, Effect: RenderChildren}
	}
	if in.Resolver.IsSuperAdmin() {
		return Outcome{State: SuperAdminBypass, Effect: RenderChildren}
	}
	if in.Resolver.Loading() {
		return Outcome{State: PermissionsLoading, Effect: RenderLoading}
	}
	cfg := in.Config
	if cfg.RequiredModule != "" && in.Resolver.Check(cfg.RequiredModule, cfg.RequiredAction) != permission.Allowed {
		switch {
		case cfg.FallbackRoute != "":
			return Outcome{State: Denied, Effect: RedirectFallback, Fallback: cfg.FallbackRoute}
		case cfg.FallbackView != "":
			return Outcome{State: Denied, Effect: RenderFallback, Fallback: cfg.FallbackView}
		}
		return Outcome{State: Denied, Effect: RenderDenied}
	}
	return Outcome{State: Granted, Effect: RenderChildren}
}

// SafeNext keeps only local absolute paths so the login redirect cannot be
// pointed at another host.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}

// LoginURL is the login page remembering where to return.
func LoginURL(next string) string {
	next = SafeNext(next)
	if next == "" || next == "/" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}
