// Package registration drives the public multi-step forms: merchant
// sign-up, the token activations, invitation acceptance and password
// recovery.
package registration

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
)

// flow binds a wizard kind to its backend endpoints. A "%s" in a path takes
// the escaped token.
type flow struct {
	lookup    string
	submit    string
	autoLogin bool
}

var flows = map[wizard.Kind]flow{
	wizard.KindMerchantRegistration: {submit: "/api/auth/register/merchant/"},
	wizard.KindMerchantActivation: {
		lookup:    "/api/auth/validate-token/%s/",
		submit:    "/api/auth/activate/%s/",
		autoLogin: true,
	},
	wizard.KindAgentActivation: {
		lookup: "/api/customs/activate/%s/",
		submit: "/api/customs/activate/%s/",
	},
	wizard.KindSystemUserActivation: {
		lookup: "/api/auth/activate-system-user/%s/",
		submit: "/api/auth/activate-system-user/%s/",
	},
	wizard.KindInvitationAcceptance: {
		lookup: "/api/auth/invitation/%s/",
		submit: "/api/auth/invitation/%s/accept/",
	},
	wizard.KindPasswordReset: {
		lookup: "/api/auth/validate-reset-token/%s/",
		submit: "/api/auth/reset-password/%s/",
	},
	wizard.KindForgotPassword: {submit: "/api/auth/forgot-password/"},
}

func (f flow) needsToken() bool { return f.lookup != "" }

func expand(path, token string) string {
	if !strings.Contains(path, "%s") {
		return path
	}
	return fmt.Sprintf(path, url.PathEscape(token))
}

// tokenInfo is the union of the lookup answers. Merchant invitations name
// the company merchant_name.
type tokenInfo struct {
	wizard.TokenInfo
	MerchantName string `json:"merchant_name"`
}

func (t tokenInfo) normalize() wizard.TokenInfo {
	info := t.TokenInfo
	if info.CompanyName == "" {
		info.CompanyName = t.MerchantName
	}
	return info
}

// Result is the backend answer to a completed form. Activations that sign
// the user in also carry a token pair.
type Result struct {
	Detail  string        `json:"detail"`
	Email   string        `json:"email,omitempty"`
	Access  string        `json:"access,omitempty"`
	Refresh string        `json:"refresh,omitempty"`
	User    *session.User `json:"user,omitempty"`
}

func (r Result) signsIn() bool {
	return r.Access != "" && r.Refresh != "" && r.User != nil
}
