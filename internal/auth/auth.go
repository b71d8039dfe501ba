package auth

import (
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

const (
	loginPath          = "/api/auth/login/"
	verifyOTPPath      = "/api/auth/verify-otp/"
	resendOTPPath      = "/api/auth/resend-otp/"
	logoutPath         = "/api/auth/logout/"
	changePasswordPath = "/api/auth/users/me/change_password/"
	myPermissionsPath  = "/api/auth/my-permissions/"
)

// Challenge is the pending second factor returned by the password step.
type Challenge struct {
	Detail    string `json:"detail"`
	Email     string `json:"email"`
	OTPID     string `json:"otp_id"`
	ExpiresIn int    `json:"expires_in"`
}

// LoginResult is the backend's answer to a valid code.
type LoginResult struct {
	Access                 string        `json:"access"`
	Refresh                string        `json:"refresh"`
	User                   *session.User `json:"user"`
	PasswordExpired        bool          `json:"password_expired"`
	PasswordChangeRequired bool          `json:"password_change_required"`
	Message                string        `json:"message"`
	PasswordExpiryWarning  string        `json:"password_expiry_warning"`
}

func (r *LoginResult) MustChangePassword() bool {
	return r.PasswordExpired || r.PasswordChangeRequired
}

// Permissions is the my-permissions payload. Roles without granular
// permissions only carry Role and Message.
type Permissions struct {
	HasGranularPermissions bool                `json:"has_granular_permissions"`
	IsSuperAdmin           bool                `json:"is_super_admin"`
	Role                   string              `json:"role"`
	Grants                 permission.GrantSet `json:"permissions"`
	Modules                []string            `json:"modules"`
	AccessibleRoutes       []string            `json:"accessible_routes"`
	Message                string              `json:"message"`
}
