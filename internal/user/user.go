package user

import (
	"strings"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

// Profile is the signed-in user's account as the backend reports it.
type Profile struct {
	ID              session.UserID  `json:"id"`
	Email           string          `json:"email"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	Role            permission.Role `json:"role"`
	Phone           string          `json:"phone"`
	IsActive        bool            `json:"is_active"`
	IsSuperAdmin    bool            `json:"is_super_admin"`
	MerchantName    string          `json:"merchant_name"`
	PointOfExitName string          `json:"point_of_exit_name"`
	ProfilePhoto    string          `json:"profile_photo"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p Profile) FullName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// RoleLabel names the role the way the console menus do.
func (p Profile) RoleLabel() string {
	switch p.Role {
	case permission.RoleAdmin:
		if p.IsSuperAdmin {
			return "Super administrateur"
		}
		return "Administrateur"
	case permission.RoleAuditor:
		return "Auditeur"
	case permission.RoleOperator:
		return "Opérateur"
	case permission.RoleCustomsAgent:
		return "Agent des douanes"
	}
	return string(p.Role)
}

// Patch carries the identity fields the session keeps in sync with the
// backend. Grants are loaded separately and left alone.
func (p Profile) Patch() session.UserPatch {
	return session.UserPatch{
		Email:        &p.Email,
		FirstName:    &p.FirstName,
		LastName:     &p.LastName,
		Phone:        &p.Phone,
		ProfilePhoto: &p.ProfilePhoto,
		Role:         &p.Role,
		IsSuperAdmin: &p.IsSuperAdmin,
	}
}
