// Package accessadmin lets permission managers inspect and edit the
// granular grants of the console's system users.
package accessadmin

import (
	"encoding/json"
	"strings"

	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

// SystemUser is a back-office account together with its grants, as the
// permission overview lists it.
type SystemUser struct {
	ID               session.UserID      `json:"id"`
	Email            string              `json:"email"`
	FullName         string              `json:"full_name"`
	Role             permission.Role     `json:"role"`
	RoleDisplay      string              `json:"role_display"`
	IsActive         bool                `json:"is_active"`
	IsSuperAdmin     bool                `json:"is_super_admin"`
	Permissions      permission.GrantSet `json:"permissions"`
	PermissionsCount int                 `json:"permissions_count"`
}

func (u SystemUser) Name() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Email
}

func (u SystemUser) RoleLabel() string {
	if u.RoleDisplay != "" {
		return u.RoleDisplay
	}
	return string(u.Role)
}

// Preset is a named bundle of grants applied in one step.
type Preset struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Permissions permission.GrantSet `json:"permissions"`
	IsActive    bool                `json:"is_active"`
}

// presetList reads the preset collection either bare or paginated.
type presetList []Preset

func (l *presetList) UnmarshalJSON(data []byte) error {
	var bare []Preset
	if err := json.Unmarshal(data, &bare); err == nil {
		*l = bare
		return nil
	}
	var page struct {
		Results []Preset `json:"results"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return err
	}
	*l = page.Results
	return nil
}

// PresetResult is the backend's answer to applying a preset.
type PresetResult struct {
	Detail string `json:"detail"`
	Preset string `json:"preset"`
	Added  int    `json:"added"`
}

// grantPayload is the body of the grant and revoke calls.
type grantPayload struct {
	Permissions []grantItem `json:"permissions"`
}

type grantItem struct {
	Module permission.Module `json:"module"`
	Action permission.Action `json:"action"`
}

func payloadFor(grants ...permission.Grant) grantPayload {
	out := grantPayload{Permissions: make([]grantItem, 0, len(grants))}
	for _, g := range grants {
		out.Permissions = append(out.Permissions, grantItem{Module: g.Module, Action: g.Action})
	}
	return out
}
