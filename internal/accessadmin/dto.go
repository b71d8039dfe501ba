package accessadmin

import (
	"strings"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
	"github.com/frahmantamala/taxfree-console/internal/permission"
)

// GrantDTO names one (module, action) pair picked in the form.
type GrantDTO struct {
	Module string `form:"module" validate:"required"`
	Action string `form:"action" validate:"required"`
}

func ParseGrant(values map[string]string) GrantDTO {
	return GrantDTO{
		Module: strings.ToUpper(strings.TrimSpace(values["module"])),
		Action: strings.ToUpper(strings.TrimSpace(values["action"])),
	}
}

// Grant validates the pair against the closed module and action lists.
func (d GrantDTO) Grant() (permission.Grant, *internal.AppError) {
	if appErr := validation.Struct(d); appErr != nil {
		return permission.Grant{}, appErr
	}
	m, err := permission.ParseModule(d.Module)
	if err != nil {
		return permission.Grant{}, internal.NewValidationFieldError("module", "Module inconnu", internal.ErrCodeValidationFailed)
	}
	a, err := permission.ParseAction(d.Action)
	if err != nil {
		return permission.Grant{}, internal.NewValidationFieldError("action", "Action inconnue", internal.ErrCodeValidationFailed)
	}
	return permission.Grant{Module: m, Action: a}, nil
}

type PresetDTO struct {
	PresetID string `form:"preset_id" validate:"required,uuid"`
}

func ParsePreset(values map[string]string) PresetDTO {
	return PresetDTO{PresetID: strings.TrimSpace(values["preset_id"])}
}

func (d PresetDTO) Validate() *internal.AppError { return validation.Struct(d) }
