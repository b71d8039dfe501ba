package bordereau

import (
	"strings"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
)

// CorrectionDTO is a manual status override. The reason ends up in the
// audit trail.
type CorrectionDTO struct {
	FormID    string `json:"form_id" form:"form_id" validate:"required,uuid"`
	NewStatus string `json:"new_status" form:"new_status" validate:"required,oneof=CREATED ISSUED VALIDATION_PENDING VALIDATED REFUSED REFUNDED CANCELLED EXPIRED"`
	Reason    string `json:"reason" form:"reason" validate:"required,min=10,max=500"`
}

func ParseCorrection(formID string, values map[string]string) CorrectionDTO {
	return CorrectionDTO{
		FormID:    formID,
		NewStatus: strings.ToUpper(strings.TrimSpace(values["new_status"])),
		Reason:    strings.TrimSpace(values["reason"]),
	}
}

// Validate also refuses a correction to the status the form already has.
func (d CorrectionDTO) Validate(current string) *internal.AppError {
	if appErr := validation.Struct(d); appErr != nil {
		return appErr
	}
	if d.NewStatus == current {
		return internal.NewValidationFieldError("new_status", "Le bordereau a déjà ce statut", internal.ErrCodeValidationFailed)
	}
	return nil
}

// Target is what the confirmation parks between the two posts.
func (d CorrectionDTO) Target() map[string]string {
	return map[string]string{"new_status": d.NewStatus, "reason": d.Reason}
}
