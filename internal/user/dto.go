package user

import (
	"strings"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
)

// UpdateProfileDTO is the editable part of the account screen.
type UpdateProfileDTO struct {
	FirstName string `json:"first_name" form:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" form:"last_name" validate:"required,max=150"`
	Phone     string `json:"phone" form:"phone" validate:"omitempty,max=20"`
}

func (d *UpdateProfileDTO) Validate() *internal.AppError {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Phone = strings.TrimSpace(d.Phone)
	return validation.Struct(d)
}

func updateFromValues(v map[string]string) UpdateProfileDTO {
	return UpdateProfileDTO{FirstName: v["first_name"], LastName: v["last_name"], Phone: v["phone"]}
}
