package registration

import (
	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
)

// TokenDTO is the token segment of an activation or reset link.
type TokenDTO struct {
	Token string `json:"token" validate:"required,max=256,printascii,excludesall=/?#%"`
}

func (d TokenDTO) Validate() *internal.AppError {
	return validation.Struct(d)
}

// PasswordCheckDTO feeds the live strength indicator.
type PasswordCheckDTO struct {
	Password string `json:"password" form:"password"`
	Confirm  string `json:"password_confirm" form:"password_confirm"`
}

// checkFormats validates the typed fields of the current step. Required
// fields are enforced by the wizard itself.
func checkFormats(def wizard.Definition, st *wizard.State) *internal.AppError {
	var fields []internal.ValidationError
	for _, f := range def.CurrentStep(st).Fields {
		if f.ReadOnly {
			continue
		}
		tag := ""
		switch f.Type {
		case "email":
			tag = "omitempty,email"
		case "tel":
			tag = "omitempty,min=6,max=20"
		default:
			continue
		}
		if appErr := validation.Var(f.Name, st.Values[f.Name], tag); appErr != nil {
			fields = append(fields, internal.ValidationError{
				Field:   f.Name,
				Message: appErr.FieldErrors()[f.Name],
				Code:    string(appErr.Code),
			})
		}
	}
	if len(fields) == 0 {
		return nil
	}
	appErr := internal.NewValidationFieldErrors(fields...)
	st.Errors = appErr.FieldErrors()
	return appErr
}
