package auth

import (
	"strings"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
)

// LoginDTO is the password step submitted by the login form.
type LoginDTO struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

func (d *LoginDTO) Validate() *internal.AppError {
	d.Email = strings.TrimSpace(strings.ToLower(d.Email))
	return validation.Struct(d)
}

// VerifyOTPDTO is the six digit code of the second step.
type VerifyOTPDTO struct {
	Code string `json:"code" form:"code" validate:"required,numeric,len=6"`
}

func (d *VerifyOTPDTO) Validate() *internal.AppError {
	d.Code = strings.TrimSpace(d.Code)
	return validation.Struct(d)
}

type ChangePasswordDTO struct {
	OldPassword     string `json:"old_password" form:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" form:"new_password" validate:"required"`
	ConfirmPassword string `json:"new_password_confirm" form:"new_password_confirm" validate:"required"`
}

// Validate applies the strength and match rules of every password form.
func (d *ChangePasswordDTO) Validate() *internal.AppError {
	if appErr := validation.Struct(d); appErr != nil {
		return appErr
	}
	if !wizard.PasswordsMatch(d.NewPassword, d.ConfirmPassword) {
		return internal.NewValidationFieldError("new_password_confirm", "Les mots de passe ne correspondent pas.", internal.ErrCodePasswordMismatch)
	}
	if wizard.PasswordStrength(d.NewPassword) < wizard.MinPasswordStrength {
		return internal.NewValidationFieldError("new_password", "Le mot de passe est trop faible.", internal.ErrCodeWeakPassword)
	}
	return nil
}

func loginFromValues(v map[string]string) LoginDTO {
	return LoginDTO{Email: v["email"], Password: v["password"]}
}

func changePasswordFromValues(v map[string]string) ChangePasswordDTO {
	return ChangePasswordDTO{
		OldPassword:     v["old_password"],
		NewPassword:     v["new_password"],
		ConfirmPassword: v["new_password_confirm"],
	}
}
