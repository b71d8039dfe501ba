package validation

import (
	"fmt"
	"reflect"
	"strings"

	errors "github.com/frahmantamala/taxfree-console/internal"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// report json/form names instead of Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
}

// Struct validates v and converts failures into a field-level AppError.
func Struct(v interface{}) *errors.AppError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}
	fields := make([]errors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errors.ValidationError{
			Field:   fe.Field(),
			Message: message(fe),
			Code:    codeFor(fe.Tag()),
		})
	}
	return errors.NewValidationFieldErrors(fields...)
}

// Var validates a single value against a validator tag.
func Var(field string, value interface{}, tag string) *errors.AppError {
	if err := validate.Var(value, tag); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return errors.NewValidationFieldError(field, messageFor(field, verrs[0].Tag(), verrs[0].Param()), errors.ErrorCode(codeFor(verrs[0].Tag())))
		}
		return errors.NewValidationFieldError(field, err.Error(), errors.ErrCodeValidationFailed)
	}
	return nil
}

func message(fe validator.FieldError) string {
	return messageFor(fe.Field(), fe.Tag(), fe.Param())
}

func messageFor(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s est obligatoire", field)
	case "email":
		return "Adresse email invalide"
	case "min":
		return fmt.Sprintf("%s doit contenir au moins %s caractères", field, param)
	case "max":
		return fmt.Sprintf("%s ne doit pas dépasser %s caractères", field, param)
	case "len":
		return fmt.Sprintf("%s doit contenir exactement %s caractères", field, param)
	case "numeric":
		return fmt.Sprintf("%s doit être numérique", field)
	case "oneof":
		return fmt.Sprintf("%s doit être l'une des valeurs: %s", field, param)
	case "eqfield":
		return "Les mots de passe ne correspondent pas"
	}
	return fmt.Sprintf("%s est invalide", field)
}

func codeFor(tag string) string {
	switch tag {
	case "required":
		return string(errors.ErrCodeRequiredField)
	case "eqfield":
		return string(errors.ErrCodePasswordMismatch)
	}
	return string(errors.ErrCodeValidationFailed)
}

// ResourceID checks an identifier taken from the URL. A malformed one
// reads as a missing resource.
func ResourceID(id string) *errors.AppError {
	if validate.Var(id, "required,uuid") != nil {
		return errors.NewNotFoundError("Ressource introuvable.", errors.ErrCodeResourceNotFound)
	}
	return nil
}

// UserID checks an account identifier taken from the URL. Accounts are
// keyed by UUID; numeric ids are accepted for older records.
func UserID(id string) *errors.AppError {
	if validate.Var(id, "required,uuid|numeric") != nil {
		return errors.NewNotFoundError("Utilisateur introuvable.", errors.ErrCodeResourceNotFound)
	}
	return nil
}
