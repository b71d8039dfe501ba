package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION"
	ErrorTypeAuthorization  ErrorType = "AUTHORIZATION"
	ErrorTypeSessionExpired ErrorType = "SESSION_EXPIRED"
	ErrorTypeTransient      ErrorType = "TRANSIENT"
	ErrorTypeMaintenance    ErrorType = "MAINTENANCE"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeWeakPassword         ErrorCode = "WEAK_PASSWORD"
	ErrCodePasswordMismatch     ErrorCode = "PASSWORD_MISMATCH"
	ErrCodeRequiredField        ErrorCode = "REQUIRED_FIELD"
	ErrCodeConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUnknownAccount     ErrorCode = "UNKNOWN_ACCOUNT"
	ErrCodeInactiveAccount    ErrorCode = "INACTIVE_ACCOUNT"
	ErrCodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeOTPInvalid         ErrorCode = "OTP_INVALID"
	ErrCodeOTPExpired         ErrorCode = "OTP_EXPIRED"
	ErrCodeSessionExpired     ErrorCode = "SESSION_EXPIRED"

	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	ErrCodeMaintenanceMode    ErrorCode = "MAINTENANCE_MODE"
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
		if lockout, ok := e.Details.(LockoutDetails); ok {
			switch {
			case lockout.LockoutMinutes > 0:
				return fmt.Sprintf("%s Réessayez dans %d minute(s).", e.Message, lockout.LockoutMinutes)
			case lockout.AttemptsRemaining > 0:
				return fmt.Sprintf("%s (%d tentative(s) restante(s))", e.Message, lockout.AttemptsRemaining)
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// FieldErrors returns the per-field messages keyed by field name, used to
// decorate form inputs after a rejected submission.
func (e *AppError) FieldErrors() map[string]string {
	out := map[string]string{}
	if validationErrors, ok := e.Details.(ValidationErrors); ok {
		for _, fe := range validationErrors.Errors {
			if fe.Field == "" {
				continue
			}
			if _, seen := out[fe.Field]; !seen {
				out[fe.Field] = fe.Message
			}
		}
	}
	return out
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// LockoutDetails accompanies ErrCodeAccountLocked and ErrCodeInvalidCredentials.
type LockoutDetails struct {
	AttemptsRemaining int `json:"attempts_remaining,omitempty"`
	LockoutMinutes    int `json:"lockout_minutes,omitempty"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return NewValidationFieldErrors(ValidationError{Field: field, Message: message, Code: string(code)})
}

func NewValidationFieldErrors(fields ...ValidationError) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    ValidationErrors{Errors: fields},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewAuthenticationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Code:       ErrCodePermissionDenied,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewSessionExpiredError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeSessionExpired,
		Code:       ErrCodeSessionExpired,
		Message:    "Votre session a expiré, veuillez vous reconnecter.",
		StatusCode: http.StatusUnauthorized,
		Cause:      cause,
	}
}

func NewTransientError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransient,
		Code:       ErrCodeBackendUnavailable,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewMaintenanceError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeMaintenance,
		Code:       ErrCodeMaintenanceMode,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrInvalidCredentials = NewAuthenticationError("Email ou mot de passe incorrect.", ErrCodeInvalidCredentials)
	ErrUnknownAccount     = NewAuthenticationError("Aucun compte n'est associé à cet email.", ErrCodeUnknownAccount)
	ErrInactiveAccount    = NewAuthenticationError("Ce compte est désactivé.", ErrCodeInactiveAccount)
	ErrInvalidToken       = NewAuthenticationError("Lien invalide ou expiré.", ErrCodeInvalidToken)
	ErrOTPExpired         = NewAuthenticationError("Le code a expiré, demandez un nouveau code.", ErrCodeOTPExpired)
	ErrPermissionDenied   = NewAuthorizationError("Vous n'avez pas la permission d'effectuer cette action.")
	ErrConfirmationNeeded = NewValidationError("Cette action doit être confirmée.", ErrCodeConfirmationRequired)
)

// IsAppError unwraps err looking for an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
