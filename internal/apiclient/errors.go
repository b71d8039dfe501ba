package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/frahmantamala/taxfree-console/internal"
)

const codeMaintenance = "maintenance_mode"

// APIError is a non-2xx backend response normalised from the DRF payload
// shapes: {"detail": ...}, {"code": ...}, {"non_field_errors": [...]} and
// {"<field>": ["msg", ...]}.
type APIError struct {
	Status            int
	Code              string
	Detail            string
	Fields            map[string]string
	RemainingAttempts int
	LockoutMinutes    int
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// parseAPIError never fails: a body that is not a JSON object leaves only
// the status set.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return apiErr
	}
	for key, value := range raw {
		switch key {
		case "detail", "message", "error":
			if apiErr.Detail == "" {
				apiErr.Detail = firstMessage(value)
			}
		case "code":
			apiErr.Code = firstMessage(value)
		case "non_field_errors":
			if msg := firstMessage(value); msg != "" && apiErr.Detail == "" {
				apiErr.Detail = msg
			}
		case "attempts_remaining", "remaining_attempts":
			_ = json.Unmarshal(value, &apiErr.RemainingAttempts)
		case "lockout_minutes":
			_ = json.Unmarshal(value, &apiErr.LockoutMinutes)
		default:
			if msg := firstMessage(value); msg != "" {
				if apiErr.Fields == nil {
					apiErr.Fields = map[string]string{}
				}
				apiErr.Fields[key] = msg
			}
		}
	}
	return apiErr
}

// firstMessage extracts a message from a string, a list of strings, or a
// nested object of either.
func firstMessage(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(value, &list); err == nil {
		for _, item := range list {
			if msg := firstMessage(item); msg != "" {
				return msg
			}
		}
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if msg := firstMessage(obj[k]); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func (e *APIError) isMaintenance() bool {
	return e.Status == http.StatusServiceUnavailable && e.Code == codeMaintenance
}

func mentionsInactive(detail string) bool {
	d := strings.ToLower(detail)
	return strings.Contains(d, "désactivé") || strings.Contains(d, "inactive") || strings.Contains(d, "disabled")
}

// Classify turns a backend rejection into the console error taxonomy. The
// APIError stays reachable as the cause.
func Classify(apiErr *APIError) *internal.AppError {
	msg := apiErr.Detail
	switch {
	case apiErr.isMaintenance():
		if msg == "" {
			msg = "La plateforme est en maintenance."
		}
		return internal.NewMaintenanceError(msg).WithCause(apiErr)

	case apiErr.Status == http.StatusTooManyRequests && apiErr.Code == "account_locked":
		return internal.NewAuthenticationError(orDefault(msg, "Compte temporairement verrouillé."), internal.ErrCodeAccountLocked).
			WithDetails(internal.LockoutDetails{LockoutMinutes: apiErr.LockoutMinutes}).
			WithCause(apiErr)

	case apiErr.Status == http.StatusUnauthorized:
		if mentionsInactive(msg) {
			return internal.NewAuthenticationError(orDefault(msg, internal.ErrInactiveAccount.Message), internal.ErrCodeInactiveAccount).WithCause(apiErr)
		}
		appErr := internal.NewAuthenticationError(orDefault(msg, internal.ErrInvalidCredentials.Message), internal.ErrCodeInvalidCredentials).WithCause(apiErr)
		if apiErr.RemainingAttempts > 0 {
			appErr.WithDetails(internal.LockoutDetails{AttemptsRemaining: apiErr.RemainingAttempts})
		}
		return appErr

	case apiErr.Status == http.StatusForbidden:
		if mentionsInactive(msg) {
			appErr := internal.NewAuthenticationError(msg, internal.ErrCodeInactiveAccount).WithCause(apiErr)
			appErr.StatusCode = http.StatusForbidden
			return appErr
		}
		return internal.NewAuthorizationError(orDefault(msg, internal.ErrPermissionDenied.Message)).WithCause(apiErr)

	case apiErr.Status == http.StatusNotFound:
		return internal.NewNotFoundError(orDefault(msg, "Ressource introuvable."), internal.ErrCodeResourceNotFound).WithCause(apiErr)

	case apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnprocessableEntity:
		if len(apiErr.Fields) == 0 {
			return internal.NewValidationError(orDefault(msg, "Requête invalide."), internal.ErrCodeValidationFailed).WithCause(apiErr)
		}
		names := make([]string, 0, len(apiErr.Fields))
		for name := range apiErr.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]internal.ValidationError, 0, len(names))
		for _, name := range names {
			fields = append(fields, internal.ValidationError{Field: name, Message: apiErr.Fields[name], Code: string(internal.ErrCodeValidationFailed)})
		}
		appErr := internal.NewValidationFieldErrors(fields...).WithCause(apiErr)
		if msg != "" {
			appErr.Message = msg
		}
		return appErr

	case apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests:
		return internal.NewTransientError("Le service est momentanément indisponible, veuillez réessayer.", apiErr)
	}
	return internal.NewInternalError(orDefault(msg, "Réponse inattendue du serveur."), apiErr)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
