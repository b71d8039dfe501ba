package wizard

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/otp"
)

type TokenPhase string

const (
	TokenLoading TokenPhase = "loading"
	TokenInvalid TokenPhase = "invalid"
	TokenValid   TokenPhase = "valid"
)

// TokenInfo is the identity attached to an invitation or reset token.
type TokenInfo struct {
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	CompanyName     string     `json:"company_name,omitempty"`
	Matricule       string     `json:"matricule,omitempty"`
	PointOfExitName string     `json:"point_of_exit_name,omitempty"`
	Role            string     `json:"role,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func (t TokenInfo) FullName() string {
	switch {
	case t.FirstName == "":
		return t.LastName
	case t.LastName == "":
		return t.FirstName
	}
	return t.FirstName + " " + t.LastName
}

// Values maps the identity onto wizard field names.
func (t TokenInfo) Values() map[string]string {
	return map[string]string{
		"email":              t.Email,
		"first_name":         t.FirstName,
		"last_name":          t.LastName,
		"company_name":       t.CompanyName,
		"matricule":          t.Matricule,
		"point_of_exit_name": t.PointOfExitName,
	}
}

// TokenCheck is the outcome of the read-only lookup run when a token page
// opens.
type TokenCheck struct {
	Phase     TokenPhase     `json:"phase"`
	Info      TokenInfo      `json:"info"`
	Message   string         `json:"message,omitempty"`
	Countdown *otp.Countdown `json:"countdown,omitempty"`
}

// Lookup fetches token metadata from the backend.
type Lookup func(ctx context.Context) (TokenInfo, error)

// CheckToken runs lookup under ctx. A lookup still running when ctx ends
// reports loading; an expiry already in the past reports invalid.
func CheckToken(ctx context.Context, now time.Time, lookup Lookup) TokenCheck {
	info, err := lookup(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return TokenCheck{Phase: TokenLoading}
		}
		msg := internal.ErrInvalidToken.Message
		if appErr, ok := internal.IsAppError(err); ok && appErr.Message != "" {
			msg = appErr.GetDetailedMessage()
		}
		return TokenCheck{Phase: TokenInvalid, Message: msg}
	}
	check := TokenCheck{Phase: TokenValid, Info: info}
	if info.ExpiresAt != nil {
		c := otp.Start(info.ExpiresAt.Sub(now), now)
		if !info.ExpiresAt.After(now) {
			return TokenCheck{Phase: TokenInvalid, Info: info, Message: "Ce lien a expiré."}
		}
		check.Countdown = &c
	}
	return check
}

// Expired re-evaluates the countdown so a page left open flips to invalid
// without another lookup.
func (t TokenCheck) Expired(now time.Time) bool {
	return t.Countdown != nil && t.Countdown.Expired(now)
}
