package transport

import (
	"net/http"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
)

// ConfirmTokenField is the form value carrying a confirmation token.
const ConfirmTokenField = "confirm_token"

// Confirmed guards a destructive action behind a secondary dialog. A post
// without a token parks target under action and renders dialog; the post
// carrying the token returns the parked confirmation, once. action should
// name the resource so a token cannot be replayed against another one.
func (h *BaseHandler) Confirmed(w http.ResponseWriter, r *http.Request, values map[string]string, action string, target map[string]string, dialog view.Confirm) (session.Confirmation, bool) {
	ctx := r.Context()
	s := h.Session(r)
	if s == nil || h.Sessions == nil {
		h.WriteError(w, http.StatusInternalServerError, "session unavailable")
		return session.Confirmation{}, false
	}

	token := values[ConfirmTokenField]
	if token == "" {
		tok, err := h.Sessions.RequestConfirmation(ctx, s, action, target)
		if err != nil {
			h.HandleError(w, r, internal.NewInternalError("Impossible de préparer la confirmation.", err), "")
			return session.Confirmation{}, false
		}
		dialog.Token = tok
		if dialog.Action == "" {
			dialog.Action = r.URL.Path
		}
		if dialog.ConfirmLabel == "" {
			dialog.ConfirmLabel = "Confirmer"
		}
		h.Render(w, r, http.StatusOK, view.Page{Template: "confirm", Title: dialog.Title, Data: dialog})
		return session.Confirmation{}, false
	}

	c, ok := h.Sessions.ConsumeConfirmation(ctx, s, token, action)
	if !ok {
		appErr := internal.NewValidationError("Cette confirmation n'est plus valide. Recommencez l'action.", internal.ErrCodeConfirmationRequired)
		h.HandleError(w, r, appErr, dialog.Cancel)
		return session.Confirmation{}, false
	}
	return c, true
}
