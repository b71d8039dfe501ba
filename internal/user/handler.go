package user

import (
	"context"
	"net/http"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
)

const (
	accountPage  = "/account"
	passwordPage = "/account/password"
	homePath     = "/admin/dashboard"
)

type ServiceAPI interface {
	Get(ctx context.Context, s *session.Session) (*Profile, error)
	Update(ctx context.Context, s *session.Session, dto UpdateProfileDTO) (*Profile, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: service}
}

func profileForm(firstName, lastName, phone string) view.Form {
	return view.Form{
		Title:   "Modifier le profil",
		Action:  accountPage,
		Submit:  "Enregistrer",
		Enabled: true,
		Fields: []view.FormField{
			{Name: "first_name", Label: "Prénom", Type: "text", Value: firstName, Required: true},
			{Name: "last_name", Label: "Nom", Type: "text", Value: lastName, Required: true},
			{Name: "phone", Label: "Téléphone", Type: "tel", Value: phone},
		},
	}
}

func accountDetail(p *Profile, form view.Form) view.Detail {
	items := []view.DetailItem{
		view.Item("Email", p.Email),
		view.Item("Rôle", p.RoleLabel()),
		view.Item("Téléphone", view.Or(p.Phone)),
		view.ActiveItem("Compte", p.IsActive),
	}
	if p.MerchantName != "" {
		items = append(items, view.Item("Commerçant", p.MerchantName))
	}
	if p.PointOfExitName != "" {
		items = append(items, view.Item("Point de sortie", p.PointOfExitName))
	}
	if !p.CreatedAt.IsZero() {
		items = append(items, view.Item("Membre depuis", view.Date(p.CreatedAt)))
	}
	return view.Detail{
		Title:    p.FullName(),
		Subtitle: "Mon compte",
		Items:    items,
		Actions:  []view.Control{view.Link("Changer le mot de passe", passwordPage)},
		Forms:    []view.Form{form},
		Back:     homePath,
	}
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Get(r.Context(), h.Session(r))
	if err != nil {
		h.HandleError(w, r, err, homePath)
		return
	}
	if h.WantsJSON(r) {
		h.WriteJSON(w, http.StatusOK, p)
		return
	}
	h.Render(w, r, http.StatusOK, view.Page{
		Template: "detail",
		Title:    "Mon compte",
		Data:     accountDetail(p, profileForm(p.FirstName, p.LastName, p.Phone)),
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, accountPage)
		return
	}
	dto := updateFromValues(values)
	p, err := h.Service.Update(r.Context(), s, dto)
	if err != nil {
		appErr, ok := internal.IsAppError(err)
		if !ok || appErr.Type != internal.ErrorTypeValidation || h.WantsJSON(r) {
			h.HandleError(w, r, err, accountPage)
			return
		}
		current, getErr := h.Service.Get(r.Context(), s)
		if getErr != nil {
			h.HandleError(w, r, getErr, accountPage)
			return
		}
		form := profileForm(dto.FirstName, dto.LastName, dto.Phone)
		form.Message = appErr.GetDetailedMessage()
		form.ApplyErrors(appErr.FieldErrors())
		h.Render(w, r, http.StatusBadRequest, view.Page{Template: "detail", Title: "Mon compte", Data: accountDetail(current, form)})
		return
	}
	if h.WantsJSON(r) {
		h.WriteJSON(w, http.StatusOK, p)
		return
	}
	h.Success(w, r, "Profil mis à jour.", accountPage)
}
