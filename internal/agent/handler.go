package agent

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
	"github.com/frahmantamala/taxfree-console/internal/guard"
	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
	"github.com/go-chi/chi"
	"golang.org/x/sync/errgroup"
)

const (
	listPage        = "/admin/agents"
	invitationsPage = "/admin/agents/invitations"
)

// DefaultPageSize applies when the configuration leaves it unset.
const DefaultPageSize = 10

type ServiceAPI interface {
	List(ctx context.Context, f listing.Filters) ([]Agent, error)
	Borders(ctx context.Context) ([]Border, error)
	Get(ctx context.Context, id string) (*Detail, error)
	SetActive(ctx context.Context, id string, active bool) (*Agent, error)
	Invitations(ctx context.Context, f listing.Filters) ([]Invitation, error)
	ResendInvitation(ctx context.Context, id string) (string, error)
	CancelInvitation(ctx context.Context, id string) error
}

type Handler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	PageSize int
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI, pageSize int) *Handler {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Handler{BaseHandler: base, Service: service, PageSize: pageSize}
}

func detailPage(id string) string { return listPage + "/" + id }

// List shows the agent directory. Agents and the border filter options
// load together; a failed border lookup only leaves the filter empty.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := listing.Resolve(r.URL.Query(), h.PageSize)

	var (
		agents  []Agent
		borders []Border
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agents, err = h.Service.List(gctx, state.Filters)
		return err
	})
	g.Go(func() error {
		var err error
		if borders, err = h.Service.Borders(gctx); err != nil {
			logger.From(ctx).Warn("border filter unavailable", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	items, page := listing.Slice(agents, state.Page)
	resolver := h.Resolver(r)
	table := view.Table{
		Title: "Agents douaniers",
		Columns: []view.Column{
			{Key: "name", Label: "Agent"},
			{Key: "matricule", Label: "Matricule"},
			{Key: "email", Label: "Email"},
			{Key: "point_of_exit", Label: "Frontière"},
			{Key: "validations", Label: "Validations (jour / total)"},
			{Key: "status", Label: "Statut"},
		},
		Page:     page,
		Filters:  state.Filters,
		BasePath: listPage,
		Empty:    "Aucun agent ne correspond à ces critères.",
		Fields: []view.FilterField{
			view.Input("search", "Recherche", "search", state.Filters.Search),
			view.Select("category", "Frontière", state.Filters.Category, borderOptions(borders)...),
			view.Select("status", "Statut", state.Filters.Status,
				view.Option{Value: "active", Label: "Actif"},
				view.Option{Value: "inactive", Label: "Inactif"},
			),
		},
		Toolbar: []view.Control{view.Link("Invitations", invitationsPage)},
	}
	for _, a := range items {
		table.Rows = append(table.Rows, view.Row{
			ID: a.ID,
			Cells: []view.Cell{
				{Text: a.Name(), Href: detailPage(a.ID)},
				view.Text(view.Or(a.Matricule)),
				view.Text(a.Email),
				view.Text(view.Or(a.PointOfExitName)),
				view.Text(strconv.Itoa(a.ValidationsToday) + " / " + strconv.Itoa(a.ValidationsCount)),
				view.Active(a.IsActive),
			},
			Actions: []view.Control{
				view.Link("Détails", detailPage(a.ID)),
				toggleControl(resolver, a, r.URL.RequestURI()),
			},
		})
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "list", Title: table.Title, Data: table})
}

func borderOptions(borders []Border) []view.Option {
	out := make([]view.Option, 0, len(borders))
	for _, b := range borders {
		out = append(out, view.Option{Value: b.ID, Label: b.Code + " - " + b.Name})
	}
	return out
}

func toggleControl(resolver permission.Resolver, a Agent, back string) view.Control {
	label := "Désactiver"
	if !a.IsActive {
		label = "Activer"
	}
	c := view.Gate(resolver, permission.ModuleAgents, permission.ActionEdit, label, detailPage(a.ID)+"/active", http.MethodPost)
	c.Danger = a.IsActive
	c.Fields = map[string]string{"is_active": strconv.FormatBool(!a.IsActive), "back": back}
	return c
}

// Detail shows one agent with their validation counters.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if appErr := validation.ResourceID(id); appErr != nil {
		h.HandleError(w, r, appErr, "")
		return
	}
	d, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	a := d.Agent
	page := view.Detail{
		Title:    a.Name(),
		Subtitle: view.Or(a.Grade),
		Back:     listPage,
		Items: []view.DetailItem{
			view.Item("Email", a.Email),
			view.Item("Téléphone", view.Or(a.Phone)),
			view.Item("Matricule", view.Or(a.Matricule)),
			view.Item("Département", view.Or(a.Department)),
			view.Item("Frontière", view.Or(a.PointOfExitName)),
			view.ActiveItem("Statut", a.IsActive),
			view.Item("Validations totales", strconv.Itoa(d.Stats.TotalValidations)),
			view.Item("Validations aujourd'hui", strconv.Itoa(d.Stats.ValidationsToday)),
			view.Item("Bordereaux validés", strconv.Itoa(d.Stats.ValidatedCount)),
			view.Item("Bordereaux refusés", strconv.Itoa(d.Stats.RefusedCount)),
			view.Item("Dernière connexion", view.DateTimePtr(a.LastLogin)),
			view.Item("Créé le", view.DateTime(a.CreatedAt)),
		},
		Actions: []view.Control{toggleControl(h.Resolver(r), a, detailPage(a.ID))},
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "detail", Title: page.Title, Data: page})
}

// SetActive flips an agent's account on or off.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if appErr := validation.ResourceID(id); appErr != nil {
		h.HandleError(w, r, appErr, "")
		return
	}
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}
	back := guard.SafeNext(values["back"])
	if back == "" {
		back = detailPage(id)
	}
	active, perr := strconv.ParseBool(values["is_active"])
	if perr != nil {
		h.HandleError(w, r, internal.NewValidationFieldError("is_active", "Valeur invalide", internal.ErrCodeValidationFailed), back)
		return
	}

	a, err := h.Service.SetActive(r.Context(), id, active)
	if err != nil {
		h.HandleError(w, r, err, back)
		return
	}
	msg := "Le compte de " + a.Name() + " est désactivé."
	if a.IsActive {
		msg = "Le compte de " + a.Name() + " est activé."
	}
	h.Success(w, r, msg, back)
}

var invitationStatuses = []view.Option{
	{Value: InvitationPending, Label: "En attente"},
	{Value: InvitationAccepted, Label: "Acceptée"},
	{Value: InvitationExpired, Label: "Expirée"},
	{Value: InvitationCancelled, Label: "Annulée"},
}

// Invitations lists the activation links sent to future agents.
func (h *Handler) Invitations(w http.ResponseWriter, r *http.Request) {
	state := listing.Resolve(r.URL.Query(), h.PageSize)
	invitations, err := h.Service.Invitations(r.Context(), state.Filters)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	items, page := listing.Slice(invitations, state.Page)
	resolver := h.Resolver(r)
	table := view.Table{
		Title: "Invitations d'agents",
		Columns: []view.Column{
			{Key: "email", Label: "Email"},
			{Key: "name", Label: "Nom"},
			{Key: "matricule", Label: "Matricule"},
			{Key: "point_of_exit", Label: "Frontière"},
			{Key: "status", Label: "Statut"},
			{Key: "expires_at", Label: "Expire le"},
			{Key: "created_by", Label: "Invité par"},
		},
		Page:     page,
		Filters:  state.Filters,
		BasePath: invitationsPage,
		Empty:    "Aucune invitation.",
		Fields: []view.FilterField{
			view.Input("search", "Recherche", "search", state.Filters.Search),
			view.Select("status", "Statut", state.Filters.Status, append([]view.Option(nil), invitationStatuses...)...),
		},
		Toolbar: []view.Control{view.Link("Agents", listPage)},
	}
	for _, inv := range items {
		row := view.Row{
			ID: inv.ID,
			Cells: []view.Cell{
				view.Text(inv.Email),
				view.Text(view.Or(inv.FirstName + " " + inv.LastName)),
				view.Text(view.Or(inv.Matricule)),
				view.Text(view.Or(inv.PointOfExitName)),
				view.Status(inv.DisplayStatus()),
				view.Text(view.DateTime(inv.ExpiresAt)),
				view.Text(view.Or(inv.CreatedByName)),
			},
		}
		base := invitationsPage + "/" + inv.ID
		if inv.Resendable() {
			row.Actions = append(row.Actions, view.Gate(resolver, permission.ModuleAgents, permission.ActionCreate, "Renvoyer", base+"/resend", http.MethodPost))
		}
		if inv.Cancellable() {
			c := view.Gate(resolver, permission.ModuleAgents, permission.ActionDelete, "Annuler", base+"/cancel", http.MethodPost)
			c.Danger = true
			row.Actions = append(row.Actions, c)
		}
		table.Rows = append(table.Rows, row)
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "list", Title: table.Title, Data: table})
}

func (h *Handler) ResendInvitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if appErr := validation.ResourceID(id); appErr != nil {
		h.HandleError(w, r, appErr, invitationsPage)
		return
	}
	msg, err := h.Service.ResendInvitation(r.Context(), id)
	if err != nil {
		h.HandleError(w, r, err, invitationsPage)
		return
	}
	h.Success(w, r, msg, invitationsPage)
}

// CancelInvitation asks for confirmation, then revokes the invitation
// exactly once.
func (h *Handler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if appErr := validation.ResourceID(id); appErr != nil {
		h.HandleError(w, r, appErr, invitationsPage)
		return
	}
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, invitationsPage)
		return
	}
	dialog := view.Confirm{
		Title:        "Annuler l'invitation",
		Message:      "Le lien d'activation envoyé à cet agent ne fonctionnera plus.",
		ConfirmLabel: "Annuler l'invitation",
		Cancel:       invitationsPage,
		Danger:       true,
	}
	if _, ok := h.Confirmed(w, r, values, "agents.invitation.cancel:"+id, map[string]string{"id": id}, dialog); !ok {
		return
	}
	if err := h.Service.CancelInvitation(r.Context(), id); err != nil {
		h.HandleError(w, r, err, invitationsPage)
		return
	}
	h.Success(w, r, "Invitation annulée.", invitationsPage)
}
