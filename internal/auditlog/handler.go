package auditlog

import (
	"context"
	"net/http"

	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
	"github.com/go-chi/chi"
)

const (
	listPage   = "/admin/audit"
	exportPage = "/admin/audit/export"

	pageSize = 20
)

type ServiceAPI interface {
	List(ctx context.Context, f listing.Filters, page listing.Page) ([]Entry, listing.Page, error)
	Options(ctx context.Context) (Options, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Export(ctx context.Context, f listing.Filters) (*apiclient.Download, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: service}
}

func options(values []string) []view.Option {
	out := make([]view.Option, 0, len(values))
	for _, v := range values {
		out = append(out, view.Option{Value: v, Label: v})
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := listing.Resolve(r.URL.Query(), pageSize)
	entries, page, err := h.Service.List(ctx, state.Filters, state.Page)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}
	opts, err := h.Service.Options(ctx)
	if err != nil {
		logger.From(ctx).Warn("audit filter options unavailable", "error", err)
	}

	export := view.Gate(h.Resolver(r), permission.ModuleAudit, permission.ActionExport, "Exporter", exportPage, http.MethodGet)
	if q := state.Filters.Values().Encode(); q != "" {
		export.Href += "?" + q
	}
	table := view.Table{
		Title: "Journal d'audit",
		Columns: []view.Column{
			{Key: "timestamp", Label: "Date"},
			{Key: "action", Label: "Action"},
			{Key: "entity", Label: "Entité"},
			{Key: "entity_id", Label: "Identifiant"},
			{Key: "actor", Label: "Utilisateur"},
			{Key: "ip", Label: "Adresse IP"},
		},
		Page:     page,
		Filters:  state.Filters,
		BasePath: listPage,
		Empty:    "Aucune entrée pour ces critères.",
		Fields: []view.FilterField{
			view.Input("search", "Recherche", "search", state.Filters.Search),
			view.Select("status", "Action", state.Filters.Status, options(opts.Actions)...),
			view.Select("category", "Entité", state.Filters.Category, options(opts.Entities)...),
			view.Input("date_from", "Du", "date", state.Filters.From),
			view.Input("date_to", "Au", "date", state.Filters.To),
		},
		Toolbar: []view.Control{export},
	}
	for _, e := range entries {
		table.Rows = append(table.Rows, view.Row{
			ID: e.ID,
			Cells: []view.Cell{
				{Text: view.DateTime(e.Timestamp), Href: listPage + "/" + e.ID},
				view.Text(e.ActionLabel()),
				view.Text(e.EntityLabel()),
				view.Text(view.Or(e.EntityID)),
				view.Text(e.Actor()),
				view.Text(view.Or(e.ActorIP)),
			},
		})
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "list", Title: table.Title, Data: table})
}

func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if appErr := validation.ResourceID(id); appErr != nil {
		h.HandleError(w, r, appErr, "")
		return
	}
	e, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	page := view.Detail{
		Title:    e.ActionLabel(),
		Subtitle: view.DateTime(e.Timestamp),
		Back:     listPage,
		Items: []view.DetailItem{
			view.Item("Entité", e.EntityLabel()),
			view.Item("Identifiant", view.Or(e.EntityID)),
			view.Item("Utilisateur", e.Actor()),
			view.Item("Rôle", view.Or(e.RoleDisplay)),
			view.Item("Adresse IP", view.Or(e.ActorIP)),
			view.Item("Dernière connexion", view.DateTimePtr(e.ActorLastLogin)),
			view.Item("Dernière déconnexion", view.DateTimePtr(e.ActorLastLogout)),
		},
	}
	for _, f := range e.Fields() {
		page.Items = append(page.Items, view.Item(f.Key, f.Value))
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "detail", Title: page.Title, Data: page})
}

// Export streams the filtered trail produced by the backend.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	f := listing.ParseFilters(r.URL.Query())
	d, err := h.Service.Export(r.Context(), f)
	if err != nil {
		back := listPage
		if q := f.Values().Encode(); q != "" {
			back += "?" + q
		}
		h.HandleError(w, r, err, back)
		return
	}
	h.SendDownload(w, r, d)
}
