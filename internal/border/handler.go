package border

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
	"github.com/go-chi/chi"
)

const (
	listPage  = "/admin/borders"
	statsPage = "/admin/borders/stats"

	DefaultPageSize = 5
)

type ServiceAPI interface {
	List(ctx context.Context, f listing.Filters) ([]PointOfExit, error)
	Stats(ctx context.Context) ([]Stats, error)
	Get(ctx context.Context, id string) (*Detail, error)
	SetActive(ctx context.Context, id string, active bool) (*PointOfExit, error)
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

func typeOptions() []view.Option {
	return []view.Option{
		{Value: TypeAirport, Label: TypeLabel(TypeAirport)},
		{Value: TypeLandBorder, Label: TypeLabel(TypeLandBorder)},
		{Value: TypePort, Label: TypeLabel(TypePort)},
		{Value: TypeRail, Label: TypeLabel(TypeRail)},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	state := listing.Resolve(r.URL.Query(), h.PageSize)
	borders, err := h.Service.List(r.Context(), state.Filters)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	items, page := listing.Slice(borders, state.Page)
	resolver := h.Resolver(r)
	table := view.Table{
		Title: "Points de sortie",
		Columns: []view.Column{
			{Key: "code", Label: "Code"},
			{Key: "name", Label: "Nom"},
			{Key: "type", Label: "Type"},
			{Key: "city", Label: "Ville"},
			{Key: "agents", Label: "Agents"},
			{Key: "validations_today", Label: "Validations du jour"},
			{Key: "status", Label: "Statut"},
		},
		Page:     page,
		Filters:  state.Filters,
		BasePath: listPage,
		Empty:    "Aucun point de sortie.",
		Fields: []view.FilterField{
			view.Input("search", "Recherche", "search", state.Filters.Search),
			view.Select("category", "Type", state.Filters.Category, typeOptions()...),
			view.Select("status", "Statut", state.Filters.Status,
				view.Option{Value: "active", Label: "Actif"},
				view.Option{Value: "inactive", Label: "Inactif"},
			),
		},
		Toolbar: []view.Control{view.Link("Statistiques", statsPage)},
	}
	for _, p := range items {
		table.Rows = append(table.Rows, view.Row{
			ID: p.ID,
			Cells: []view.Cell{
				view.Text(p.Code),
				{Text: p.Name, Href: detailPage(p.ID)},
				view.Text(p.Kind()),
				view.Text(view.Or(p.City)),
				view.Text(strconv.Itoa(p.AgentsCount)),
				view.Text(strconv.Itoa(p.ValidationsToday)),
				view.Active(p.IsActive),
			},
			Actions: []view.Control{
				view.Link("Détails", detailPage(p.ID)),
				toggleControl(resolver, p, r.URL.RequestURI()),
			},
		})
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "list", Title: table.Title, Data: table})
}

func toggleControl(resolver permission.Resolver, p PointOfExit, back string) view.Control {
	label := "Fermer"
	if !p.IsActive {
		label = "Ouvrir"
	}
	c := view.Gate(resolver, permission.ModuleBorders, permission.ActionEdit, label, detailPage(p.ID)+"/active", http.MethodPost)
	c.Danger = p.IsActive
	c.Fields = map[string]string{"is_active": strconv.FormatBool(!p.IsActive), "back": back}
	return c
}

// Stats shows the activity report of every point of exit.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	state := listing.Resolve(r.URL.Query(), h.PageSize)
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}
	stats = listing.FilterBy(stats, func(s Stats) bool { return state.Filters.Matches(s.Code, s.Name, s.City) })

	items, page := listing.Slice(stats, state.Page)
	table := view.Table{
		Title: "Activité des points de sortie",
		Columns: []view.Column{
			{Key: "code", Label: "Code"},
			{Key: "name", Label: "Nom"},
			{Key: "agents", Label: "Agents"},
			{Key: "validations_today", Label: "Aujourd'hui"},
			{Key: "total_validations", Label: "Total"},
			{Key: "status", Label: "Statut"},
		},
		Page:     page,
		Filters:  state.Filters,
		BasePath: statsPage,
		Fields:   []view.FilterField{view.Input("search", "Recherche", "search", state.Filters.Search)},
		Toolbar:  []view.Control{view.Link("Points de sortie", listPage)},
	}
	for _, s := range items {
		table.Rows = append(table.Rows, view.Row{
			ID: s.ID,
			Cells: []view.Cell{
				view.Text(s.Code),
				{Text: s.Name, Href: detailPage(s.ID)},
				view.Text(strconv.Itoa(s.AgentsCount)),
				view.Text(strconv.Itoa(s.ValidationsToday)),
				view.Text(strconv.Itoa(s.TotalValidations)),
				view.Active(s.IsActive),
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
	d, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	hours := view.Or(d.OperatingHours)
	if d.Is24h {
		hours = "24h/24"
	}
	page := view.Detail{
		Title:    d.Code + " - " + d.Name,
		Subtitle: d.Kind(),
		Back:     listPage,
		Items: []view.DetailItem{
			view.Item("Adresse", view.Or(d.Address)),
			view.Item("Ville", view.Or(d.City)),
			view.Item("Province", view.Or(d.Province)),
			view.Item("Responsable", view.Or(d.ManagerName)),
			view.Item("Téléphone", view.Or(d.Phone)),
			view.Item("Email", view.Or(d.Email)),
			view.Item("Horaires", hours),
			view.Item("Capacité journalière", strconv.Itoa(d.DailyCapacity)),
			view.ActiveItem("Statut", d.IsActive),
			view.Item("Agents", strconv.Itoa(d.AgentsCount)),
			view.Item("Validations du jour", strconv.Itoa(d.ValidationsToday)),
		},
		Actions: []view.Control{toggleControl(h.Resolver(r), d.PointOfExit, detailPage(id))},
	}
	if d.Stats != nil {
		page.Items = append(page.Items, view.Item("Validations totales", strconv.Itoa(d.Stats.TotalValidations)))
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "detail", Title: page.Title, Data: page})
}

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

	p, err := h.Service.SetActive(r.Context(), id, active)
	if err != nil {
		h.HandleError(w, r, err, back)
		return
	}
	msg := p.Name + " est fermé."
	if p.IsActive {
		msg = p.Name + " est ouvert."
	}
	h.Success(w, r, msg, back)
}
