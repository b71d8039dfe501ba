package bordereau

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/go-chi/chi"
)

const (
	listPage = "/admin/forms"
	pageSize = 20
)

type ServiceAPI interface {
	List(ctx context.Context, f listing.Filters, page listing.Page) ([]Form, listing.Page, error)
	Get(ctx context.Context, id string) (*Detail, error)
	Correct(ctx context.Context, d CorrectionDTO, current string) (*Override, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: service}
}

func detailPage(id string) string { return listPage + "/" + id }

func statusOptions(except string) []view.Option {
	out := make([]view.Option, 0, len(statuses))
	for _, s := range statuses {
		if s == except {
			continue
		}
		out = append(out, view.Option{Value: s, Label: view.StatusBadge(s).Label})
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	state := listing.Resolve(r.URL.Query(), pageSize)
	forms, page, err := h.Service.List(r.Context(), state.Filters, state.Page)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	table := view.Table{
		Title: "Bordereaux",
		Columns: []view.Column{
			{Key: "number", Label: "Numéro"},
			{Key: "merchant", Label: "Commerçant"},
			{Key: "traveler", Label: "Voyageur"},
			{Key: "refund", Label: "Remboursement"},
			{Key: "risk", Label: "Risque"},
			{Key: "created_at", Label: "Créé le"},
			{Key: "status", Label: "Statut"},
		},
		Page:     page,
		Filters:  state.Filters,
		BasePath: listPage,
		Empty:    "Aucun bordereau ne correspond à ces critères.",
		Fields: []view.FilterField{
			view.Input("search", "Recherche", "search", state.Filters.Search),
			view.Select("status", "Statut", state.Filters.Status, statusOptions("")...),
			view.Select("category", "Risque", state.Filters.Category, view.Option{Value: "high", Label: "À contrôler"}),
			view.Input("date_from", "Du", "date", state.Filters.From),
			view.Input("date_to", "Au", "date", state.Filters.To),
		},
	}
	for _, f := range forms {
		table.Rows = append(table.Rows, view.Row{
			ID: f.ID,
			Cells: []view.Cell{
				{Text: f.FormNumber, Href: detailPage(f.ID)},
				view.Text(view.Or(f.MerchantName)),
				view.Text(view.Or(f.TravelerName)),
				view.Text(view.Amount(f.RefundAmount, f.CurrencyCode())),
				riskCell(f),
				view.Text(view.DateTime(f.CreatedAt)),
				view.Status(f.Status),
			},
			Actions: []view.Control{view.Link("Détails", detailPage(f.ID))},
		})
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "list", Title: table.Title, Data: table})
}

func riskCell(f Form) view.Cell {
	score := strconv.Itoa(f.RiskScore)
	if f.HighRisk() {
		return view.Cell{Text: score, Badge: &view.Badge{Label: score + " - à contrôler", Tone: view.ToneDanger}}
	}
	return view.Text(score)
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
	h.renderDetail(w, r, http.StatusOK, d, nil, nil)
}

// renderDetail shows the form with its override history and the
// correction form, refilled with values and errs after a rejected post.
func (h *Handler) renderDetail(w http.ResponseWriter, r *http.Request, status int, d *Detail, values, errs map[string]string) {
	f := d.Form
	cur := f.CurrencyCode()
	page := view.Detail{
		Title:    "Bordereau " + f.FormNumber,
		Subtitle: view.Or(f.MerchantName),
		Back:     listPage,
		Items: []view.DetailItem{
			view.StatusItem("Statut", f.Status),
			view.Item("Point de vente", view.Or(f.OutletName)),
			view.Item("Voyageur", view.Or(f.TravelerName)),
			view.Item("Nationalité", view.Or(f.TravelerNationality)),
			view.Item("Montant éligible", view.Amount(f.EligibleAmount, cur)),
			view.Item("TVA", view.Amount(f.VATAmount, cur)),
			view.Item("Remboursement", view.Amount(f.RefundAmount, cur)),
			view.Item("Score de risque", strconv.Itoa(f.RiskScore)),
			view.Item("Point de sortie", view.Or(f.PointOfExitName)),
			view.Item("Créé le", view.DateTime(f.CreatedAt)),
			view.Item("Expire le", view.DateTimePtr(f.ExpiresAt)),
			view.Item("Validé le", view.DateTimePtr(f.ValidatedAt)),
		},
		Tables: []view.Table{overridesTable(d.Overrides)},
		Forms:  []view.Form{h.correctionForm(r, f, values, errs)},
	}
	h.Render(w, r, status, view.Page{Template: "detail", Title: page.Title, Data: page})
}

func overridesTable(overrides []Override) view.Table {
	t := view.Table{
		Title: "Corrections de statut",
		Columns: []view.Column{
			{Key: "created_at", Label: "Date"},
			{Key: "from", Label: "Ancien statut"},
			{Key: "to", Label: "Nouveau statut"},
			{Key: "reason", Label: "Motif"},
			{Key: "by", Label: "Par"},
		},
		Empty: "Aucune correction.",
	}
	for _, o := range overrides {
		t.Rows = append(t.Rows, view.Row{ID: o.ID, Cells: []view.Cell{
			view.Text(view.DateTime(o.CreatedAt)),
			view.Status(o.PreviousStatus),
			view.Status(o.NewStatus),
			view.Text(o.Reason),
			view.Text(view.Or(o.CreatedBy)),
		}})
	}
	return t
}

func (h *Handler) correctionForm(r *http.Request, f Form, values, errs map[string]string) view.Form {
	gate := view.Gate(h.Resolver(r), permission.ModuleForms, permission.ActionEdit, "", "", http.MethodPost)
	form := view.Form{
		Title:  "Corriger le statut",
		Action: detailPage(f.ID) + "/status",
		Submit: "Corriger",
		Fields: []view.FormField{
			{Name: "new_status", Label: "Nouveau statut", Type: "select", Required: true, Options: selected(statusOptions(f.Status), values["new_status"])},
			{Name: "reason", Label: "Motif (10 caractères minimum)", Type: "textarea", Value: values["reason"], Required: true},
		},
		Enabled: gate.Enabled,
		Tooltip: gate.Tooltip,
	}
	form.ApplyErrors(errs)
	return form
}

func selected(opts []view.Option, current string) []view.Option {
	for i := range opts {
		opts[i].Selected = opts[i].Value == current
	}
	return opts
}

// Correct validates the override, asks for confirmation, then posts it
// once. The confirmation carries the chosen status and reason.
func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
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
	d, err := h.Service.Get(ctx, id)
	if err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}

	var target map[string]string
	if values[transport.ConfirmTokenField] == "" {
		dto := ParseCorrection(id, values)
		if appErr := dto.Validate(d.Status); appErr != nil {
			h.rejected(w, r, d, values, appErr)
			return
		}
		target = dto.Target()
	}
	dialog := view.Confirm{
		Title:        "Corriger le statut",
		Message:      "Le bordereau " + d.FormNumber + " passera au statut " + view.StatusBadge(values["new_status"]).Label + ". Cette correction est tracée.",
		ConfirmLabel: "Corriger",
		Cancel:       detailPage(id),
		Danger:       true,
	}
	c, ok := h.Confirmed(w, r, values, "forms.override:"+id, target, dialog)
	if !ok {
		return
	}

	dto := ParseCorrection(id, c.Target)
	if _, err := h.Service.Correct(ctx, dto, d.Status); err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}
	h.Success(w, r, "Statut du bordereau "+d.FormNumber+" corrigé : "+view.StatusBadge(dto.NewStatus).Label+".", detailPage(id))
}

func (h *Handler) rejected(w http.ResponseWriter, r *http.Request, d *Detail, values map[string]string, appErr *internal.AppError) {
	if h.WantsJSON(r) {
		h.WriteAppError(w, appErr)
		return
	}
	errs := appErr.FieldErrors()
	if len(errs) == 0 {
		h.Flash(r, session.FlashError, appErr.Message)
	}
	h.renderDetail(w, r, http.StatusBadRequest, d, values, errs)
}
