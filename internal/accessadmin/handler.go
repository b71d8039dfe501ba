package accessadmin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
	"github.com/go-chi/chi"
	"golang.org/x/sync/errgroup"
)

const (
	listPage = "/admin/permissions"
	pageSize = 10
)

type ServiceAPI interface {
	Users(ctx context.Context, f listing.Filters) ([]SystemUser, error)
	User(ctx context.Context, id string) (*SystemUser, error)
	Presets(ctx context.Context) ([]Preset, error)
	Grant(ctx context.Context, id string, g permission.Grant) error
	Revoke(ctx context.Context, id string, g permission.Grant) error
	ApplyPreset(ctx context.Context, id string, d PresetDTO) (*PresetResult, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: service}
}

func detailPage(id string) string { return listPage + "/" + id }

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	state := listing.Resolve(r.URL.Query(), pageSize)
	users, err := h.Service.Users(r.Context(), state.Filters)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	items, page := listing.Slice(users, state.Page)
	roles := make([]view.Option, 0, len(permission.Roles()))
	for _, role := range permission.Roles() {
		roles = append(roles, view.Option{Value: string(role), Label: string(role)})
	}
	table := view.Table{
		Title: "Gestion des accès",
		Columns: []view.Column{
			{Key: "name", Label: "Utilisateur"},
			{Key: "email", Label: "Email"},
			{Key: "role", Label: "Rôle"},
			{Key: "permissions", Label: "Permissions"},
			{Key: "status", Label: "Statut"},
		},
		Page:     page,
		Filters:  state.Filters,
		BasePath: listPage,
		Empty:    "Aucun utilisateur système.",
		Fields: []view.FilterField{
			view.Input("search", "Recherche", "search", state.Filters.Search),
			view.Select("category", "Rôle", state.Filters.Category, roles...),
		},
	}
	for _, u := range items {
		id := u.ID.String()
		table.Rows = append(table.Rows, view.Row{
			ID: id,
			Cells: []view.Cell{
				{Text: u.Name(), Href: detailPage(id)},
				view.Text(u.Email),
				view.Text(u.RoleLabel()),
				view.Text(grantSummary(u)),
				view.Active(u.IsActive),
			},
			Actions: []view.Control{view.Link("Gérer", detailPage(id))},
		})
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "list", Title: table.Title, Data: table})
}

func grantSummary(u SystemUser) string {
	if u.IsSuperAdmin {
		return "Super administrateur"
	}
	if n := u.Permissions.Len(); n > 0 {
		return strconv.Itoa(n)
	}
	return strconv.Itoa(u.PermissionsCount)
}

// Detail shows the user's grants with the revoke, grant and preset
// actions. Presets failing to load only hide their table.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if appErr := validation.UserID(id); appErr != nil {
		h.HandleError(w, r, appErr, "")
		return
	}

	var (
		user    *SystemUser
		presets []Preset
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = h.Service.User(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		if presets, err = h.Service.Presets(gctx); err != nil {
			logger.From(ctx).Warn("permission presets unavailable", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		h.HandleError(w, r, err, listPage)
		return
	}

	resolver := h.Resolver(r)
	page := view.Detail{
		Title:    user.Name(),
		Subtitle: user.RoleLabel(),
		Back:     listPage,
		Items: []view.DetailItem{
			view.Item("Email", user.Email),
			view.ActiveItem("Statut", user.IsActive),
			view.Item("Permissions", grantSummary(*user)),
		},
		Tables: []view.Table{grantsTable(resolver, id, *user)},
		Forms:  []view.Form{grantForm(resolver, id)},
	}
	if presets != nil {
		page.Tables = append(page.Tables, presetsTable(resolver, id, presets))
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "detail", Title: page.Title, Data: page})
}

func grantsTable(resolver permission.Resolver, id string, u SystemUser) view.Table {
	t := view.Table{
		Title: "Permissions accordées",
		Columns: []view.Column{
			{Key: "module", Label: "Module"},
			{Key: "action", Label: "Action"},
			{Key: "granted_by", Label: "Accordée par"},
			{Key: "granted_at", Label: "Le"},
		},
		Empty: "Aucune permission.",
	}
	for _, g := range u.Permissions.All() {
		c := view.Gate(resolver, permission.ModulePermissions, permission.ActionManage, "Retirer", detailPage(id)+"/revoke", http.MethodPost)
		c.Danger = true
		c.Fields = map[string]string{"module": string(g.Module), "action": string(g.Action)}
		t.Rows = append(t.Rows, view.Row{
			ID: string(g.Module) + ":" + string(g.Action),
			Cells: []view.Cell{
				view.Text(g.Module.Label()),
				view.Text(g.Action.Label()),
				view.Text(view.Or(g.GrantedBy)),
				view.Text(view.DateTimePtr(g.GrantedAt)),
			},
			Actions: []view.Control{c},
		})
	}
	return t
}

func presetsTable(resolver permission.Resolver, id string, presets []Preset) view.Table {
	t := view.Table{
		Title: "Profils prédéfinis",
		Columns: []view.Column{
			{Key: "name", Label: "Profil"},
			{Key: "description", Label: "Description"},
			{Key: "permissions", Label: "Permissions"},
		},
		Empty: "Aucun profil.",
	}
	for _, p := range presets {
		c := view.Gate(resolver, permission.ModulePermissions, permission.ActionManage, "Appliquer", detailPage(id)+"/preset", http.MethodPost)
		c.Fields = map[string]string{"preset_id": p.ID}
		t.Rows = append(t.Rows, view.Row{
			ID: p.ID,
			Cells: []view.Cell{
				view.Text(p.Name),
				view.Text(view.Or(p.Description)),
				view.Text(strconv.Itoa(p.Permissions.Len())),
			},
			Actions: []view.Control{c},
		})
	}
	return t
}

func grantForm(resolver permission.Resolver, id string) view.Form {
	modules := make([]view.Option, 0, len(permission.Modules()))
	for _, m := range permission.Modules() {
		modules = append(modules, view.Option{Value: string(m), Label: m.Label()})
	}
	actions := make([]view.Option, 0, len(permission.Actions()))
	for _, a := range permission.Actions() {
		actions = append(actions, view.Option{Value: string(a), Label: a.Label()})
	}
	gate := view.Gate(resolver, permission.ModulePermissions, permission.ActionManage, "", "", http.MethodPost)
	return view.Form{
		Title:  "Accorder une permission",
		Action: detailPage(id) + "/grant",
		Submit: "Accorder",
		Fields: []view.FormField{
			{Name: "module", Label: "Module", Type: "select", Required: true, Options: modules},
			{Name: "action", Label: "Action", Type: "select", Required: true, Options: actions},
		},
		Enabled: gate.Enabled,
		Tooltip: gate.Tooltip,
	}
}

func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if appErr := validation.UserID(id); appErr != nil {
		h.HandleError(w, r, appErr, listPage)
		return
	}
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}
	g, appErr := ParseGrant(values).Grant()
	if appErr != nil {
		h.HandleError(w, r, appErr, detailPage(id))
		return
	}
	if err := h.Service.Grant(r.Context(), id, g); err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}
	h.Success(w, r, "Permission "+g.Module.Label()+" / "+g.Action.Label()+" accordée.", detailPage(id))
}

// Revoke asks for confirmation, then removes the parked grant exactly
// once. The grant comes from the confirmation, not the confirming post.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if appErr := validation.UserID(id); appErr != nil {
		h.HandleError(w, r, appErr, listPage)
		return
	}
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}

	var target map[string]string
	if values[transport.ConfirmTokenField] == "" {
		g, appErr := ParseGrant(values).Grant()
		if appErr != nil {
			h.HandleError(w, r, appErr, detailPage(id))
			return
		}
		target = map[string]string{"module": string(g.Module), "action": string(g.Action)}
	}
	dialog := view.Confirm{
		Title:        "Retirer la permission",
		Message:      "L'utilisateur perdra cet accès dès sa prochaine action.",
		ConfirmLabel: "Retirer",
		Cancel:       detailPage(id),
		Danger:       true,
	}
	c, ok := h.Confirmed(w, r, values, "accessadmin.revoke:"+id, target, dialog)
	if !ok {
		return
	}
	g, appErr := ParseGrant(c.Target).Grant()
	if appErr != nil {
		h.HandleError(w, r, appErr, detailPage(id))
		return
	}
	if err := h.Service.Revoke(r.Context(), id, g); err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}
	h.Success(w, r, "Permission "+g.Module.Label()+" / "+g.Action.Label()+" retirée.", detailPage(id))
}

func (h *Handler) ApplyPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if appErr := validation.UserID(id); appErr != nil {
		h.HandleError(w, r, appErr, listPage)
		return
	}
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}
	res, err := h.Service.ApplyPreset(r.Context(), id, ParsePreset(values))
	if err != nil {
		h.HandleError(w, r, err, detailPage(id))
		return
	}
	msg := res.Detail
	if msg == "" {
		msg = "Profil appliqué."
	}
	h.Success(w, r, msg, detailPage(id))
}
