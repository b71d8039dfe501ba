package dashboard

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/poller"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	streamPage = "/admin/dashboard/stream"
	currency   = "CDF"

	tileUnavailable = "Indisponible"
)

type ServiceAPI interface {
	Forms(ctx context.Context) (FormStats, error)
	Merchants(ctx context.Context) (MerchantStats, error)
	Borders(ctx context.Context) (BorderStats, error)
	RiskyForms(ctx context.Context) ([]RiskyForm, error)
	Refresh(ctx context.Context)
}

type Handler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	interval time.Duration
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Handler{BaseHandler: base, Service: service, interval: interval}
}

// tile loads one group of cards. Cards are placeholders carrying the
// labels, so a failed load still shows where the figures go.
type tile struct {
	module permission.Module
	cards  []view.StatsCard
	load   func(ctx context.Context, cards []view.StatsCard) error
}

func (h *Handler) tiles() []*tile {
	return []*tile{
		{
			module: permission.ModuleForms,
			cards:  []view.StatsCard{{Label: "Bordereaux du jour"}, {Label: "En attente de contrôle", Tone: view.ToneWarning}, {Label: "TVA du jour"}},
			load: func(ctx context.Context, cards []view.StatsCard) error {
				s, err := h.Service.Forms(ctx)
				if err != nil {
					return err
				}
				cards[0].Value = strconv.Itoa(s.FormsToday)
				cards[0].Hint = strconv.Itoa(s.HighRiskToday) + " à risque"
				cards[1].Value = strconv.Itoa(s.PendingValidation)
				cards[1].Hint = strconv.Itoa(s.RefundsPending) + " remboursements en attente"
				cards[2].Value = view.Amount(s.VATToday, currency)
				return nil
			},
		},
		{
			module: permission.ModuleMerchants,
			cards:  []view.StatsCard{{Label: "Commerçants actifs"}},
			load: func(ctx context.Context, cards []view.StatsCard) error {
				s, err := h.Service.Merchants(ctx)
				if err != nil {
					return err
				}
				cards[0].Value = strconv.Itoa(s.ActiveMerchants)
				cards[0].Hint = strconv.Itoa(s.PendingRegistrations) + " demandes à traiter"
				return nil
			},
		},
		{
			module: permission.ModuleBorders,
			cards:  []view.StatsCard{{Label: "Points de sortie ouverts"}, {Label: "Contrôles du jour", Tone: view.ToneInfo}},
			load: func(ctx context.Context, cards []view.StatsCard) error {
				s, err := h.Service.Borders(ctx)
				if err != nil {
					return err
				}
				cards[0].Value = strconv.Itoa(s.Active) + " / " + strconv.Itoa(s.Total)
				cards[0].Hint = strconv.Itoa(s.Agents) + " agents affectés"
				cards[1].Value = strconv.Itoa(s.ValidationsToday)
				return nil
			},
		},
	}
}

// Cards loads the tiles the user may see in parallel. A failing tile is
// marked unavailable; it never fails the page.
func (h *Handler) Cards(ctx context.Context, resolver permission.Resolver) []view.StatsCard {
	var visible []*tile
	for _, t := range h.tiles() {
		if resolver.HasModuleAccess(t.module).Allowed() {
			visible = append(visible, t)
		}
	}

	var g errgroup.Group
	for _, t := range visible {
		g.Go(func() error {
			if err := t.load(ctx, t.cards); err != nil {
				logger.From(ctx).Warn("dashboard tile unavailable", "module", t.module, "error", err)
				for i := range t.cards {
					t.cards[i].Error = tileUnavailable
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []view.StatsCard
	for _, t := range visible {
		out = append(out, t.cards...)
	}
	return out
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resolver := h.Resolver(r)

	data := view.Dashboard{
		Cards:     h.Cards(ctx, resolver),
		StreamURL: streamPage,
		Interval:  int(h.interval / time.Second),
	}
	if resolver.Can(permission.ModuleForms, permission.ActionView) {
		data.Tables = append(data.Tables, h.riskyTable(ctx))
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "dashboard", Title: "Tableau de bord", Data: data})
}

func (h *Handler) riskyTable(ctx context.Context) view.Table {
	t := view.Table{
		Title: "Bordereaux à contrôler",
		Columns: []view.Column{
			{Key: "number", Label: "Numéro"},
			{Key: "merchant", Label: "Commerçant"},
			{Key: "risk", Label: "Risque"},
			{Key: "status", Label: "Statut"},
			{Key: "created_at", Label: "Créé le"},
		},
		Empty: "Aucun bordereau à risque.",
	}
	forms, err := h.Service.RiskyForms(ctx)
	if err != nil {
		logger.From(ctx).Warn("risky forms unavailable", "error", err)
		t.Empty = "Liste indisponible pour le moment."
		return t
	}
	for _, f := range forms {
		t.Rows = append(t.Rows, view.Row{ID: f.ID, Cells: []view.Cell{
			{Text: f.FormNumber, Href: "/admin/forms/" + f.ID},
			view.Text(view.Or(f.MerchantName)),
			view.Text(strconv.Itoa(f.RiskScore)),
			view.Status(f.Status),
			view.Text(view.DateTime(f.CreatedAt)),
		}})
	}
	return t
}

// Stream pushes fresh cards every interval until the client goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resolver := h.Resolver(r)
	es, ok := h.BaseHandler.Stream(w, r)
	if !ok {
		return
	}

	first := true
	err := poller.Run(ctx, h.interval, func(ctx context.Context) error {
		if !first {
			h.Service.Refresh(ctx)
		}
		first = false
		return es.Send("refresh", view.Dashboard{Cards: h.Cards(ctx, resolver)})
	})
	if err != nil {
		logger.From(ctx).Debug("dashboard stream ended", "error", err)
	}
}
