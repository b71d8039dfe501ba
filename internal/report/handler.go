package report

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
)

const (
	summaryPage = "/admin/reports"
	exportPage  = "/admin/reports/export"

	currency = "CDF"
)

type ServiceAPI interface {
	Summary(ctx context.Context, p PeriodDTO) (*Summary, error)
	Export(ctx context.Context, e ExportDTO) (*apiclient.Download, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: service}
}

var periods = []view.Option{
	{Value: "7", Label: "7 derniers jours"},
	{Value: "30", Label: "30 derniers jours"},
	{Value: "90", Label: "3 derniers mois"},
	{Value: "365", Label: "12 derniers mois"},
}

var exports = []struct{ kind, label string }{
	{ExportForms, "Exporter les bordereaux"},
	{ExportRefunds, "Exporter les remboursements"},
	{ExportValidations, "Exporter les validations"},
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	period := ParsePeriod(r.URL.Query())
	sum, err := h.Service.Summary(r.Context(), period)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}

	resolver := h.Resolver(r)
	data := view.Report{
		Action: summaryPage,
		Fields: []view.FilterField{
			view.Select("days", "Période", strconv.Itoa(period.Days), append([]view.Option(nil), periods...)...),
		},
		Cards: []view.StatsCard{
			{Label: "Bordereaux", Value: strconv.Itoa(sum.Forms.Total), Hint: strconv.Itoa(sum.Forms.HighRiskCount) + " à contrôler"},
			{Label: "TVA collectée", Value: view.Amount(sum.Forms.TotalVAT, currency)},
			{Label: "Remboursements nets", Value: view.Amount(sum.Refunds.TotalNet, currency), Hint: strconv.Itoa(sum.Refunds.Total) + " remboursements"},
			{Label: "Taux de validation", Value: fmt.Sprintf("%.1f %%", sum.Validations.ValidationRate), Tone: view.ToneInfo},
			{Label: "Commerçants", Value: strconv.Itoa(sum.Merchants.Total), Hint: strconv.Itoa(sum.Merchants.ActiveOutlets) + " points de vente actifs"},
			{Label: "Agents douaniers", Value: strconv.Itoa(sum.Users.CustomsAgents)},
		},
		Tables: []view.Table{topMerchants(sum), topPoints(sum, period), topAgents(sum)},
	}
	if period.PointOfExitID != "" {
		data.Note = "Résultats limités à un point de sortie."
		data.Fields = append(data.Fields, view.FilterField{Name: "point_of_exit_id", Type: "hidden", Value: period.PointOfExitID})
	}
	for _, e := range exports {
		q := url.Values{"type": {e.kind}}
		data.Exports = append(data.Exports, view.Gate(resolver, permission.ModuleReports, permission.ActionExport, e.label, exportPage+"?"+q.Encode(), http.MethodGet))
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "report", Title: "Rapports", Data: data})
}

func topMerchants(sum *Summary) view.Table {
	t := view.Table{
		Title: "Commerçants les plus actifs",
		Columns: []view.Column{
			{Key: "name", Label: "Commerçant"},
			{Key: "forms", Label: "Bordereaux"},
			{Key: "vat", Label: "TVA"},
			{Key: "refund", Label: "Remboursement"},
		},
		Empty: "Aucune activité sur la période.",
	}
	for _, m := range sum.TopMerchants {
		t.Rows = append(t.Rows, view.Row{ID: m.ID, Cells: []view.Cell{
			view.Text(view.Or(m.Name)),
			view.Text(strconv.Itoa(m.FormsCount)),
			view.Text(view.Amount(m.TotalVAT, currency)),
			view.Text(view.Amount(m.TotalRefund, currency)),
		}})
	}
	return t
}

func topPoints(sum *Summary, period PeriodDTO) view.Table {
	t := view.Table{
		Title: "Points de sortie",
		Columns: []view.Column{
			{Key: "name", Label: "Point de sortie"},
			{Key: "validations", Label: "Contrôles"},
			{Key: "validated", Label: "Validés"},
			{Key: "refused", Label: "Refusés"},
		},
		Empty: "Aucune validation sur la période.",
	}
	for _, p := range sum.TopPointsOfExit {
		q := url.Values{"days": {strconv.Itoa(period.Days)}, "point_of_exit_id": {p.ID}}
		t.Rows = append(t.Rows, view.Row{ID: p.ID, Cells: []view.Cell{
			{Text: p.Code + " - " + p.Name, Href: summaryPage + "?" + q.Encode()},
			view.Text(strconv.Itoa(p.ValidationsCount)),
			view.Text(strconv.Itoa(p.Validated)),
			view.Text(strconv.Itoa(p.Refused)),
		}})
	}
	return t
}

func topAgents(sum *Summary) view.Table {
	t := view.Table{
		Title: "Agents",
		Columns: []view.Column{
			{Key: "name", Label: "Agent"},
			{Key: "validations", Label: "Contrôles"},
			{Key: "validated", Label: "Validés"},
			{Key: "refused", Label: "Refusés"},
		},
		Empty: "Aucune validation sur la période.",
	}
	for _, a := range sum.TopAgents {
		t.Rows = append(t.Rows, view.Row{ID: a.ID, Cells: []view.Cell{
			view.Text(a.Name()),
			view.Text(strconv.Itoa(a.ValidationsCount)),
			view.Text(strconv.Itoa(a.Validated)),
			view.Text(strconv.Itoa(a.Refused)),
		}})
	}
	return t
}

// Export relays the generated CSV.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Export(r.Context(), ParseExport(r.URL.Query()))
	if err != nil {
		h.HandleError(w, r, err, summaryPage)
		return
	}
	h.SendDownload(w, r, d)
}
