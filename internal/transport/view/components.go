package view

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/permission"
)

type Tone string

const (
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
	ToneInfo    Tone = "info"
	ToneNeutral Tone = "neutral"
)

type Badge struct {
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

var statusBadges = map[string]Badge{
	"ACTIVE":     {"Actif", ToneSuccess},
	"INACTIVE":   {"Inactif", ToneDanger},
	"ISSUED":     {"Émis", ToneInfo},
	"CREATED":    {"Créé", ToneInfo},
	"PENDING":    {"En attente", ToneWarning},
	"VALIDATED":  {"Validé", ToneSuccess},
	"REFUSED":    {"Refusé", ToneDanger},
	"APPROVED":   {"Approuvé", ToneSuccess},
	"REJECTED":   {"Rejeté", ToneDanger},
	"REFUNDED":   {"Remboursé", ToneSuccess},
	"PAID":       {"Payé", ToneSuccess},
	"CANCELLED":  {"Annulé", ToneDanger},
	"EXPIRED":    {"Expiré", ToneDanger},
	"ACCEPTED":   {"Acceptée", ToneSuccess},
	"SUCCESS":    {"Succès", ToneSuccess},
	"FAILED":     {"Échec", ToneDanger},
	"IN_REVIEW":  {"En revue", ToneWarning},
	"VALIDATING": {"En validation", ToneWarning},

	"VALIDATION_PENDING": {"Contrôle en attente", ToneWarning},
}

// StatusBadge maps a backend status string to its label and tone. Unknown
// statuses are shown verbatim.
func StatusBadge(status string) Badge {
	if b, ok := statusBadges[strings.ToUpper(strings.TrimSpace(status))]; ok {
		return b
	}
	if status == "" {
		return Badge{Label: "-", Tone: ToneNeutral}
	}
	return Badge{Label: status, Tone: ToneNeutral}
}

// ActiveBadge renders a boolean active flag.
func ActiveBadge(active bool) Badge {
	if active {
		return StatusBadge("ACTIVE")
	}
	return StatusBadge("INACTIVE")
}

// StatsCard is one dashboard tile. Error is set when only this tile failed.
type StatsCard struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Hint  string `json:"hint,omitempty"`
	Tone  Tone   `json:"tone,omitempty"`
	Error string `json:"error,omitempty"`
}

// Control is an action button. Controls the user may not use stay visible,
// disabled, with Tooltip explaining why.
type Control struct {
	Label   string            `json:"label"`
	Href    string            `json:"href"`
	Method  string            `json:"method,omitempty"`
	Enabled bool              `json:"enabled"`
	Tooltip string            `json:"tooltip,omitempty"`
	Danger  bool              `json:"danger,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const deniedTooltip = "Vous n'avez pas la permission d'effectuer cette action."

// Gate builds a control enabled only when the resolver allows (m, a).
func Gate(r permission.Resolver, m permission.Module, a permission.Action, label, href, method string) Control {
	c := Control{Label: label, Href: href, Method: method, Enabled: r.Can(m, a)}
	if !c.Enabled {
		c.Tooltip = deniedTooltip
		if r.Loading() {
			c.Tooltip = "Chargement des permissions…"
		}
	}
	return c
}

func Link(label, href string) Control {
	return Control{Label: label, Href: href, Method: "GET", Enabled: true}
}

type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type Cell struct {
	Text  string `json:"text"`
	Badge *Badge `json:"badge,omitempty"`
	Href  string `json:"href,omitempty"`
}

func Text(s string) Cell { return Cell{Text: s} }

func Status(s string) Cell {
	b := StatusBadge(s)
	return Cell{Text: b.Label, Badge: &b}
}

func Active(active bool) Cell {
	b := ActiveBadge(active)
	return Cell{Text: b.Label, Badge: &b}
}

type Row struct {
	ID      string    `json:"id"`
	Cells   []Cell    `json:"cells"`
	Actions []Control `json:"actions,omitempty"`
}

type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected,omitempty"`
}

// FilterField is one input of a table's filter bar.
type FilterField struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Value   string   `json:"value"`
	Options []Option `json:"options,omitempty"`
}

type Table struct {
	Title    string          `json:"title"`
	Columns  []Column        `json:"columns"`
	Rows     []Row           `json:"rows"`
	Page     listing.Page    `json:"page"`
	Filters  listing.Filters `json:"filters"`
	Fields   []FilterField   `json:"-"`
	BasePath string          `json:"-"`
	Empty    string          `json:"-"`
	Toolbar  []Control       `json:"toolbar,omitempty"`
}

// PageHref links to page n keeping the current filters. The prev_* values
// are the current filters, so following the link never resets the page.
func (t Table) PageHref(n int) string {
	q := t.Filters.Values()
	for k, v := range t.Filters.Values() {
		q["prev_"+k] = v
	}
	q.Set("page", strconv.Itoa(n))
	q.Set("page_size", strconv.Itoa(t.Page.Size))
	return t.BasePath + "?" + q.Encode()
}

// PrevValues are the hidden inputs the filter bar submits alongside the
// new filter values.
func (t Table) PrevValues() url.Values {
	out := url.Values{}
	for _, k := range []string{"search", "category", "status", "date_from", "date_to"} {
		out.Set("prev_"+k, t.Filters.Values().Get(k))
	}
	return out
}

// Select builds a select filter with the current value marked.
func Select(name, label, current string, options ...Option) FilterField {
	for i := range options {
		options[i].Selected = options[i].Value == current
	}
	return FilterField{Name: name, Label: label, Type: "select", Value: current, Options: options}
}

func Input(name, label, kind, current string) FilterField {
	return FilterField{Name: name, Label: label, Type: kind, Value: current}
}

type DetailItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Badge *Badge `json:"badge,omitempty"`
}

type Detail struct {
	Title    string       `json:"title"`
	Subtitle string       `json:"subtitle,omitempty"`
	Items    []DetailItem `json:"items"`
	Actions  []Control    `json:"actions,omitempty"`
	Tables   []Table      `json:"tables,omitempty"`
	Forms    []Form       `json:"forms,omitempty"`
	Back     string       `json:"back,omitempty"`
}

func Item(label, value string) DetailItem { return DetailItem{Label: label, Value: value} }

func StatusItem(label, status string) DetailItem {
	b := StatusBadge(status)
	return DetailItem{Label: label, Value: b.Label, Badge: &b}
}

func ActiveItem(label string, active bool) DetailItem {
	b := ActiveBadge(active)
	return DetailItem{Label: label, Value: b.Label, Badge: &b}
}

type FormField struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Value       string   `json:"value,omitempty"`
	Error       string   `json:"error,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Required    bool     `json:"required,omitempty"`
	ReadOnly    bool     `json:"read_only,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

type Form struct {
	Title   string            `json:"title"`
	Action  string            `json:"action"`
	Submit  string            `json:"submit"`
	Fields  []FormField       `json:"fields"`
	Hidden  map[string]string `json:"-"`
	Enabled bool              `json:"enabled"`
	Tooltip string            `json:"tooltip,omitempty"`
	Message string            `json:"message,omitempty"`
	Cancel  string            `json:"cancel,omitempty"`
}

// ApplyErrors decorates fields with server or validation messages.
func (f *Form) ApplyErrors(errs map[string]string) {
	for i := range f.Fields {
		if msg, ok := errs[f.Fields[i].Name]; ok {
			f.Fields[i].Error = msg
		}
	}
}

// Confirm is the secondary dialog guarding a destructive action. Posting
// Token to Action runs it; Cancel drops it.
type Confirm struct {
	Title        string `json:"title"`
	Message      string `json:"message"`
	Action       string `json:"action"`
	Token        string `json:"token"`
	ConfirmLabel string `json:"confirm_label"`
	Cancel       string `json:"cancel"`
	Danger       bool   `json:"danger"`
}
