package view_test

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestView(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "View Suite")
}

var _ = Describe("Renderer", func() {
	var r *view.Renderer

	BeforeEach(func() {
		var err error
		r, err = view.New()
		Expect(err).NotTo(HaveOccurred())
	})

	render := func(p view.Page) string {
		var buf bytes.Buffer
		Expect(r.Render(&buf, p)).To(Succeed())
		return buf.String()
	}

	It("should know every page template", func() {
		for _, name := range []string{"login", "otp", "wizard", "list", "detail", "form", "confirm", "dashboard", "notice", "maintenance", "report"} {
			Expect(r.Has(name)).To(BeTrue(), name)
		}
		Expect(r.Has("layout")).To(BeFalse())
	})

	It("should refuse unknown templates", func() {
		var buf bytes.Buffer
		Expect(r.Render(&buf, view.Page{Template: "nope"})).To(MatchError(ContainSubstring("unknown template")))
		Expect(buf.Len()).To(BeZero())
	})

	It("should render the chrome for a signed-in user", func() {
		html := render(view.Page{
			Template: "notice",
			Title:    "Accès refusé",
			Data:     view.Notice{Heading: "Accès refusé", Message: "Non autorisé"},
			User:     &session.User{FirstName: "Awa", LastName: "Diop", Role: permission.RoleAdmin},
			Nav:      []permission.NavItem{{Module: permission.ModuleAgents, Label: "Agents", Path: "/admin/agents"}},
			Flashes:  []session.Flash{{Kind: session.FlashSuccess, Message: "Enregistré"}},
		})
		Expect(html).To(ContainSubstring(`href="/admin/agents"`))
		Expect(html).To(ContainSubstring("AD"))
		Expect(html).To(ContainSubstring("flash-success"))
		Expect(html).To(ContainSubstring("Enregistré"))
	})

	It("should escape backend data", func() {
		html := render(view.Page{Template: "notice", Data: view.Notice{Heading: "x", Message: "<script>alert(1)</script>"}})
		Expect(html).NotTo(ContainSubstring("<script>alert(1)"))
		Expect(html).To(ContainSubstring("&lt;script&gt;"))
	})

	It("should render a paginated table with filter memory", func() {
		page := listing.ParsePage(url.Values{"page": {"2"}}, 10).WithTotal(35)
		table := view.Table{
			Title:    "Agents",
			Columns:  []view.Column{{Key: "name", Label: "Nom"}, {Key: "status", Label: "Statut"}},
			Rows:     []view.Row{{ID: "1", Cells: []view.Cell{view.Text("Moussa"), view.Status("ACTIVE")}}},
			Page:     page,
			Filters:  listing.Filters{Search: "mou"},
			Fields:   []view.FilterField{view.Input("search", "Recherche", "search", "mou")},
			BasePath: "/admin/agents",
		}
		html := render(view.Page{Template: "list", Title: "Agents", Data: table})
		Expect(html).To(ContainSubstring("Moussa"))
		Expect(html).To(ContainSubstring("badge-success"))
		Expect(html).To(ContainSubstring(`name="prev_search" value="mou"`))
		Expect(html).To(ContainSubstring("11–20 sur 35"))
	})

	It("should show the empty message", func() {
		html := render(view.Page{Template: "list", Data: view.Table{Columns: []view.Column{{Key: "a", Label: "A"}}, Empty: "Aucun agent."}})
		Expect(html).To(ContainSubstring("Aucun agent."))
	})

	It("should render the password meter on a wizard step", func() {
		data := view.Wizard{
			Title:    "Activation",
			Step:     2,
			Steps:    []string{"Profil", "Mot de passe"},
			Form:     view.Form{Action: "/activate/x", Submit: "Activer", Enabled: false, Tooltip: "Mot de passe trop faible"},
			Password: view.Meter(wizard.CheckPassword("abc", "abd")),
		}
		html := render(view.Page{Template: "wizard", Data: data})
		Expect(html).To(ContainSubstring("Les mots de passe ne correspondent pas."))
		Expect(html).To(ContainSubstring("Très faible"))
		Expect(html).To(ContainSubstring(`disabled title="Mot de passe trop faible"`))
	})

	It("should render the invalid link screen instead of the form", func() {
		html := render(view.Page{Template: "wizard", Data: view.Wizard{Title: "Invitation", Invalid: true, InvalidMessage: "Ce lien a expiré."}})
		Expect(html).To(ContainSubstring("Ce lien a expiré."))
		Expect(html).NotTo(ContainSubstring(`class="form"`))
	})

	It("should disable OTP entry once the code expired", func() {
		html := render(view.Page{Template: "otp", Data: view.OTPPrompt{Email: "a@b.sn", Expired: true, VerifyAction: "/login/otp", ResendAction: "/login/otp/resend"}})
		Expect(html).To(ContainSubstring("Le code a expiré."))
		Expect(html).To(ContainSubstring(`action="/login/otp/resend"`))
	})

	It("should carry the confirmation token", func() {
		html := render(view.Page{Template: "confirm", Data: view.Confirm{Title: "Retirer", Action: "/admin/permissions/3/remove", Token: "tok", ConfirmLabel: "Retirer", Cancel: "/admin/permissions"}})
		Expect(html).To(ContainSubstring(`name="confirm_token" value="tok"`))
	})

	It("should render per-tile errors on the dashboard", func() {
		html := render(view.Page{Template: "dashboard", Data: view.Dashboard{Cards: []view.StatsCard{
			{Label: "Bordereaux", Value: "12"},
			{Label: "Remboursements", Error: "Indisponible"},
		}}})
		Expect(html).To(ContainSubstring("12"))
		Expect(html).To(ContainSubstring("Indisponible"))
	})

	It("should add a meta refresh when asked", func() {
		html := render(view.Page{Template: "notice", Data: view.Notice{}, Refresh: 2, RedirectURL: "/admin/dashboard"})
		Expect(html).To(ContainSubstring(`http-equiv="refresh"`))
	})
})

var _ = Describe("Components", func() {
	DescribeTable("StatusBadge",
		func(status string, want view.Badge) {
			Expect(view.StatusBadge(status)).To(Equal(want))
		},
		Entry("known", "validated", view.Badge{Label: "Validé", Tone: view.ToneSuccess}),
		Entry("pending", "PENDING", view.Badge{Label: "En attente", Tone: view.ToneWarning}),
		Entry("unknown", "ODD", view.Badge{Label: "ODD", Tone: view.ToneNeutral}),
		Entry("empty", "", view.Badge{Label: "-", Tone: view.ToneNeutral}),
	)

	It("should keep denied controls visible but disabled", func() {
		r := permission.NewResolver(permission.DefaultPolicy(), permission.Subject{Role: permission.RoleAuditor, Loaded: true})
		c := view.Gate(r, permission.ModuleAgents, permission.ActionEdit, "Modifier", "/admin/agents/1/edit", "GET")
		Expect(c.Enabled).To(BeFalse())
		Expect(c.Tooltip).NotTo(BeEmpty())

		granted := permission.NewResolver(permission.DefaultPolicy(), permission.Subject{
			Role:   permission.RoleAuditor,
			Loaded: true,
			Grants: permission.NewGrantSet(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionEdit}),
		})
		Expect(view.Gate(granted, permission.ModuleAgents, permission.ActionEdit, "Modifier", "/x", "GET").Enabled).To(BeTrue())
	})

	It("should keep filters in page links without resetting", func() {
		t := view.Table{BasePath: "/admin/forms", Page: listing.Page{Number: 1, Size: 20}, Filters: listing.Filters{Status: "PENDING"}}
		u, err := url.Parse(t.PageHref(3))
		Expect(err).NotTo(HaveOccurred())
		q := u.Query()
		Expect(q.Get("page")).To(Equal("3"))
		Expect(q.Get("status")).To(Equal("PENDING"))
		Expect(q.Get("prev_status")).To(Equal("PENDING"))
		Expect(listing.Resolve(q, 20).Page.Number).To(Equal(3))
	})

	It("should decorate form fields with errors", func() {
		f := view.Form{Fields: []view.FormField{{Name: "email"}, {Name: "phone"}}}
		f.ApplyErrors(map[string]string{"phone": "Numéro invalide"})
		Expect(f.Fields[0].Error).To(BeEmpty())
		Expect(f.Fields[1].Error).To(Equal("Numéro invalide"))
	})
})
