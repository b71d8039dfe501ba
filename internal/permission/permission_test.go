package permission_test

import (
	"encoding/json"
	"testing"

	"github.com/frahmantamala/taxfree-console/internal/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPermission(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Permission Suite")
}

var _ = Describe("Enums", func() {
	It("parses known modules and actions case-insensitively", func() {
		m, err := permission.ParseModule(" forms ")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(permission.ModuleForms))

		a, err := permission.ParseAction("export")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(permission.ActionExport))
	})

	It("rejects typos instead of silently accepting them", func() {
		_, err := permission.ParseModule("FORM")
		Expect(err).To(HaveOccurred())
		_, err = permission.ParseAction("READ")
		Expect(err).To(HaveOccurred())
	})

	It("maps the legacy TRAVELER role to CLIENT", func() {
		r, err := permission.ParseRole("traveler")
		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(Equal(permission.RoleClient))
	})
})

var _ = Describe("GrantSet", func() {
	It("keeps pairs unique and ordered by module then action", func() {
		set := permission.NewGrantSet(
			permission.Grant{Module: permission.ModuleAudit, Action: permission.ActionExport},
			permission.Grant{Module: permission.ModuleForms, Action: permission.ActionEdit},
			permission.Grant{Module: permission.ModuleAudit, Action: permission.ActionView},
			permission.Grant{Module: permission.ModuleForms, Action: permission.ActionEdit},
		)

		Expect(set.Len()).To(Equal(3))
		Expect(set.Keys()).To(Equal([]permission.Key{
			{Module: permission.ModuleForms, Action: permission.ActionEdit},
			{Module: permission.ModuleAudit, Action: permission.ActionView},
			{Module: permission.ModuleAudit, Action: permission.ActionExport},
		}))
		Expect(set.Modules()).To(Equal([]permission.Module{permission.ModuleForms, permission.ModuleAudit}))
	})

	It("removes a pair without touching the original set", func() {
		set := permission.NewGrantSet(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionView})
		trimmed := set.Without(permission.ModuleAgents, permission.ActionView)

		Expect(trimmed.IsEmpty()).To(BeTrue())
		Expect(set.Has(permission.ModuleAgents, permission.ActionView)).To(BeTrue())
	})

	It("decodes the list payload and drops unknown pairs", func() {
		var set permission.GrantSet
		err := json.Unmarshal([]byte(`[{"module":"FORMS","action":"VIEW"},{"module":"BOGUS","action":"VIEW"},{"module":"AUDIT","action":"EXPORT"}]`), &set)
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Len()).To(Equal(2))
		Expect(set.Has(permission.ModuleAudit, permission.ActionExport)).To(BeTrue())
	})

	It("decodes the module map payload", func() {
		var set permission.GrantSet
		err := json.Unmarshal([]byte(`{"BORDERS":["VIEW","EDIT"],"REPORTS":["EXPORT"]}`), &set)
		Expect(err).NotTo(HaveOccurred())
		Expect(set.ActionsFor(permission.ModuleBorders)).To(Equal([]permission.Action{permission.ActionView, permission.ActionEdit}))
		Expect(set.Has(permission.ModuleReports, permission.ActionExport)).To(BeTrue())
	})

	It("encodes as the list payload", func() {
		set := permission.NewGrantSet(permission.Grant{Module: permission.ModuleUsers, Action: permission.ActionCreate})
		data, err := json.Marshal(set)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`[{"module":"USERS","action":"CREATE"}]`))

		var back permission.GrantSet
		Expect(json.Unmarshal(data, &back)).To(Succeed())
		Expect(back.Equal(set)).To(BeTrue())
	})
})

var _ = Describe("Resolver", func() {
	var (
		policy permission.Policy
		grants permission.GrantSet
	)

	BeforeEach(func() {
		policy = permission.DefaultPolicy()
		grants = permission.NewGrantSet(
			permission.Grant{Module: permission.ModuleForms, Action: permission.ActionView},
		)
	})

	Context("when the subject is a super admin", func() {
		It("allows everything even with no grants and nothing loaded", func() {
			r := permission.NewResolver(policy, permission.Subject{Role: permission.RoleAdmin, IsSuperAdmin: true})
			Expect(r.IsSuperAdmin()).To(BeTrue())
			Expect(r.HasPermission(permission.ModuleSettings, permission.ActionManage)).To(Equal(permission.Allowed))
			Expect(r.HasModuleAccess(permission.ModuleAudit)).To(Equal(permission.Allowed))
			Expect(r.Loading()).To(BeFalse())
		})
	})

	Context("when the role is outside the granular set", func() {
		It("allows by role", func() {
			r := permission.NewResolver(policy, permission.Subject{Role: permission.RoleMerchant})
			Expect(r.HasGranularPermissions()).To(BeFalse())
			Expect(r.HasPermission(permission.ModuleForms, permission.ActionDelete)).To(Equal(permission.Allowed))
		})

		It("gates the role when configured as granular", func() {
			strict := permission.PolicyFromStrings([]string{"ADMIN", "AUDITOR", "OPERATOR"})
			r := permission.NewResolver(strict, permission.Subject{Role: permission.RoleOperator, Loaded: true})
			Expect(r.HasPermission(permission.ModuleForms, permission.ActionView)).To(Equal(permission.Denied))
		})
	})

	Context("when the role is missing or unknown", func() {
		It("checks the grants instead of exempting the role", func() {
			for _, role := range []permission.Role{"", "SUPERVISOR"} {
				r := permission.NewResolver(policy, permission.Subject{Role: role, Grants: grants, Loaded: true})
				Expect(r.RoleExempt()).To(BeFalse())
				Expect(r.HasPermission(permission.ModuleForms, permission.ActionView)).To(Equal(permission.Allowed))
				Expect(r.HasPermission(permission.ModuleForms, permission.ActionDelete)).To(Equal(permission.Denied))
			}
		})
	})

	Context("when grants are still loading", func() {
		It("reports pending for every check", func() {
			r := permission.NewResolver(policy, permission.Subject{Role: permission.RoleAuditor, Grants: grants})
			Expect(r.Loading()).To(BeTrue())
			Expect(r.HasPermission(permission.ModuleForms, permission.ActionView)).To(Equal(permission.Pending))
			Expect(r.HasModuleAccess(permission.ModuleForms)).To(Equal(permission.Pending))
			Expect(r.Can(permission.ModuleForms, permission.ActionView)).To(BeFalse())
		})
	})

	Context("when grants are loaded", func() {
		It("matches exact pairs for permissions and any action for modules", func() {
			r := permission.NewResolver(policy, permission.Subject{Role: permission.RoleAdmin, Grants: grants, Loaded: true})
			Expect(r.HasPermission(permission.ModuleForms, permission.ActionView)).To(Equal(permission.Allowed))
			Expect(r.HasPermission(permission.ModuleForms, permission.ActionEdit)).To(Equal(permission.Denied))
			Expect(r.HasModuleAccess(permission.ModuleForms)).To(Equal(permission.Allowed))
			Expect(r.HasModuleAccess(permission.ModuleAgents)).To(Equal(permission.Denied))
			Expect(r.Check(permission.ModuleForms, "")).To(Equal(permission.Allowed))
		})

		It("builds the sidebar from module access", func() {
			r := permission.NewResolver(policy, permission.Subject{Role: permission.RoleAdmin, Grants: grants, Loaded: true})
			items := permission.Navigation(r)
			Expect(items).To(HaveLen(1))
			Expect(items[0].Path).To(Equal("/admin/forms"))
		})
	})
})
