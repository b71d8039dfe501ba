package permission

// NavItem is one entry of the console sidebar.
type NavItem struct {
	Module Module
	Label  string
	Path   string
}

var moduleRoutes = map[Module]string{
	ModuleDashboard:   "/admin/dashboard",
	ModuleForms:       "/admin/forms",
	ModuleBorders:     "/admin/borders",
	ModuleAgents:      "/admin/agents",
	ModuleAudit:       "/admin/audit",
	ModuleReports:     "/admin/reports",
	ModulePermissions: "/admin/permissions",
}

func RouteFor(m Module) (string, bool) {
	p, ok := moduleRoutes[m]
	return p, ok
}

// Navigation lists the sidebar entries the resolver grants module access
// to. Pending modules are left out until the grants arrive.
func Navigation(r Resolver) []NavItem {
	var items []NavItem
	for _, m := range allModules {
		path, ok := moduleRoutes[m]
		if !ok {
			continue
		}
		if r.HasModuleAccess(m) != Allowed {
			continue
		}
		items = append(items, NavItem{Module: m, Label: m.Label(), Path: path})
	}
	return items
}
