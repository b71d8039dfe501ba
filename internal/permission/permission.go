package permission

import (
	"fmt"
	"strings"
)

// Module is a functional area of the administration console.
type Module string

const (
	ModuleDashboard      Module = "DASHBOARD"
	ModuleMerchants      Module = "MERCHANTS"
	ModuleUsers          Module = "USERS"
	ModuleForms          Module = "FORMS"
	ModuleRefunds        Module = "REFUNDS"
	ModuleBorders        Module = "BORDERS"
	ModuleAgents         Module = "AGENTS"
	ModuleRules          Module = "RULES"
	ModuleCategories     Module = "CATEGORIES"
	ModuleAudit          Module = "AUDIT"
	ModuleReports        Module = "REPORTS"
	ModuleSettings       Module = "SETTINGS"
	ModulePermissions    Module = "PERMISSIONS"
	ModuleSupportChat    Module = "SUPPORT_CHAT"
	ModuleSupportTickets Module = "SUPPORT_TICKETS"
)

var allModules = []Module{
	ModuleDashboard,
	ModuleMerchants,
	ModuleUsers,
	ModuleForms,
	ModuleRefunds,
	ModuleBorders,
	ModuleAgents,
	ModuleRules,
	ModuleCategories,
	ModuleAudit,
	ModuleReports,
	ModuleSettings,
	ModulePermissions,
	ModuleSupportChat,
	ModuleSupportTickets,
}

// Action is an operation within a module.
type Action string

const (
	ActionView    Action = "VIEW"
	ActionCreate  Action = "CREATE"
	ActionEdit    Action = "EDIT"
	ActionDelete  Action = "DELETE"
	ActionExport  Action = "EXPORT"
	ActionApprove Action = "APPROVE"
	ActionManage  Action = "MANAGE"
)

var allActions = []Action{
	ActionView,
	ActionCreate,
	ActionEdit,
	ActionDelete,
	ActionExport,
	ActionApprove,
	ActionManage,
}

type Role string

const (
	RoleAdmin            Role = "ADMIN"
	RoleAuditor          Role = "AUDITOR"
	RoleMerchant         Role = "MERCHANT"
	RoleMerchantEmployee Role = "MERCHANT_EMPLOYEE"
	RoleCustomsAgent     Role = "CUSTOMS_AGENT"
	RoleOperator         Role = "OPERATOR"
	RoleClient           Role = "CLIENT"
)

var allRoles = []Role{
	RoleAdmin,
	RoleAuditor,
	RoleMerchant,
	RoleMerchantEmployee,
	RoleCustomsAgent,
	RoleOperator,
	RoleClient,
}

func Modules() []Module {
	out := make([]Module, len(allModules))
	copy(out, allModules)
	return out
}

func Actions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

func ParseModule(s string) (Module, error) {
	m := Module(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown permission module %q", s)
	}
	return m, nil
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("unknown permission action %q", s)
	}
	return a, nil
}

// ParseRole accepts the backend role names; TRAVELER is the legacy name of CLIENT.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r == "TRAVELER" {
		return RoleClient, nil
	}
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (m Module) IsValid() bool { return moduleIndex(m) >= 0 }

func (a Action) IsValid() bool { return actionIndex(a) >= 0 }

func (r Role) IsValid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Label is the French display name used by the screens.
func (m Module) Label() string {
	switch m {
	case ModuleDashboard:
		return "Tableau de bord"
	case ModuleMerchants:
		return "Commerçants"
	case ModuleUsers:
		return "Utilisateurs"
	case ModuleForms:
		return "Bordereaux"
	case ModuleRefunds:
		return "Remboursements"
	case ModuleBorders:
		return "Frontières"
	case ModuleAgents:
		return "Agents douaniers"
	case ModuleRules:
		return "Règles"
	case ModuleCategories:
		return "Catégories"
	case ModuleAudit:
		return "Journal d'audit"
	case ModuleReports:
		return "Rapports"
	case ModuleSettings:
		return "Paramètres"
	case ModulePermissions:
		return "Permissions"
	case ModuleSupportChat:
		return "Support chat"
	case ModuleSupportTickets:
		return "Tickets support"
	}
	return string(m)
}

func (a Action) Label() string {
	switch a {
	case ActionView:
		return "Voir"
	case ActionCreate:
		return "Créer"
	case ActionEdit:
		return "Modifier"
	case ActionDelete:
		return "Supprimer"
	case ActionExport:
		return "Exporter"
	case ActionApprove:
		return "Approuver"
	case ActionManage:
		return "Gérer"
	}
	return string(a)
}

func moduleIndex(m Module) int {
	for i, known := range allModules {
		if m == known {
			return i
		}
	}
	return -1
}

func actionIndex(a Action) int {
	for i, known := range allActions {
		if a == known {
			return i
		}
	}
	return -1
}
