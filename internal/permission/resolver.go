package permission

// Decision is the outcome of a permission check. Pending means the grant
// payload has not arrived yet and nothing may be concluded.
type Decision int

const (
	Pending Decision = iota
	Allowed
	Denied
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	}
	return "pending"
}

func (d Decision) Allowed() bool { return d == Allowed }

func decide(ok bool) Decision {
	if ok {
		return Allowed
	}
	return Denied
}

// Policy names the roles governed by granular grants. Every other role is
// decided by role alone.
type Policy struct {
	granular map[Role]struct{}
}

// DefaultPolicy gates ADMIN and AUDITOR only.
func DefaultPolicy() Policy {
	return NewPolicy(RoleAdmin, RoleAuditor)
}

func NewPolicy(granular ...Role) Policy {
	p := Policy{granular: make(map[Role]struct{}, len(granular))}
	for _, r := range granular {
		p.granular[r] = struct{}{}
	}
	return p
}

// PolicyFromStrings builds a policy from configuration values, skipping
// unknown role names.
func PolicyFromStrings(roles []string) Policy {
	parsed := make([]Role, 0, len(roles))
	for _, s := range roles {
		if r, err := ParseRole(s); err == nil {
			parsed = append(parsed, r)
		}
	}
	if len(parsed) == 0 {
		return DefaultPolicy()
	}
	return NewPolicy(parsed...)
}

// HasGranularPermissions also holds for a role the console does not know,
// so a missing or unexpected role is checked against its grants.
func (p Policy) HasGranularPermissions(r Role) bool {
	if !r.IsValid() {
		return true
	}
	if p.granular == nil {
		return r == RoleAdmin || r == RoleAuditor
	}
	_, ok := p.granular[r]
	return ok
}

// Subject is the slice of session state the resolver reads.
type Subject struct {
	Role         Role
	IsSuperAdmin bool
	Grants       GrantSet
	Loaded       bool
}

// Resolver answers capability questions for one subject. It never performs
// I/O.
type Resolver struct {
	policy  Policy
	subject Subject
}

func NewResolver(policy Policy, subject Subject) Resolver {
	return Resolver{policy: policy, subject: subject}
}

func (r Resolver) IsSuperAdmin() bool { return r.subject.IsSuperAdmin }

func (r Resolver) HasGranularPermissions() bool {
	return r.policy.HasGranularPermissions(r.subject.Role)
}

// RoleExempt reports whether grants are skipped for this role.
func (r Resolver) RoleExempt() bool { return !r.HasGranularPermissions() }

func (r Resolver) Loading() bool {
	return r.HasGranularPermissions() && !r.subject.IsSuperAdmin && !r.subject.Loaded
}

func (r Resolver) HasModuleAccess(m Module) Decision {
	if r.subject.IsSuperAdmin || r.RoleExempt() {
		return Allowed
	}
	if !r.subject.Loaded {
		return Pending
	}
	return decide(r.subject.Grants.HasModule(m))
}

func (r Resolver) HasPermission(m Module, a Action) Decision {
	if r.subject.IsSuperAdmin || r.RoleExempt() {
		return Allowed
	}
	if !r.subject.Loaded {
		return Pending
	}
	return decide(r.subject.Grants.Has(m, a))
}

// Check is HasPermission when an action is given and HasModuleAccess
// otherwise.
func (r Resolver) Check(m Module, a Action) Decision {
	if a == "" {
		return r.HasModuleAccess(m)
	}
	return r.HasPermission(m, a)
}

// Can collapses a decision for UI controls: pending counts as not allowed.
func (r Resolver) Can(m Module, a Action) bool {
	return r.HasPermission(m, a) == Allowed
}
