package permission

import (
	"encoding/json"
	"sort"
	"time"
)

// Grant is one (module, action) pair held by a user. GrantedBy and GrantedAt
// are audit metadata only.
type Grant struct {
	Module    Module     `json:"module"`
	Action    Action     `json:"action"`
	GrantedBy string     `json:"granted_by,omitempty"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
}

type Key struct {
	Module Module
	Action Action
}

func (g Grant) Key() Key { return Key{Module: g.Module, Action: g.Action} }

// GrantSet is an ordered set of grants, unique per (module, action) and
// sorted by module then action declaration order. The zero value is empty.
type GrantSet struct {
	grants []Grant
}

// NewGrantSet drops invalid and duplicate pairs; the first occurrence wins.
func NewGrantSet(grants ...Grant) GrantSet {
	var s GrantSet
	for _, g := range grants {
		s = s.With(g)
	}
	return s
}

func (s GrantSet) With(g Grant) GrantSet {
	if !g.Module.IsValid() || !g.Action.IsValid() || s.Has(g.Module, g.Action) {
		return s
	}
	out := make([]Grant, 0, len(s.grants)+1)
	out = append(out, s.grants...)
	out = append(out, g)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i].Key(), out[j].Key()) })
	return GrantSet{grants: out}
}

func (s GrantSet) Without(m Module, a Action) GrantSet {
	out := make([]Grant, 0, len(s.grants))
	for _, g := range s.grants {
		if g.Module == m && g.Action == a {
			continue
		}
		out = append(out, g)
	}
	return GrantSet{grants: out}
}

func (s GrantSet) Has(m Module, a Action) bool {
	for _, g := range s.grants {
		if g.Module == m && g.Action == a {
			return true
		}
	}
	return false
}

func (s GrantSet) HasModule(m Module) bool {
	for _, g := range s.grants {
		if g.Module == m {
			return true
		}
	}
	return false
}

func (s GrantSet) Len() int { return len(s.grants) }

func (s GrantSet) IsEmpty() bool { return len(s.grants) == 0 }

func (s GrantSet) All() []Grant {
	out := make([]Grant, len(s.grants))
	copy(out, s.grants)
	return out
}

func (s GrantSet) Keys() []Key {
	out := make([]Key, len(s.grants))
	for i, g := range s.grants {
		out[i] = g.Key()
	}
	return out
}

// Modules returns the distinct modules with at least one grant, in order.
func (s GrantSet) Modules() []Module {
	var out []Module
	for _, g := range s.grants {
		if len(out) == 0 || out[len(out)-1] != g.Module {
			out = append(out, g.Module)
		}
	}
	return out
}

func (s GrantSet) ActionsFor(m Module) []Action {
	var out []Action
	for _, g := range s.grants {
		if g.Module == m {
			out = append(out, g.Action)
		}
	}
	return out
}

// Equal compares the (module, action) pairs, ignoring audit metadata.
func (s GrantSet) Equal(other GrantSet) bool {
	if len(s.grants) != len(other.grants) {
		return false
	}
	for i := range s.grants {
		if s.grants[i].Key() != other.grants[i].Key() {
			return false
		}
	}
	return true
}

func (s GrantSet) MarshalJSON() ([]byte, error) {
	if s.grants == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.grants)
}

// UnmarshalJSON accepts both shapes the backend emits: the list form
// [{"module":"FORMS","action":"VIEW"}] and the map form {"FORMS":["VIEW"]}.
// Pairs outside the closed enums are discarded.
func (s *GrantSet) UnmarshalJSON(data []byte) error {
	var list []struct {
		Module        string     `json:"module"`
		Action        string     `json:"action"`
		GrantedBy     string     `json:"granted_by"`
		GrantedByName string     `json:"granted_by_name"`
		GrantedAt     *time.Time `json:"granted_at"`
	}
	if err := json.Unmarshal(data, &list); err == nil {
		grants := make([]Grant, 0, len(list))
		for _, item := range list {
			m, merr := ParseModule(item.Module)
			a, aerr := ParseAction(item.Action)
			if merr != nil || aerr != nil {
				continue
			}
			by := item.GrantedByName
			if by == "" {
				by = item.GrantedBy
			}
			grants = append(grants, Grant{Module: m, Action: a, GrantedBy: by, GrantedAt: item.GrantedAt})
		}
		*s = NewGrantSet(grants...)
		return nil
	}

	var byModule map[string][]string
	if err := json.Unmarshal(data, &byModule); err != nil {
		return err
	}
	var grants []Grant
	for module, actions := range byModule {
		m, err := ParseModule(module)
		if err != nil {
			continue
		}
		for _, action := range actions {
			a, err := ParseAction(action)
			if err != nil {
				continue
			}
			grants = append(grants, Grant{Module: m, Action: a})
		}
	}
	*s = NewGrantSet(grants...)
	return nil
}

func less(a, b Key) bool {
	if a.Module != b.Module {
		return moduleIndex(a.Module) < moduleIndex(b.Module)
	}
	return actionIndex(a.Action) < actionIndex(b.Action)
}
