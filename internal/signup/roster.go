package signup

import (
	"fmt"
)

// RoleID names a roster slot or a selector that resolves to slots.
type RoleID string

// Concrete roster slots.
const (
	RoleTank      RoleID = "tank"
	RoleHealer    RoleID = "healer"
	RoleDPS1      RoleID = "dps1"
	RoleDPS2      RoleID = "dps2"
	RoleKeyholder RoleID = "keyholder"
)

// Selectors.
const (
	// RoleDPS claims the first open damage slot.
	RoleDPS RoleID = "dps"
	// RoleAny releases the first held slot in roster order.
	RoleAny RoleID = "any"
)

// Class distinguishes primary roles from the auxiliary role.
type Class int

const (
	ClassPrimary Class = iota
	ClassAuxiliary
)

func (c Class) String() string {
	if c == ClassAuxiliary {
		return "auxiliary"
	}
	return "primary"
}

// Role is one slot in the roster.
type Role struct {
	ID       RoleID
	Label    string
	Class    Class
	Required bool
}

// Selector groups slots that share a single control.
type Selector struct {
	ID    RoleID
	Label string
	Slots []RoleID
}

// Roster is the fixed ordered set of roles for an event.
type Roster struct {
	roles     []Role
	index     map[RoleID]int
	selectors []Selector
}

// DefaultRoster returns tank, healer, two damage slots and the key holder.
func DefaultRoster() *Roster {
	r, err := NewRoster([]Role{
		{ID: RoleTank, Label: "Tank", Class: ClassPrimary, Required: true},
		{ID: RoleHealer, Label: "Healer", Class: ClassPrimary, Required: true},
		{ID: RoleDPS1, Label: "DPS 1", Class: ClassPrimary, Required: true},
		{ID: RoleDPS2, Label: "DPS 2", Class: ClassPrimary, Required: true},
		{ID: RoleKeyholder, Label: "Key Holder", Class: ClassAuxiliary, Required: true},
	}, []Selector{
		{ID: RoleTank, Label: "Tank", Slots: []RoleID{RoleTank}},
		{ID: RoleHealer, Label: "Healer", Slots: []RoleID{RoleHealer}},
		{ID: RoleDPS, Label: "DPS", Slots: []RoleID{RoleDPS1, RoleDPS2}},
		{ID: RoleKeyholder, Label: "Key Holder", Slots: []RoleID{RoleKeyholder}},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// NewRoster validates roles and selectors. Every selector slot must name a
// role, and every role must be reachable from exactly one selector.
func NewRoster(roles []Role, selectors []Selector) (*Roster, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("roster has no roles")
	}
	r := &Roster{
		roles: append([]Role(nil), roles...),
		index: make(map[RoleID]int, len(roles)),
	}
	for i, role := range roles {
		if role.ID == "" || role.ID == RoleAny {
			return nil, fmt.Errorf("invalid role id %q", role.ID)
		}
		if _, dup := r.index[role.ID]; dup {
			return nil, fmt.Errorf("duplicate role %q", role.ID)
		}
		r.index[role.ID] = i
	}

	covered := make(map[RoleID]bool, len(roles))
	for _, sel := range selectors {
		if len(sel.Slots) == 0 {
			return nil, fmt.Errorf("selector %q has no slots", sel.ID)
		}
		var class Class
		for i, slot := range sel.Slots {
			idx, ok := r.index[slot]
			if !ok {
				return nil, fmt.Errorf("selector %q: unknown role %q", sel.ID, slot)
			}
			if covered[slot] {
				return nil, fmt.Errorf("role %q belongs to more than one selector", slot)
			}
			if i == 0 {
				class = r.roles[idx].Class
			} else if r.roles[idx].Class != class {
				return nil, fmt.Errorf("selector %q mixes role classes", sel.ID)
			}
			covered[slot] = true
		}
		sel.Slots = append([]RoleID(nil), sel.Slots...)
		r.selectors = append(r.selectors, sel)
	}
	for _, role := range roles {
		if !covered[role.ID] {
			return nil, fmt.Errorf("role %q has no selector", role.ID)
		}
	}
	return r, nil
}

// Roles returns the roles in roster order.
func (r *Roster) Roles() []Role {
	return append([]Role(nil), r.roles...)
}

// Selectors returns the control groups in roster order.
func (r *Roster) Selectors() []Selector {
	out := make([]Selector, len(r.selectors))
	for i, s := range r.selectors {
		s.Slots = append([]RoleID(nil), s.Slots...)
		out[i] = s
	}
	return out
}

// Role looks up a concrete role.
func (r *Roster) Role(id RoleID) (Role, bool) {
	idx, ok := r.index[id]
	if !ok {
		return Role{}, false
	}
	return r.roles[idx], true
}

// Resolve expands id to the slots it may occupy, in roster order.
// A concrete role resolves to itself.
func (r *Roster) Resolve(id RoleID) ([]RoleID, error) {
	if _, ok := r.index[id]; ok {
		return []RoleID{id}, nil
	}
	for _, sel := range r.selectors {
		if sel.ID == id {
			return append([]RoleID(nil), sel.Slots...), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, id)
}
