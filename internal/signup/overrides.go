package signup

import "sync/atomic"

// Overrides is the set of user IDs allowed to bypass eligibility rules.
// It is swapped atomically so configuration reloads never block claims.
type Overrides struct {
	ids atomic.Pointer[map[string]struct{}]
}

// NewOverrides returns a set holding ids.
func NewOverrides(ids ...string) *Overrides {
	o := &Overrides{}
	o.Replace(ids)
	return o
}

// Replace swaps the whole set.
func (o *Overrides) Replace(ids []string) {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	o.ids.Store(&m)
}

// Contains reports whether userID is an override user. A nil set contains nobody.
func (o *Overrides) Contains(userID string) bool {
	if o == nil {
		return false
	}
	m := o.ids.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[userID]
	return ok
}

// Len returns the number of override users.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	if m := o.ids.Load(); m != nil {
		return len(*m)
	}
	return 0
}
