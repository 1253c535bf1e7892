package people

import (
	"cmp"
	"slices"
)

// Roster indexes persons by client id.
// It is not safe for concurrent use; the Model serializes access to its roster.
type Roster struct {
	byClientID map[string]*Person
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{byClientID: make(map[string]*Person)}
}

// ByClientID matches the person indexed under cid.
func ByClientID(cid string) func(*Person) bool {
	return func(p *Person) bool {
		return p.ClientID == cid
	}
}

// Insert indexes p under its client id, replacing any person already stored there.
func (r *Roster) Insert(p *Person) {
	if p == nil {
		return
	}
	r.byClientID[p.ClientID] = p
}

// RemoveWhere drops every person matching pred and returns how many were removed.
func (r *Roster) RemoveWhere(pred func(*Person) bool) int {
	removed := 0
	for cid, p := range r.byClientID {
		if pred(p) {
			delete(r.byClientID, cid)
			removed++
		}
	}
	return removed
}

// FindByClientID returns the person indexed under cid.
func (r *Roster) FindByClientID(cid string) (*Person, bool) {
	p, ok := r.byClientID[cid]
	return p, ok
}

// All returns every person ordered by name, then client id.
func (r *Roster) All() []*Person {
	all := make([]*Person, 0, len(r.byClientID))
	for _, p := range r.byClientID {
		all = append(all, p)
	}

	slices.SortFunc(all, func(a, b *Person) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ClientID, b.ClientID)
	})
	return all
}

// Len returns the number of indexed persons.
func (r *Roster) Len() int {
	return len(r.byClientID)
}

// Reset empties the roster. A non-nil seed is inserted again afterwards.
func (r *Roster) Reset(seed *Person) {
	r.byClientID = make(map[string]*Person)
	r.Insert(seed)
}
