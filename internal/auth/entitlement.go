package auth

import (
	"slices"
	"sync"
)

// Kind distinguishes the two entitlement variants.
type Kind uint8

const (
	KindPermission Kind = iota + 1
	KindRole
)

func (k Kind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindRole:
		return "role"
	default:
		return "unknown"
	}
}

// Ref is the comparable identity of an entitlement. Two entitlements are the
// same only when every field matches; a shared ID alone does not make them equal.
type Ref struct {
	Kind        Kind
	ID          string
	Name        string
	Description string
}

// Entitlement is a grantable capability: either a Permission or a *Role.
// The set of implementations is closed; switch on the concrete type.
type Entitlement interface {
	Ref() Ref
	isEntitlement()
}

// Permission is a leaf entitlement identified by its operation name.
type Permission struct {
	ID          string
	Name        string
	Description string
}

// NewPermission builds a permission whose name defaults to its id.
func NewPermission(id, description string) Permission {
	return Permission{ID: id, Name: id, Description: description}
}

func (p Permission) Ref() Ref {
	return Ref{Kind: KindPermission, ID: p.ID, Name: p.Name, Description: p.Description}
}

func (Permission) isEntitlement() {}

// Role aggregates an ordered list of child entitlements. Identity fields are
// fixed at construction; children are appended through Graph.AddChild or at
// construction time.
type Role struct {
	id          string
	name        string
	description string

	mu       sync.RWMutex
	children []Entitlement
}

// NewRole builds a role with optional initial children.
func NewRole(id, name, description string, children ...Entitlement) *Role {
	r := &Role{id: id, name: name, description: description}
	if len(children) > 0 {
		r.children = append([]Entitlement(nil), children...)
	}
	return r
}

func (r *Role) ID() string          { return r.id }
func (r *Role) Name() string        { return r.name }
func (r *Role) Description() string { return r.description }

func (r *Role) Ref() Ref {
	return Ref{Kind: KindRole, ID: r.id, Name: r.name, Description: r.description}
}

func (*Role) isEntitlement() {}

// Children returns a copy of the role's direct children in insertion order.
func (r *Role) Children() []Entitlement {
	return slices.Clone(r.snapshot())
}

// snapshot returns the current children slice. The slice is never written to
// again and must not be handed to callers outside the package.
func (r *Role) snapshot() []Entitlement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.children[:len(r.children):len(r.children)]
}

// contains reports whether child is already a direct child (full-field equality).
func (r *Role) contains(child Entitlement) bool {
	ref := child.Ref()
	for _, c := range r.snapshot() {
		if c.Ref() == ref {
			return true
		}
	}
	return false
}

// appendChild publishes a new children slice so snapshots taken earlier stay intact.
func (r *Role) appendChild(child Entitlement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Entitlement, len(r.children), len(r.children)+1)
	copy(next, r.children)
	r.children = append(next, child)
}

// IDOf returns the identifier of any entitlement.
func IDOf(e Entitlement) string {
	if e == nil {
		return ""
	}
	return e.Ref().ID
}
