package auth

import (
	"fmt"
	"strings"
	"sync"

	"appcatalog.org/internal/ids"
)

// Graph holds the registered entitlements and services. It is append-only and
// safe for concurrent use.
type Graph struct {
	mu           sync.RWMutex
	entitlements []Entitlement
	refs         map[Ref]struct{}
	services     []*Service
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{refs: make(map[Ref]struct{})}
}

// AddRole registers role. A role equal on every field to a registered one is
// not added again (added=false).
func (g *Graph) AddRole(role *Role) (bool, error) {
	if role == nil {
		return false, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	if strings.TrimSpace(role.ID()) == "" {
		return false, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registerLocked(role), nil
}

// AddPermission registers permission and, when serviceID is set, appends it to
// that service. The service must already exist.
func (g *Graph) AddPermission(p Permission, serviceID string) (bool, error) {
	if strings.TrimSpace(p.ID) == "" {
		return false, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	var svc *Service
	if serviceID != "" {
		svc = g.serviceLocked(serviceID)
		if svc == nil {
			return false, fmt.Errorf("%w: service %s", ErrNotFound, serviceID)
		}
	}
	added := g.registerLocked(p)
	if svc != nil && !serviceHas(svc, p) {
		svc.Permissions = append(svc.Permissions, p)
	}
	return added, nil
}

// AddChild appends child to a registered role. Adding the role to itself, or
// adding a role that already reaches this role, fails with ErrCycle. Adding an
// equal child twice is a no-op (added=false).
func (g *Graph) AddChild(role *Role, child Entitlement) (bool, error) {
	if role == nil || child == nil {
		return false, fmt.Errorf("%w: role and child are required", ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.refs[role.Ref()]; !ok {
		return false, fmt.Errorf("%w: role %s", ErrNotFound, role.ID())
	}
	if sub, ok := child.(*Role); ok && reaches(sub, role) {
		return false, fmt.Errorf("%w: role %s already reaches %s", ErrCycle, sub.ID(), role.ID())
	}
	if role.contains(child) {
		return false, nil
	}
	role.appendChild(child)
	return true, nil
}

// DefineService registers a service. An empty id is generated.
func (g *Graph) DefineService(s Service) (Service, bool, error) {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return Service{}, false, fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(s.ID) == "" {
		s.ID = ids.New()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.services {
		if existing.key() == s.key() {
			return copyService(existing), false, nil
		}
	}
	stored := copyService(&s)
	g.services = append(g.services, &stored)
	return copyService(&stored), true, nil
}

// Entitlement returns the first registered entitlement with id.
func (g *Graph) Entitlement(id string) (Entitlement, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.entitlements {
		if e.Ref().ID == id {
			return e, true
		}
	}
	return nil, false
}

// Role returns the first registered role with id.
func (g *Graph) Role(id string) (*Role, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.entitlements {
		if r, ok := e.(*Role); ok && r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Contains reports whether an entitlement equal to e is registered.
func (g *Graph) Contains(e Entitlement) bool {
	if e == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.refs[e.Ref()]
	return ok
}

// Entitlements returns all registered entitlements in registration order.
func (g *Graph) Entitlements() []Entitlement {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Entitlement(nil), g.entitlements...)
}

// Service returns the first service with id.
func (g *Graph) Service(id string) (Service, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.serviceLocked(id)
	if s == nil {
		return Service{}, false
	}
	return copyService(s), true
}

// Services returns all services in definition order.
func (g *Graph) Services() []Service {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Service, 0, len(g.services))
	for _, s := range g.services {
		out = append(out, copyService(s))
	}
	return out
}

func (g *Graph) registerLocked(e Entitlement) bool {
	ref := e.Ref()
	if _, ok := g.refs[ref]; ok {
		return false
	}
	g.refs[ref] = struct{}{}
	g.entitlements = append(g.entitlements, e)
	return true
}

func (g *Graph) serviceLocked(id string) *Service {
	for _, s := range g.services {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// reaches reports whether target is from or a descendant of from.
func reaches(from, target *Role) bool {
	if from == target {
		return true
	}
	for e := range Walk(from) {
		if r, ok := e.(*Role); ok && r == target {
			return true
		}
	}
	return false
}

func serviceHas(s *Service, p Permission) bool {
	for _, existing := range s.Permissions {
		if existing == p {
			return true
		}
	}
	return false
}

func copyService(s *Service) Service {
	out := *s
	out.Permissions = append([]Permission(nil), s.Permissions...)
	return out
}
