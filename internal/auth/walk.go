package auth

import "iter"

// Walk enumerates the descendants of root depth-first, without root itself.
//
// Order: pre-order, siblings in the order they were added. A role is yielded
// before its own children. Each role is yielded and expanded at most once and
// each distinct permission (by Ref) is yielded at most once, so cyclic or
// diamond-shaped graphs terminate.
//
// Children are read from the copy-on-write snapshot of each role, so the walk
// never observes a partially appended child list. Request a new sequence for
// every traversal.
func Walk(root *Role) iter.Seq[Entitlement] {
	return func(yield func(Entitlement) bool) {
		if root == nil {
			return
		}
		expanded := map[*Role]struct{}{root: {}}
		seen := make(map[Permission]struct{})

		var stack []Entitlement
		stack = pushReversed(stack, root.snapshot())
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			switch e := top.(type) {
			case Permission:
				if _, ok := seen[e]; ok {
					continue
				}
				seen[e] = struct{}{}
				if !yield(e) {
					return
				}
			case *Role:
				if _, ok := expanded[e]; ok {
					continue
				}
				expanded[e] = struct{}{}
				if !yield(e) {
					return
				}
				stack = pushReversed(stack, e.snapshot())
			}
		}
	}
}

// WalkAll enumerates everything reachable from roots, roots included, through
// a synthetic aggregation role.
func WalkAll(roots []Entitlement) iter.Seq[Entitlement] {
	return Walk(NewRole("", "", "", roots...))
}

// Grants reports whether permissionID is directly among roots or reachable
// from any role in roots. Only permissions match; a role whose id equals
// permissionID does not.
func Grants(roots []Entitlement, permissionID string) bool {
	for e := range WalkAll(roots) {
		if p, ok := e.(Permission); ok && p.ID == permissionID {
			return true
		}
	}
	return false
}

// PermissionSet collects the ids of every permission reachable from roots.
func PermissionSet(roots []Entitlement) map[string]struct{} {
	set := make(map[string]struct{})
	for e := range WalkAll(roots) {
		if p, ok := e.(Permission); ok {
			set[p.ID] = struct{}{}
		}
	}
	return set
}

func pushReversed(stack, children []Entitlement) []Entitlement {
	for i := len(children) - 1; i >= 0; i-- {
		stack = append(stack, children[i])
	}
	return stack
}
