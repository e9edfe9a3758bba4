// Package inventory renders a plain-text report of everything the engine knows.
package inventory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"appcatalog.org/internal/auth"
)

// Source is the read side of the engine used by the report.
type Source interface {
	Require(ctx context.Context, tokenID string, ops ...auth.Operation) error
	Users() []auth.User
	Services() []auth.Service
	Entitlements() []auth.Entitlement
}

// Write renders users, services and entitlements to w. The caller's token
// must carry view_inventory.
func Write(ctx context.Context, w io.Writer, src Source, tokenID string) error {
	if err := src.Require(ctx, tokenID, auth.OpViewInventory); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "USERS")
	fmt.Fprintln(tw, "ID\tNAME\tUSERNAMES\tENTITLEMENTS")
	for _, u := range src.Users() {
		grants := make([]string, 0, len(u.Entitlements))
		for _, e := range u.Entitlements {
			grants = append(grants, label(e))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Name, joinOrDash(u.Usernames()), joinOrDash(grants))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SERVICES")
	fmt.Fprintln(tw, "ID\tNAME\tPERMISSIONS")
	for _, s := range src.Services() {
		perms := make([]string, 0, len(s.Permissions))
		for _, p := range s.Permissions {
			perms = append(perms, p.ID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Name, joinOrDash(perms))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ENTITLEMENTS")
	fmt.Fprintln(tw, "ENTITLEMENT\tKIND\tCLOSURE\tDESCRIPTION")
	for _, e := range src.Entitlements() {
		writeTree(tw, e, 0, map[*auth.Role]bool{})
	}
	return tw.Flush()
}

// writeTree prints e and, for roles, its children one level deeper. A role
// already on the current path is printed but not expanded again.
func writeTree(w io.Writer, e auth.Entitlement, depth int, path map[*auth.Role]bool) {
	ref := e.Ref()
	closure := "-"
	role, isRole := e.(*auth.Role)
	if isRole {
		closure = fmt.Sprint(closureSize(role))
	}
	fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", strings.Repeat("  ", depth), ref.ID, ref.Kind, closure, ref.Description)
	if !isRole || path[role] {
		return
	}
	path[role] = true
	defer delete(path, role)
	for _, child := range role.Children() {
		writeTree(w, child, depth+1, path)
	}
}

// closureSize counts distinct permissions reachable from role.
func closureSize(role *auth.Role) int {
	n := 0
	for e := range auth.Walk(role) {
		if _, ok := e.(auth.Permission); ok {
			n++
		}
	}
	return n
}

func label(e auth.Entitlement) string {
	ref := e.Ref()
	return ref.Kind.String() + ":" + ref.ID
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
