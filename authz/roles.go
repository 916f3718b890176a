// Package authz answers capability questions about a session. It performs no I/O;
// the capability table in this package is the only place that maps roles to access.
package authz

import "github.com/upb/admin-portal/models"

// RolesOf returns the session's roles; an anonymous or degraded session has none
func RolesOf(s models.Session) models.RoleSet {
	return s.Roles()
}

// HasRole reports whether the session holds role
func HasRole(s models.Session, role models.Role) bool {
	return RolesOf(s).Has(role)
}

// HasAnyRole reports whether the session holds at least one of roles.
// An empty list is never satisfied.
func HasAnyRole(s models.Session, roles ...models.Role) bool {
	for _, r := range roles {
		if HasRole(s, r) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the session holds every one of roles.
// An empty list is always satisfied.
func HasAllRoles(s models.Session, roles ...models.Role) bool {
	for _, r := range roles {
		if !HasRole(s, r) {
			return false
		}
	}
	return true
}
