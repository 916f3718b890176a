package authz

import (
	"fmt"
	"sort"

	"github.com/upb/admin-portal/models"
)

// Capability is a named permission used to gate a view or an action
type Capability string

const (
	ManageUsers      Capability = "manageUsers"
	ManageProducts   Capability = "manageProducts"
	ViewProducts     Capability = "viewProducts"
	ManageRoles      Capability = "manageRoles"
	ViewDashboard    Capability = "viewDashboard"
	ManageOrders     Capability = "manageOrders"
	ManagePromotions Capability = "managePromotions"
	ManageCategories Capability = "manageCategories"
	ManageSettings   Capability = "manageSettings"
)

// Rule grants a capability to any session holding one of Roles
type Rule struct {
	Roles []models.Role
}

// AnyOf builds a rule satisfied by any of the given roles
func AnyOf(roles ...models.Role) Rule {
	return Rule{Roles: roles}
}

// Allows reports whether the session satisfies the rule
func (r Rule) Allows(s models.Session) bool {
	return HasAnyRole(s, r.Roles...)
}

// Table maps every capability to the roles that grant it. Route guards and
// session payloads both read it.
var Table = map[Capability]Rule{
	ManageUsers:      AnyOf(models.RoleAdmin),
	ManageProducts:   AnyOf(models.RoleAdmin, models.RoleManager),
	ViewProducts:     AnyOf(models.RoleAdmin, models.RoleManager, models.RoleUser),
	ManageRoles:      AnyOf(models.RoleAdmin),
	ViewDashboard:    AnyOf(models.RoleAdmin, models.RoleManager),
	ManageOrders:     AnyOf(models.RoleAdmin, models.RoleManager),
	ManagePromotions: AnyOf(models.RoleAdmin, models.RoleManager),
	ManageCategories: AnyOf(models.RoleAdmin, models.RoleManager),
	ManageSettings:   AnyOf(models.RoleAdmin),
}

// Can reports whether the session holds the capability. Unknown capabilities are denied.
func Can(s models.Session, c Capability) bool {
	rule, ok := Table[c]
	if !ok {
		return false
	}
	return rule.Allows(s)
}

// Capabilities lists every capability the session holds, sorted by name
func Capabilities(s models.Session) []Capability {
	out := make([]Capability, 0, len(Table))
	for c, rule := range Table {
		if rule.Allows(s) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllCapabilities lists the table's capabilities sorted by name
func AllCapabilities() []Capability {
	out := make([]Capability, 0, len(Table))
	for c := range Table {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseCapability validates a capability name
func ParseCapability(name string) (Capability, error) {
	c := Capability(name)
	if _, ok := Table[c]; !ok {
		return "", fmt.Errorf("unknown capability %q", name)
	}
	return c, nil
}

func CanManageUsers(s models.Session) bool    { return Can(s, ManageUsers) }
func CanManageProducts(s models.Session) bool { return Can(s, ManageProducts) }
func CanViewProducts(s models.Session) bool   { return Can(s, ViewProducts) }
func CanManageRoles(s models.Session) bool    { return Can(s, ManageRoles) }
func CanViewDashboard(s models.Session) bool  { return Can(s, ViewDashboard) }
