package authz

import (
	"fmt"
	"strings"

	"github.com/upb/admin-portal/models"
)

// roleIDs is the numeric id the remote API uses for each role in admin endpoints
var roleIDs = map[models.Role]int{
	models.RoleAdmin:   1,
	models.RoleManager: 2,
	models.RoleUser:    3,
}

// RoleID returns the API id of role
func RoleID(role models.Role) (int, bool) {
	id, ok := roleIDs[role]
	return id, ok
}

// RoleByID returns the role with the given API id
func RoleByID(id int) (models.Role, bool) {
	for role, rid := range roleIDs {
		if rid == id {
			return role, true
		}
	}
	return "", false
}

// ParseRole accepts a full role name (ROLE_ADMIN) or its short form (admin)
func ParseRole(name string) (models.Role, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "" {
		return "", fmt.Errorf("role is required")
	}
	if !strings.HasPrefix(n, "ROLE_") {
		n = "ROLE_" + n
	}
	role := models.Role(n)
	if _, ok := roleIDs[role]; !ok {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return role, nil
}
