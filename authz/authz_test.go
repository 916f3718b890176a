package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/admin-portal/models"
)

func sessionWith(roles ...models.Role) models.Session {
	return models.Session{
		Credential: "t1",
		Profile:    &models.UserProfile{ID: "7", Roles: models.NewRoleSet(roles...)},
	}
}

func TestRolesOf(t *testing.T) {
	assert.Equal(t, 0, RolesOf(models.Session{}).Len())
	assert.Equal(t, 0, RolesOf(models.Session{Credential: "t1"}).Len())
	assert.True(t, RolesOf(sessionWith(models.RoleUser)).Has(models.RoleUser))
}

func TestHasAnyRole_ConsistentWithHasRole(t *testing.T) {
	candidates := []models.Role{models.RoleAdmin, models.RoleManager, models.RoleUser, "ROLE_AUDITOR"}

	// every subset of the candidate roles
	for mask := 0; mask < 1<<len(candidates); mask++ {
		var held []models.Role
		for i, r := range candidates {
			if mask&(1<<i) != 0 {
				held = append(held, r)
			}
		}
		s := sessionWith(held...)

		for _, a := range candidates {
			for _, b := range candidates {
				assert.Equal(t, HasRole(s, a) || HasRole(s, b), HasAnyRole(s, a, b),
					"roles=%v a=%s b=%s", held, a, b)
				assert.Equal(t, HasRole(s, a) && HasRole(s, b), HasAllRoles(s, a, b),
					"roles=%v a=%s b=%s", held, a, b)
			}
		}
	}
}

func TestEmptyRoleLists(t *testing.T) {
	s := sessionWith(models.RoleAdmin)
	assert.False(t, HasAnyRole(s))
	assert.True(t, HasAllRoles(s))
}

func TestCan_Table(t *testing.T) {
	tests := []struct {
		name string
		cap  Capability
		want map[models.Role]bool
	}{
		{"manage users", ManageUsers, map[models.Role]bool{models.RoleAdmin: true}},
		{"manage products", ManageProducts, map[models.Role]bool{models.RoleAdmin: true, models.RoleManager: true}},
		{"view products", ViewProducts, map[models.Role]bool{models.RoleAdmin: true, models.RoleManager: true, models.RoleUser: true}},
		{"manage roles", ManageRoles, map[models.Role]bool{models.RoleAdmin: true}},
		{"view dashboard", ViewDashboard, map[models.Role]bool{models.RoleAdmin: true, models.RoleManager: true}},
		{"manage settings", ManageSettings, map[models.Role]bool{models.RoleAdmin: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, role := range models.KnownRoles {
				assert.Equal(t, tt.want[role], Can(sessionWith(role), tt.cap), "role %s", role)
			}
		})
	}
}

func TestEmptyRolesAreUnprivileged(t *testing.T) {
	sessions := map[string]models.Session{
		"anonymous":     {},
		"degraded":      {Credential: "t1"},
		"minimal":       {Credential: "t1", Profile: models.MinimalProfile("7")},
		"unknown roles": sessionWith("ROLE_AUDITOR"),
	}

	for name, s := range sessions {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, CanManageUsers(s))
				assert.False(t, CanManageProducts(s))
				assert.False(t, CanManageRoles(s))
				assert.False(t, CanViewProducts(s))
				assert.False(t, CanViewDashboard(s))
				assert.Empty(t, Capabilities(s))
			})
		})
	}
}

func TestCan_UnknownCapabilityDenied(t *testing.T) {
	assert.False(t, Can(sessionWith(models.RoleAdmin), "launchRockets"))
}

func TestCapabilities(t *testing.T) {
	got := Capabilities(sessionWith(models.RoleUser))
	assert.Equal(t, []Capability{ViewProducts}, got)

	admin := Capabilities(sessionWith(models.RoleAdmin))
	assert.Equal(t, AllCapabilities(), admin)
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("manageRoles")
	require.NoError(t, err)
	assert.Equal(t, ManageRoles, c)

	_, err = ParseCapability("nope")
	assert.Error(t, err)
}

func TestRoleIDs(t *testing.T) {
	id, ok := RoleID(models.RoleAdmin)
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	id, _ = RoleID(models.RoleManager)
	assert.Equal(t, 2, id)

	role, ok := RoleByID(3)
	assert.True(t, ok)
	assert.Equal(t, models.RoleUser, role)

	_, ok = RoleID("ROLE_AUDITOR")
	assert.False(t, ok)
	_, ok = RoleByID(9)
	assert.False(t, ok)
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    models.Role
		wantErr bool
	}{
		{input: "admin", want: models.RoleAdmin},
		{input: "ROLE_MANAGER", want: models.RoleManager},
		{input: " user ", want: models.RoleUser},
		{input: "auditor", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
