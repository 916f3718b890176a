package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoleSet(t *testing.T) {
	set := NewRoleSet(RoleAdmin, RoleAdmin, "", " ", RoleUser)

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Has(RoleAdmin))
	assert.True(t, set.Has(RoleUser))
	assert.False(t, set.Has(RoleManager))
	assert.Equal(t, []Role{RoleAdmin, RoleUser}, set.Sorted())
}

func TestRoleSet_JSON(t *testing.T) {
	t.Run("encodes sorted array", func(t *testing.T) {
		data, err := json.Marshal(NewRoleSet(RoleUser, RoleAdmin))
		require.NoError(t, err)
		assert.JSONEq(t, `["ROLE_ADMIN","ROLE_USER"]`, string(data))
	})

	t.Run("nil set encodes as empty array", func(t *testing.T) {
		var set RoleSet
		data, err := json.Marshal(set)
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	})

	t.Run("null decodes to empty set", func(t *testing.T) {
		var set RoleSet
		require.NoError(t, json.Unmarshal([]byte(`null`), &set))
		assert.NotNil(t, set)
		assert.Equal(t, 0, set.Len())
	})

	t.Run("unknown roles are preserved", func(t *testing.T) {
		var set RoleSet
		require.NoError(t, json.Unmarshal([]byte(`["ROLE_AUDITOR","ROLE_AUDITOR"]`), &set))
		assert.Equal(t, []Role{"ROLE_AUDITOR"}, set.Sorted())
		assert.False(t, Role("ROLE_AUDITOR").Known())
	})
}

func TestUserID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    UserID
		wantErr bool
	}{
		{name: "number", input: `7`, want: "7"},
		{name: "string", input: `"abc-1"`, want: "abc-1"},
		{name: "null", input: `null`, want: ""},
		{name: "object", input: `{"id":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id UserID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestUserProfile_StoredFormat(t *testing.T) {
	profile := UserProfile{ID: "7", Email: "a@x.com", Roles: NewRoleSet(RoleAdmin)}

	data, err := json.Marshal(profile)
	require.NoError(t, err)

	var decoded UserProfile
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, profile, decoded)
}

func TestMinimalProfile(t *testing.T) {
	p := MinimalProfile("7")
	assert.Equal(t, UserID("7"), p.ID)
	assert.NotNil(t, p.Roles)
	assert.Equal(t, 0, p.Roles.Len())

	var missing *UserProfile
	assert.Nil(t, missing.EnsureRoles())
}

func TestSession_State(t *testing.T) {
	empty := Session{}
	assert.False(t, empty.Authenticated())
	assert.False(t, empty.Degraded())
	assert.Equal(t, 0, empty.Roles().Len())

	degraded := Session{Credential: "t1"}
	assert.True(t, degraded.Authenticated())
	assert.True(t, degraded.Degraded())

	full := Session{Credential: "t1", Profile: &UserProfile{ID: "7", Roles: NewRoleSet(RoleManager)}}
	assert.False(t, full.Degraded())
	assert.True(t, full.Roles().Has(RoleManager))
}

func TestNewAuditEvent(t *testing.T) {
	event := NewAuditEvent(AuditActionSignInSucceeded).
		WithProfile(&UserProfile{ID: "7", Email: "a@x.com"}).
		WithPath("/dashboard").
		WithReason("ok").
		WithDetails(map[string]string{"k": "v"}).
		WithRequest("req-1", "10.0.0.1", "curl")

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "7", event.UserID)
	assert.Equal(t, "a@x.com", event.Email)
	assert.Equal(t, "/dashboard", event.Path)
	assert.JSONEq(t, `{"k":"v"}`, string(event.Details))
	assert.Equal(t, "auth_events", event.TableName())
	assert.False(t, event.Timestamp.IsZero())
}
