package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Role is a role name as issued by the remote API (e.g. ROLE_ADMIN).
// Values outside the known set are kept verbatim.
type Role string

const (
	RoleAdmin   Role = "ROLE_ADMIN"
	RoleManager Role = "ROLE_MANAGER"
	RoleUser    Role = "ROLE_USER"
)

// KnownRoles lists the roles the portal understands, most privileged first.
var KnownRoles = []Role{RoleAdmin, RoleManager, RoleUser}

// Known reports whether the role is one of KnownRoles
func (r Role) Known() bool {
	for _, k := range KnownRoles {
		if r == k {
			return true
		}
	}
	return false
}

// RoleSet is a deduplicated set of role names. A decoded or constructed RoleSet is never nil.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles, dropping empty names
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		r = Role(strings.TrimSpace(string(r)))
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether the role is in the set
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Len returns the number of roles in the set
func (s RoleSet) Len() int {
	return len(s)
}

// Sorted returns the roles in lexical order
func (s RoleSet) Sorted() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array; a nil set encodes as []
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of role names. null decodes to an empty set.
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var roles []Role
	if err := json.Unmarshal(data, &roles); err != nil {
		return fmt.Errorf("decode roles: %w", err)
	}
	*s = NewRoleSet(roles...)
	return nil
}

// UserID identifies a user on the remote API. The API sends numbers; ids are
// compared as strings.
type UserID string

// UnmarshalJSON accepts a JSON string or number
func (id *UserID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// String returns the id as text
func (id UserID) String() string {
	return string(id)
}

// UserProfile is the normalized identity of the signed-in user
type UserProfile struct {
	ID     UserID  `json:"id"`
	Name   string  `json:"name,omitempty"`
	Email  string  `json:"email,omitempty"`
	Status string  `json:"status,omitempty"`
	Roles  RoleSet `json:"roles"`
}

// MinimalProfile returns a profile that carries only the id and no roles
func MinimalProfile(id UserID) *UserProfile {
	return &UserProfile{ID: id, Roles: NewRoleSet()}
}

// EnsureRoles replaces a nil role set with an empty one
func (p *UserProfile) EnsureRoles() *UserProfile {
	if p != nil && p.Roles == nil {
		p.Roles = NewRoleSet()
	}
	return p
}
