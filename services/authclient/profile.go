package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services"
)

const usersPath = "/api/v1/users"

// rawUser is the user shape as returned by the API. Fields vary between
// endpoints, so roles and status are decoded by hand.
type rawUser struct {
	ID       models.UserID   `json:"id"`
	FullName string          `json:"fullName"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Status   json.RawMessage `json:"status"`
	Roles    json.RawMessage `json:"roles"`
}

// NormalizeProfile maps a raw API user onto a UserProfile. It returns nil for
// an absent, null or unreadable user. Roles may be bare names or objects with
// a name or role field; they are flattened into a set. Roles that are not a
// list read as no roles.
func NormalizeProfile(raw []byte) *models.UserProfile {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var u rawUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil
	}

	name := u.FullName
	if name == "" {
		name = u.Name
	}

	return &models.UserProfile{
		ID:     u.ID,
		Name:   name,
		Email:  u.Email,
		Status: statusText(u.Status),
		Roles:  roleSet(u.Roles),
	}
}

func roleSet(raw json.RawMessage) models.RoleSet {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return models.NewRoleSet()
	}
	roles := make([]models.Role, 0, len(items))
	for _, r := range items {
		if role := roleName(r); role != "" {
			roles = append(roles, role)
		}
	}
	return models.NewRoleSet(roles...)
}

func roleName(raw json.RawMessage) models.Role {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return models.Role(s)
	}
	var obj struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.Name != "" {
		return models.Role(obj.Name)
	}
	return models.Role(obj.Role)
}

// statusText keeps string statuses and maps the boolean form to active/inactive
func statusText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "active"
		}
		return "inactive"
	}
	return ""
}

// decodeUsers reads a user list sent either as a bare array or wrapped in a
// data, content or users field. Unreadable entries are skipped.
func decodeUsers(raw []byte) ([]*models.UserProfile, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []*models.UserProfile{}, nil
	}

	var items []json.RawMessage
	if raw[0] == '{' {
		var page map[string]json.RawMessage
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decode user list: %w", err)
		}
		for _, key := range []string{"data", "content", "users"} {
			if list, ok := page[key]; ok {
				raw = list
				break
			}
		}
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode user list: %w", err)
	}

	users := make([]*models.UserProfile, 0, len(items))
	for _, item := range items {
		if p := NormalizeProfile(item); p != nil {
			users = append(users, p)
		}
	}
	return users, nil
}

// Lookup resolves the profile of user id by listing users with token. The API
// has no get-by-id endpoint. Concurrent lookups for the same token and id
// share one request.
func (c *Client) Lookup(ctx context.Context, token models.Credential, id models.UserID) (*models.UserProfile, error) {
	key := string(token) + "|" + id.String()
	v, err, _ := c.lookups.Do(key, func() (interface{}, error) {
		var raw json.RawMessage
		if err := c.doJSON(ctx, http.MethodGet, usersPath, nil, &raw, token); err != nil {
			return nil, err
		}
		users, err := decodeUsers(raw)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if u.ID == id {
				return u, nil
			}
		}
		return nil, services.ErrUserNotFound
	})
	if err != nil {
		return nil, err
	}

	// callers sharing the result must not share the pointer
	p := *v.(*models.UserProfile)
	p.Roles = models.NewRoleSet(p.Roles.Sorted()...)
	return &p, nil
}
