package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/utils"
)

const adminUsersPath = "/api/v1/admin/users"

// CreateUserRequest is the admin form for a new account
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Active   bool   `json:"active"`
}

// createUserPayload is the body the API expects
type createUserPayload struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Status   bool   `json:"status"`
}

// ListUsers returns every user known to the admin endpoint
func (c *Client) ListUsers(ctx context.Context) ([]*models.UserProfile, error) {
	var raw json.RawMessage
	if err := c.DoJSON(ctx, http.MethodGet, adminUsersPath, nil, &raw); err != nil {
		return nil, err
	}
	return decodeUsers(raw)
}

// CreateUser creates an account through the admin endpoint
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*models.UserProfile, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	err := c.DoJSON(ctx, http.MethodPost, adminUsersPath, createUserPayload{
		FullName: req.Name,
		Email:    req.Email,
		Password: req.Password,
		Status:   req.Active,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return NormalizeProfile(raw), nil
}

// DeleteUser removes an account
func (c *Client) DeleteUser(ctx context.Context, id models.UserID) error {
	if id == "" {
		return utils.NewFieldValidationError("id", "id is required")
	}
	return c.DoJSON(ctx, http.MethodDelete, adminUsersPath+"/"+url.PathEscape(id.String()), nil, nil)
}

// AssignRole grants role to a user
func (c *Client) AssignRole(ctx context.Context, id models.UserID, role models.Role) error {
	return c.changeRole(ctx, http.MethodPost, id, role, models.AuditActionRoleAssigned)
}

// RevokeRole removes role from a user
func (c *Client) RevokeRole(ctx context.Context, id models.UserID, role models.Role) error {
	return c.changeRole(ctx, http.MethodDelete, id, role, models.AuditActionRoleRevoked)
}

func (c *Client) changeRole(ctx context.Context, method string, id models.UserID, role models.Role, action models.AuditAction) error {
	if id == "" {
		return utils.NewFieldValidationError("id", "id is required")
	}
	roleID, ok := authz.RoleID(role)
	if !ok {
		return utils.NewFieldValidationError("role", fmt.Sprintf("unknown role %q", role))
	}

	path := fmt.Sprintf("%s/%s/role/%d", adminUsersPath, url.PathEscape(id.String()), roleID)
	if err := c.DoJSON(ctx, method, path, nil, nil); err != nil {
		return err
	}

	c.record(ctx, models.NewAuditEvent(action).
		WithProfile(c.store.CurrentUser(ctx)).
		WithDetails(map[string]interface{}{
			"target_user": id.String(),
			"role":        string(role),
		}))
	return nil
}
