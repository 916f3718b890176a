package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/middleware"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services/audit"
	"github.com/upb/admin-portal/services/authclient"
	"github.com/upb/admin-portal/utils"
)

// AuditReader reads the persisted audit trail
type AuditReader interface {
	Recent(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error)
}

// AdminHandler handles user and role administration through the API
type AdminHandler struct {
	client *authclient.Client
	audit  AuditReader
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler. reader may be nil.
func NewAdminHandler(client *authclient.Client, reader AuditReader, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		client: client,
		audit:  reader,
		logger: logger,
	}
}

func (h *AdminHandler) clientFor(w http.ResponseWriter, r *http.Request) (*authclient.Client, bool) {
	store := middleware.GetSessionStoreFromContext(r.Context())
	if store == nil {
		h.logger.Error("session store not found in context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteInternalServerError(w, "Session unavailable")
		return nil, false
	}
	return h.client.WithStore(store), true
}

// HandleListUsers handles GET /api/admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	users, err := client.ListUsers(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, users)
}

// HandleCreateUser handles POST /api/admin/users
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req authclient.CreateUserRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleDecodeError(w, err, h.logger)
		return
	}

	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	user, err := client.CreateUser(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("user created",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("email", req.Email))
	_ = utils.WriteCreated(w, user)
}

// HandleDeleteUser handles DELETE /api/admin/users/{id}
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	if err := client.DeleteUser(r.Context(), models.UserID(chi.URLParam(r, "id"))); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleAssignRole handles POST /api/admin/users/{id}/roles/{role}
func (h *AdminHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, (*authclient.Client).AssignRole)
}

// HandleRevokeRole handles DELETE /api/admin/users/{id}/roles/{role}
func (h *AdminHandler) HandleRevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, (*authclient.Client).RevokeRole)
}

type roleChange func(c *authclient.Client, ctx context.Context, id models.UserID, role models.Role) error

func (h *AdminHandler) changeRole(w http.ResponseWriter, r *http.Request, change roleChange) {
	role, err := authz.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		HandleServiceError(w, utils.NewFieldValidationError("role", err.Error()), h.logger)
		return
	}

	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	if err := change(client, r.Context(), models.UserID(chi.URLParam(r, "id")), role); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleListAudit handles GET /api/admin/audit?user=&limit=
func (h *AdminHandler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		_ = utils.WriteNotFound(w, "Audit trail is not available")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.audit.Recent(r.Context(), r.URL.Query().Get("user"), limit)
	if errors.Is(err, audit.ErrNoRepository) {
		_ = utils.WriteNotFound(w, "Audit trail is not persisted")
		return
	}
	if err != nil {
		h.logger.Error("failed to list audit events", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to list audit events")
		return
	}
	_ = utils.WriteOK(w, events)
}
