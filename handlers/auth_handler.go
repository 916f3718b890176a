package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/middleware"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services"
	"github.com/upb/admin-portal/services/audit"
	"github.com/upb/admin-portal/services/authclient"
	"github.com/upb/admin-portal/services/ratelimit"
	"github.com/upb/admin-portal/utils"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	From     string `json:"from,omitempty"`
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	From     string `json:"from,omitempty"`
}

// SessionResponse is the session as the SPA sees it; capabilities drive in-page gating
type SessionResponse struct {
	Authenticated bool                `json:"authenticated"`
	Degraded      bool                `json:"degraded"`
	User          *models.UserProfile `json:"user"`
	Capabilities  []authz.Capability  `json:"capabilities"`
	Redirect      string              `json:"redirect,omitempty"`
}

// NewSessionResponse describes s
func NewSessionResponse(s models.Session) SessionResponse {
	return SessionResponse{
		Authenticated: s.Authenticated(),
		Degraded:      s.Degraded(),
		User:          s.Profile,
		Capabilities:  authz.Capabilities(s),
	}
}

// AuthHandler handles sign-in, sign-up, sign-out and session queries
type AuthHandler struct {
	client  *authclient.Client
	guard   *middleware.RouteGuard
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. A nil limiter never throttles sign-ins.
func NewAuthHandler(client *authclient.Client, guard *middleware.RouteGuard, limiter *ratelimit.Limiter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		client:  client,
		guard:   guard,
		limiter: limiter,
		logger:  logger,
	}
}

// clientFor binds the auth client to the browser's session store
func (h *AuthHandler) clientFor(w http.ResponseWriter, r *http.Request) (*authclient.Client, bool) {
	store := middleware.GetSessionStoreFromContext(r.Context())
	if store == nil {
		h.logger.Error("session store not found in context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteInternalServerError(w, "Session unavailable")
		return nil, false
	}
	return h.client.WithStore(store), true
}

// returnPath picks the return location from the body or the query string
func (h *AuthHandler) returnPath(r *http.Request, from string) string {
	if from == "" {
		from = r.URL.Query().Get("from")
	}
	return h.guard.SafeReturnPath(from)
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleDecodeError(w, err, h.logger)
		return
	}

	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	key := signInKey(r, req.Email)
	if !h.allowSignIn(w, r, key) {
		return
	}

	sess, err := client.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		var authErr *services.AuthError
		if errors.As(err, &authErr) && authErr.Reason == services.AuthInvalidCredentials {
			if rerr := h.limiter.RecordRequest(ctx, key); rerr != nil {
				h.logger.Warn("failed to record sign-in failure", zap.Error(rerr))
			}
		}
		HandleServiceError(w, err, h.logger)
		return
	}
	if err := h.limiter.Reset(ctx, key); err != nil {
		h.logger.Warn("failed to reset sign-in failures", zap.Error(err))
	}
	if !h.renewSession(w, r, client, sess) {
		return
	}

	resp := NewSessionResponse(sess)
	resp.Redirect = h.returnPath(r, req.From)
	_ = utils.WriteOK(w, resp)
}

// renewSession moves a new session to a fresh browser id. On failure the
// session is dropped and a 500 written.
func (h *AuthHandler) renewSession(w http.ResponseWriter, r *http.Request, client *authclient.Client, sess models.Session) bool {
	err := middleware.RenewSession(r.Context(), w, sess)
	if err == nil {
		return true
	}

	h.logger.Error("failed to renew browser session",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.Error(err))
	if cerr := client.Store().Clear(r.Context()); cerr != nil {
		h.logger.Error("failed to clear session after renewal failure", zap.Error(cerr))
	}
	_ = utils.WriteInternalServerError(w, "Session unavailable")
	return false
}

// allowSignIn writes a 429 when key has failed too often. A limiter that cannot
// be reached lets the attempt through.
func (h *AuthHandler) allowSignIn(w http.ResponseWriter, r *http.Request, key string) bool {
	res, err := h.limiter.CheckLimit(r.Context(), key)
	if err != nil {
		h.logger.Warn("sign-in limiter unavailable", zap.Error(err))
		return true
	}
	if res.Allowed {
		return true
	}

	retry := int(res.RetryAfter(time.Now()).Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	_ = utils.WriteError(w, http.StatusTooManyRequests, "Too many failed sign-in attempts, try again later",
		map[string]interface{}{"retry_after": retry})
	return false
}

// signInKey scopes failures to the client address and the account tried
func signInKey(r *http.Request, email string) string {
	meta, _ := audit.RequestMetaFrom(r.Context())
	ip := meta.IPAddress
	if ip == "" {
		ip = r.RemoteAddr
	}
	return ip + "|" + strings.ToLower(strings.TrimSpace(email))
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleDecodeError(w, err, h.logger)
		return
	}

	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	sess, err := client.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if sess.Authenticated() && !h.renewSession(w, r, client, sess) {
		return
	}

	resp := NewSessionResponse(sess)
	if sess.Authenticated() {
		resp.Redirect = h.returnPath(r, req.From)
	} else {
		// registered but not signed in
		resp.Redirect = h.guard.LoginPath()
	}
	_ = utils.WriteCreated(w, resp)
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	if err := client.SignOut(r.Context()); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleSession handles GET /api/session. An expired credential is dropped
// before the session is described.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	client.ExpireIfStale(r.Context())
	_ = utils.WriteOK(w, NewSessionResponse(client.Store().Current(r.Context())))
}
