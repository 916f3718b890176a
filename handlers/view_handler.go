package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/middleware"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/utils"
)

// View is a page of the admin SPA and what it asks of the session
type View struct {
	Name        string
	Path        string
	Requirement middleware.Requirement
}

// Views lists the guarded pages. Views without a capability need a signed-in
// session only.
var Views = []View{
	{Name: "dashboard", Path: "/dashboard", Requirement: middleware.Require(authz.ViewDashboard)},
	{Name: "orders", Path: "/dashboard/orders", Requirement: middleware.Require(authz.ManageOrders)},
	{Name: "customers", Path: "/dashboard/customers", Requirement: middleware.Require(authz.ViewDashboard)},
	{Name: "reports", Path: "/dashboard/reports", Requirement: middleware.Require(authz.ViewDashboard)},
	{Name: "products", Path: "/products", Requirement: middleware.Require(authz.ViewProducts)},
	{Name: "inventory", Path: "/inventory", Requirement: middleware.Require(authz.ManageProducts)},
	{Name: "campaigns", Path: "/promo/campaigns", Requirement: middleware.Require(authz.ManagePromotions)},
	{Name: "coupons", Path: "/promo/coupons", Requirement: middleware.Require(authz.ManagePromotions)},
	{Name: "categories", Path: "/categories", Requirement: middleware.Require(authz.ManageCategories)},
	{Name: "settings", Path: "/settings", Requirement: middleware.Authenticated()},
	{Name: "profile", Path: "/settings/profile", Requirement: middleware.Authenticated()},
	{Name: "users", Path: "/settings/users", Requirement: middleware.Require(authz.ManageUsers)},
	{Name: "roles", Path: "/settings/roles", Requirement: middleware.Require(authz.ManageRoles)},
}

// ViewResponse describes a view for the SPA to render
type ViewResponse struct {
	View         string              `json:"view"`
	Path         string              `json:"path"`
	User         *models.UserProfile `json:"user,omitempty"`
	Capabilities []authz.Capability  `json:"capabilities"`
	From         string              `json:"from,omitempty"`
}

// ViewHandler serves view descriptors and the public entry points
type ViewHandler struct {
	guard  *middleware.RouteGuard
	logger *zap.Logger
}

// NewViewHandler creates a new ViewHandler
func NewViewHandler(guard *middleware.RouteGuard, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{guard: guard, logger: logger}
}

// Render returns the handler for a guarded view. It expects the session the
// route guard put in the context.
func (h *ViewHandler) Render(v View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := middleware.GetSessionFromContext(r.Context())
		_ = utils.WriteOK(w, ViewResponse{
			View:         v.Name,
			Path:         v.Path,
			User:         s.Profile,
			Capabilities: authz.Capabilities(s),
		})
	}
}

// HandleRoot handles GET / by sending the browser home or to the login view
func (h *ViewHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if h.current(r).Authenticated() {
		http.Redirect(w, r, h.guard.HomePath(), http.StatusFound)
		return
	}
	http.Redirect(w, r, h.guard.LoginPath(), http.StatusFound)
}

// HandleLogin handles GET /login. Signed-in users continue to where they were going.
func (h *ViewHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if h.current(r).Authenticated() {
		http.Redirect(w, r, h.guard.SafeReturnPath(from), http.StatusFound)
		return
	}
	_ = utils.WriteOK(w, ViewResponse{
		View:         "login",
		Path:         h.guard.LoginPath(),
		Capabilities: []authz.Capability{},
		From:         from,
	})
}

// HandleRegister handles GET /register
func (h *ViewHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, ViewResponse{
		View:         "register",
		Path:         r.URL.Path,
		Capabilities: []authz.Capability{},
	})
}

// HandleUnauthorized handles the fallback view for signed-in users lacking a capability
func (h *ViewHandler) HandleUnauthorized(w http.ResponseWriter, r *http.Request) {
	s := h.current(r)
	_ = utils.WriteOK(w, ViewResponse{
		View:         "unauthorized",
		Path:         h.guard.FallbackPath(),
		User:         s.Profile,
		Capabilities: authz.Capabilities(s),
	})
}

func (h *ViewHandler) current(r *http.Request) models.Session {
	store := middleware.GetSessionStoreFromContext(r.Context())
	if store == nil {
		return models.Session{}
	}
	return store.Current(r.Context())
}
