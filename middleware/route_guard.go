package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/internal/observability"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services/audit"
	"github.com/upb/admin-portal/session"
	"github.com/upb/admin-portal/utils"
)

// State is a step of a route guard evaluation
type State string

const (
	StateChecking State = "checking"
	StateAllowed  State = "allowed"
	StateDenied   State = "denied"
)

// Denial reasons
const (
	ReasonUnauthenticated   = "unauthenticated"
	ReasonMissingCapability = "missing_capability"
)

// ErrFallbackIsLogin is returned when the fallback view would send signed-in
// users back to the login view.
var ErrFallbackIsLogin = errors.New("guard fallback path must differ from the login path")

// Requirement is what a protected view asks of the session. The zero value
// requires authentication only.
type Requirement struct {
	Capability authz.Capability
}

// Authenticated requires a signed-in session and nothing else
func Authenticated() Requirement {
	return Requirement{}
}

// Require requires the capability c
func Require(c authz.Capability) Requirement {
	return Requirement{Capability: c}
}

// Decision is the outcome of one guard evaluation
type Decision struct {
	State    State
	Redirect string
	Reason   string
}

// Expirer drops sessions whose credential has expired
type Expirer interface {
	ExpireIfStale(ctx context.Context) bool
}

// ExpirerFactory binds an Expirer to a browser's session store
type ExpirerFactory func(store *session.Store) Expirer

// GuardConfig holds the guard's redirect targets
type GuardConfig struct {
	LoginPath    string
	FallbackPath string
	HomePath     string
}

// GuardOption configures a RouteGuard
type GuardOption func(*RouteGuard)

// WithExpirer checks credential expiry before every evaluation
func WithExpirer(f ExpirerFactory) GuardOption {
	return func(g *RouteGuard) { g.expirers = f }
}

// WithGuardMetrics counts decisions
func WithGuardMetrics(m *observability.Metrics) GuardOption {
	return func(g *RouteGuard) { g.metrics = m }
}

// WithGuardAudit records denied navigations
func WithGuardAudit(r audit.Recorder) GuardOption {
	return func(g *RouteGuard) { g.audit = r }
}

// RouteGuard gates protected views on the browser's session
type RouteGuard struct {
	loginPath    string
	fallbackPath string
	homePath     string
	expirers     ExpirerFactory
	metrics      *observability.Metrics
	audit        audit.Recorder
	logger       *zap.Logger
}

// NewRouteGuard creates a guard. It fails when the fallback equals the login path.
func NewRouteGuard(cfg GuardConfig, logger *zap.Logger, opts ...GuardOption) (*RouteGuard, error) {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.FallbackPath == "" {
		cfg.FallbackPath = "/unauthorized"
	}
	if cfg.HomePath == "" {
		cfg.HomePath = "/"
	}
	if cleanPath(cfg.FallbackPath) == cleanPath(cfg.LoginPath) {
		return nil, ErrFallbackIsLogin
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &RouteGuard{
		loginPath:    cfg.LoginPath,
		fallbackPath: cfg.FallbackPath,
		homePath:     cfg.HomePath,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// LoginPath returns the login view path
func (g *RouteGuard) LoginPath() string { return g.loginPath }

// FallbackPath returns where unprivileged users are sent
func (g *RouteGuard) FallbackPath() string { return g.fallbackPath }

// HomePath returns where users land after sign-in without a return path
func (g *RouteGuard) HomePath() string { return g.homePath }

// Evaluate decides a navigation to from. Unauthenticated sessions go to the
// login view carrying from; authenticated sessions lacking the capability go
// to the fallback view.
func (g *RouteGuard) Evaluate(s models.Session, req Requirement, from string) Decision {
	d := Decision{State: StateChecking}

	switch {
	case !s.Authenticated():
		d.State = StateDenied
		d.Reason = ReasonUnauthenticated
		d.Redirect = g.LoginRedirect(from)
	case req.Capability != "" && !authz.Can(s, req.Capability):
		d.State = StateDenied
		d.Reason = ReasonMissingCapability
		d.Redirect = g.fallbackPath
	default:
		d.State = StateAllowed
	}
	return d
}

// LoginRedirect returns the login path carrying from as the return location
func (g *RouteGuard) LoginRedirect(from string) string {
	if from == "" {
		return g.loginPath
	}
	return g.loginPath + "?from=" + url.QueryEscape(from)
}

// Protect gates the wrapped handler. Browser navigations are redirected;
// requests from the SPA's fetch layer get a 401 or 403 JSON body naming the
// redirect. Allowed requests carry the session in their context.
func (g *RouteGuard) Protect(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			store := GetSessionStoreFromContext(ctx)
			if store == nil {
				g.logger.Error("session store not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteInternalServerError(w, "Session unavailable")
				return
			}

			if g.expirers != nil {
				g.expirers(store).ExpireIfStale(ctx)
			}

			s := store.Current(ctx)
			from := r.URL.RequestURI()
			d := g.Evaluate(s, req, from)
			g.metrics.ObserveGuardDecision(string(d.State))

			if d.State == StateAllowed {
				next.ServeHTTP(w, r.WithContext(WithSession(ctx, s)))
				return
			}

			g.logger.Info("navigation denied",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("reason", d.Reason),
				zap.String("capability", string(req.Capability)),
				zap.String("redirect", d.Redirect))
			if g.audit != nil {
				g.audit.Record(ctx, models.NewAuditEvent(models.AuditActionAccessDenied).
					WithProfile(s.Profile).
					WithPath(r.URL.Path).
					WithReason(d.Reason).
					WithDetails(map[string]interface{}{"capability": string(req.Capability)}))
			}

			if utils.WantsJSON(r) {
				details := map[string]interface{}{"redirect": d.Redirect}
				if d.Reason == ReasonUnauthenticated {
					_ = utils.WriteError(w, http.StatusUnauthorized, "Authentication required", details)
					return
				}
				details["capability"] = string(req.Capability)
				_ = utils.WriteError(w, http.StatusForbidden, "Insufficient permissions", details)
				return
			}
			http.Redirect(w, r, d.Redirect, http.StatusFound)
		})
	}
}

// SafeReturnPath returns from when it is a local path other than the login
// view, else the home path. Absolute and scheme-relative URLs are refused.
func (g *RouteGuard) SafeReturnPath(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") ||
		strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return g.homePath
	}
	u, err := url.Parse(from)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return g.homePath
	}
	if cleanPath(u.Path) == cleanPath(g.loginPath) {
		return g.homePath
	}
	return from
}

func cleanPath(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
