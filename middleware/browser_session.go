package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services/audit"
	"github.com/upb/admin-portal/session"
)

// BrowserSessionConfig controls the cookie that binds a browser to its session scope
type BrowserSessionConfig struct {
	CookieName string
	Secure     bool
	MaxAge     time.Duration
}

// BrowserSession gives every browser its own session scope, identified by an
// opaque random id kept in an HttpOnly cookie.
type BrowserSession struct {
	store  *session.Store
	cfg    BrowserSessionConfig
	logger *zap.Logger
}

// NewBrowserSession creates the binding middleware over store
func NewBrowserSession(store *session.Store, cfg BrowserSessionConfig, logger *zap.Logger) *BrowserSession {
	if cfg.CookieName == "" {
		cfg.CookieName = "portal_sid"
	}
	return &BrowserSession{store: store, cfg: cfg, logger: logger}
}

// Handler puts the scoped session store, its renewer and the audit request
// metadata into the request context, issuing a new id when the cookie is
// missing or invalid.
func (b *BrowserSession) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := b.sessionID(r)
		if id == "" {
			id = uuid.NewString()
			b.setCookie(w, id)
			b.logger.Debug("issued browser session",
				zap.String("request_id", GetRequestIDFromContext(r.Context())))
		}

		current := b.store.Scope(id)
		ctx := WithSessionStore(r.Context(), current)
		ctx = WithSessionRenewer(ctx, func(ctx context.Context, w http.ResponseWriter, s models.Session) error {
			return b.renew(ctx, w, current, s)
		})
		ctx = audit.WithRequestMeta(ctx, audit.RequestMeta{
			RequestID: GetRequestIDFromContext(ctx),
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// renew copies s into a new scope, clears the old one and points the cookie at
// the new id, so an id known before sign-in never becomes authenticated.
func (b *BrowserSession) renew(ctx context.Context, w http.ResponseWriter, old *session.Store, s models.Session) error {
	id := uuid.NewString()
	fresh := b.store.Scope(id)
	if err := fresh.Save(ctx, s.Credential, s.Profile); err != nil {
		return fmt.Errorf("renew browser session: %w", err)
	}
	if err := old.Clear(ctx); err != nil {
		return errors.Join(fmt.Errorf("renew browser session: %w", err), fresh.Clear(ctx))
	}

	b.setCookie(w, id)
	b.logger.Debug("renewed browser session",
		zap.String("request_id", GetRequestIDFromContext(ctx)))
	return nil
}

func (b *BrowserSession) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(b.cfg.CookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

func (b *BrowserSession) setCookie(w http.ResponseWriter, id string) {
	cookie := &http.Cookie{
		Name:     b.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   b.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if b.cfg.MaxAge > 0 {
		cookie.MaxAge = int(b.cfg.MaxAge / time.Second)
	}
	http.SetCookie(w, cookie)
}

// clientIP strips the port from RemoteAddr; chi's RealIP may already have
// replaced it with a bare address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
