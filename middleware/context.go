package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/session"
)

// Context key type to avoid collisions
type contextKey string

const (
	// SessionStoreKey is the context key for the session store scoped to the browser
	SessionStoreKey contextKey = "session_store"

	// SessionKey is the context key for the session read by the route guard
	SessionKey contextKey = "session"

	// SessionRenewerKey is the context key for the browser's session renewer
	SessionRenewerKey contextKey = "session_renewer"
)

// SessionRenewer moves a freshly signed-in session to a new browser session id
type SessionRenewer func(ctx context.Context, w http.ResponseWriter, s models.Session) error

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetSessionStoreFromContext retrieves the browser's session store from context
func GetSessionStoreFromContext(ctx context.Context) *session.Store {
	if val := ctx.Value(SessionStoreKey); val != nil {
		if store, ok := val.(*session.Store); ok {
			return store
		}
	}
	return nil
}

// WithSessionStore adds the browser's session store to the context
func WithSessionStore(ctx context.Context, store *session.Store) context.Context {
	return context.WithValue(ctx, SessionStoreKey, store)
}

// GetSessionFromContext retrieves the session the route guard allowed
func GetSessionFromContext(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(SessionKey).(models.Session)
	return s, ok
}

// WithSession adds a session to the context
func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// WithSessionRenewer adds the browser's session renewer to the context
func WithSessionRenewer(ctx context.Context, renew SessionRenewer) context.Context {
	return context.WithValue(ctx, SessionRenewerKey, renew)
}

// RenewSession moves s to a new browser session id. Without a browser binding
// in ctx it does nothing.
func RenewSession(ctx context.Context, w http.ResponseWriter, s models.Session) error {
	renew, ok := ctx.Value(SessionRenewerKey).(SessionRenewer)
	if !ok || renew == nil {
		return nil
	}
	return renew(ctx, w, s)
}
