package authclient

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/upb/admin-portal/models"
)

// CredentialExpiry reads the exp claim of a JWT credential without verifying
// its signature. Opaque tokens and tokens without exp report false.
func CredentialExpiry(token models.Credential) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(string(token), claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpireIfStale clears the session when its credential carries an expiry in
// the past. It reports whether the session was cleared.
func (c *Client) ExpireIfStale(ctx context.Context) bool {
	token, ok := c.store.CurrentCredential(ctx)
	if !ok {
		return false
	}

	exp, ok := CredentialExpiry(token)
	if !ok || c.now().Before(exp) {
		return false
	}

	profile := c.store.CurrentUser(ctx)
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("failed to clear expired session", zap.Error(err))
		return false
	}

	c.logger.Info("session expired",
		zap.String("scope", c.store.ScopeID()),
		zap.Time("expired_at", exp),
	)
	c.record(ctx, models.NewAuditEvent(models.AuditActionSessionExpired).
		WithProfile(profile).
		WithDetails(map[string]interface{}{"expired_at": exp.UTC()}))
	return true
}
