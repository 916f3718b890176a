package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/admin-portal/internal/observability"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services"
	"github.com/upb/admin-portal/session"
	"github.com/upb/admin-portal/utils"
)

// MinPasswordLength is the shortest password accepted at sign-up
const MinPasswordLength = 6

const (
	loginPath    = "/api/v1/auth/login"
	registerPath = "/api/v1/auth/register"
)

// SignInRequest holds sign-in credentials
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpRequest holds the registration form
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// authResponse is the body of a successful login or register call
type authResponse struct {
	Token  models.Credential `json:"token"`
	UserID models.UserID     `json:"userId"`
}

// SignIn authenticates against the API and stores the resulting session.
// The credential is stored as soon as it is received; the profile follows once
// resolved, falling back to a profile carrying only the user id. If another
// sign-in or a sign-out started while this one was in flight, nothing is
// written and services.ErrStaleSession is returned.
func (c *Client) SignIn(ctx context.Context, email, password string) (models.Session, error) {
	req := SignInRequest{Email: email, Password: password}
	if err := utils.ValidateStruct(req); err != nil {
		c.metrics.ObserveSignIn(observability.OutcomeValidation)
		return models.Session{}, err
	}

	sess, err := c.authenticate(ctx, loginPath, req)
	if err != nil {
		c.metrics.ObserveSignIn(signInOutcome(err))
		c.record(ctx, models.NewAuditEvent(models.AuditActionSignInFailed).
			WithUser("", email).
			WithReason(signInOutcome(err)))
		return models.Session{}, err
	}

	c.metrics.ObserveSignIn(observability.OutcomeSuccess)
	c.record(ctx, models.NewAuditEvent(models.AuditActionSignInSucceeded).WithProfile(sess.Profile))
	fields := []zap.Field{zap.String("scope", c.store.ScopeID())}
	if sess.Profile != nil {
		fields = append(fields,
			zap.String("user_id", sess.Profile.ID.String()),
			zap.Int("roles", sess.Profile.Roles.Len()),
		)
	}
	c.logger.Info("user signed in", fields...)
	return sess, nil
}

// SignUp registers a new account. The password is checked locally first; a
// short password fails with *utils.ValidationError and no request is sent.
// A register response without a token signs nobody in and leaves the store
// as it was.
func (c *Client) SignUp(ctx context.Context, name, email, password string) (models.Session, error) {
	req := SignUpRequest{Name: name, Email: email, Password: password}
	if err := utils.ValidateStruct(req); err != nil {
		return models.Session{}, err
	}

	sess, err := c.authenticate(ctx, registerPath, req)
	if err != nil {
		return models.Session{}, err
	}

	c.record(ctx, models.NewAuditEvent(models.AuditActionSignUp).
		WithUser("", email).
		WithDetails(map[string]interface{}{"signed_in": sess.Authenticated()}))
	return sess, nil
}

// SignOut clears the session. Signing out of an empty session is not an error.
func (c *Client) SignOut(ctx context.Context) error {
	profile := c.store.CurrentUser(ctx)
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	c.record(ctx, models.NewAuditEvent(models.AuditActionSignOut).WithProfile(profile))
	return nil
}

// authenticate posts credentials to path and stores the session it yields
func (c *Client) authenticate(ctx context.Context, path string, payload interface{}) (models.Session, error) {
	epoch, err := c.store.Begin(ctx)
	if err != nil {
		return models.Session{}, services.WrapInternal("session store unavailable", err)
	}

	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &resp, ""); err != nil {
		var httpErr *services.HTTPError
		if errors.As(err, &httpErr) {
			return models.Session{}, services.NewAuthError(httpErr.Status, []byte(httpErr.RawBody))
		}
		return models.Session{}, err
	}

	if resp.Token == "" {
		if path == registerPath {
			return models.Session{}, nil
		}
		return models.Session{}, &services.AuthError{
			Reason:  services.AuthServerError,
			Status:  http.StatusOK,
			Message: "The server did not return a credential",
		}
	}

	// store the token alone first so calls made meanwhile are authorized
	if err := c.saveIfCurrent(ctx, epoch, resp.Token, nil); err != nil {
		return models.Session{}, err
	}

	var profile *models.UserProfile
	if resp.UserID != "" {
		profile = c.resolveProfile(ctx, resp.Token, resp.UserID)
	}
	if err := c.saveIfCurrent(ctx, epoch, resp.Token, profile); err != nil {
		// the token-only write above must not outlive the attempt that made it
		c.discardCredential(ctx, resp.Token)
		return models.Session{}, err
	}

	return models.Session{Credential: resp.Token, Profile: profile}, nil
}

func (c *Client) discardCredential(ctx context.Context, token models.Credential) {
	removed, err := c.store.DiscardCredential(ctx, token)
	if err != nil {
		c.logger.Warn("failed to discard superseded credential", zap.Error(err))
		return
	}
	if removed {
		c.logger.Debug("discarded credential of superseded sign-in")
	}
}

func (c *Client) saveIfCurrent(ctx context.Context, epoch session.Epoch, token models.Credential, profile *models.UserProfile) error {
	applied, err := c.store.SaveIfCurrent(ctx, epoch, token, profile)
	if err != nil {
		return services.WrapInternal("failed to store session", err)
	}
	if !applied {
		return services.ErrStaleSession
	}
	return nil
}

// resolveProfile looks the user up and falls back to a profile with the id only
func (c *Client) resolveProfile(ctx context.Context, token models.Credential, id models.UserID) *models.UserProfile {
	profile, err := c.Lookup(ctx, token, id)
	if err != nil {
		c.logger.Warn("profile lookup failed, using minimal profile",
			zap.String("user_id", id.String()),
			zap.Error(err),
		)
		return models.MinimalProfile(id)
	}
	return profile
}

func signInOutcome(err error) string {
	var authErr *services.AuthError
	switch {
	case errors.As(err, &authErr):
		if authErr.Reason == services.AuthInvalidCredentials {
			return observability.OutcomeInvalidCredentials
		}
		return observability.OutcomeServerError
	case services.IsNetworkError(err):
		return observability.OutcomeNetworkError
	case services.IsStaleSessionError(err):
		return observability.OutcomeStale
	default:
		return observability.OutcomeServerError
	}
}
