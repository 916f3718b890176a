package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/internal/observability"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services"
	"github.com/upb/admin-portal/utils"
)

// apiStub mimics the login and user listing endpoints
func apiStub(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] != "a@x.com" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Bad credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"token":"t1","userId":7}`)
	})
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `[{"id":3,"email":"b@x.com","roles":["ROLE_USER"]},{"id":7,"email":"a@x.com","roles":["ROLE_ADMIN"]}]`)
	})
	return mux
}

func TestSignIn_RoundTrip(t *testing.T) {
	events := &eventLog{}
	client, _ := newTestClient(t, apiStub(t), WithAuditRecorder(events))
	ctx := context.Background()

	sess, err := client.SignIn(ctx, "a@x.com", "secret")
	require.NoError(t, err)

	want := &models.UserProfile{ID: "7", Email: "a@x.com", Roles: models.NewRoleSet(models.RoleAdmin)}
	assert.Equal(t, models.Credential("t1"), sess.Credential)
	assert.Equal(t, want, sess.Profile)

	store := client.Store()
	assert.True(t, store.IsAuthenticated(ctx))
	assert.Equal(t, want, store.CurrentUser(ctx))
	assert.Equal(t, "a@x.com", store.CurrentUser(ctx).Email)
	assert.True(t, authz.CanManageUsers(store.Current(ctx)))

	assert.Equal(t, []models.AuditAction{models.AuditActionSignInSucceeded}, events.actions())
}

func TestSignIn_ProfileLookupNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(apiStub(t))
	t.Cleanup(srv.Close)

	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/api/v1/users" {
			return nil, errors.New("connection reset")
		}
		return http.DefaultTransport.RoundTrip(r)
	})}
	client := NewClient(srv.URL, newStore(), zap.NewNop(), WithHTTPClient(hc))
	ctx := context.Background()

	sess, err := client.SignIn(ctx, "a@x.com", "secret")
	require.NoError(t, err)

	store := client.Store()
	assert.True(t, store.IsAuthenticated(ctx))
	assert.Equal(t, models.MinimalProfile("7"), sess.Profile)
	assert.Equal(t, models.MinimalProfile("7"), store.CurrentUser(ctx))

	current := store.Current(ctx)
	for _, c := range authz.AllCapabilities() {
		assert.False(t, authz.Can(current, c), "capability %s", c)
	}
}

func TestSignIn_ProfileMissingFromList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token":"t1","userId":"42"}`)
	})
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content":[{"id":1}]}`)
	})
	client, _ := newTestClient(t, mux)

	sess, err := client.SignIn(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, models.MinimalProfile("42"), sess.Profile)
}

func TestSignIn_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantReason services.AuthReason
		wantMsg    string
	}{
		{"bad credentials", http.StatusUnauthorized, `{"message":"Bad credentials"}`, services.AuthInvalidCredentials, "Bad credentials"},
		{"not found", http.StatusNotFound, ``, services.AuthInvalidCredentials, "Invalid email or password"},
		{"server error", http.StatusInternalServerError, `database is down`, services.AuthServerError, "database is down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &eventLog{}
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}), WithAuditRecorder(events))
			ctx := context.Background()

			_, err := client.SignIn(ctx, "a@x.com", "secret")

			var authErr *services.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantReason, authErr.Reason)
			assert.Equal(t, tt.wantMsg, authErr.Message)
			assert.False(t, client.Store().IsAuthenticated(ctx))
			assert.Equal(t, []models.AuditAction{models.AuditActionSignInFailed}, events.actions())
		})
	}
}

func TestSignIn_NetworkError(t *testing.T) {
	hc := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("no route to host")
	})}
	client := NewClient("http://api.invalid", newStore(), zap.NewNop(), WithHTTPClient(hc))

	_, err := client.SignIn(context.Background(), "a@x.com", "secret")
	assert.True(t, services.IsNetworkError(err))
	assert.False(t, client.Store().IsAuthenticated(context.Background()))
}

func TestSignIn_MissingToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"userId":7}`)
	}))

	_, err := client.SignIn(context.Background(), "a@x.com", "secret")
	var authErr *services.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, services.AuthServerError, authErr.Reason)
}

func TestSignIn_ValidationFailsBeforeRequest(t *testing.T) {
	client, hits := newTestClient(t, apiStub(t))

	_, err := client.SignIn(context.Background(), "not-an-email", "secret")
	require.True(t, utils.IsValidationError(err))
	assert.Equal(t, "email must be a valid email", utils.GetValidationFields(err)["email"])

	_, err = client.SignIn(context.Background(), "a@x.com", "")
	require.True(t, utils.IsValidationError(err))
	assert.Equal(t, int32(0), hits.Load())
}

func TestSignIn_StaleCompletionIsDiscarded(t *testing.T) {
	t.Run("sign-out while in flight", func(t *testing.T) {
		var client *Client
		client, _ = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, client.SignOut(r.Context()))
			_, _ = io.WriteString(w, `{"token":"t1","userId":7}`)
		}))

		_, err := client.SignIn(context.Background(), "a@x.com", "secret")
		assert.ErrorIs(t, err, services.ErrStaleSession)
		assert.False(t, client.Store().IsAuthenticated(context.Background()))
	})

	t.Run("newer attempt wins", func(t *testing.T) {
		var client *Client
		client, _ = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.Background()
			epoch, err := client.Store().Begin(ctx)
			assert.NoError(t, err)
			_, err = client.Store().SaveIfCurrent(ctx, epoch, "newer", nil)
			assert.NoError(t, err)
			_, _ = io.WriteString(w, `{"token":"older","userId":7}`)
		}))

		_, err := client.SignIn(context.Background(), "a@x.com", "secret")
		assert.True(t, services.IsStaleSessionError(err))

		cred, ok := client.Store().CurrentCredential(context.Background())
		assert.True(t, ok)
		assert.Equal(t, models.Credential("newer"), cred)
	})
}

func TestSignIn_SupersededDuringLookup(t *testing.T) {
	// the first attempt stores tA alone, then a second attempt starts while tA's
	// profile is being looked up
	supersedingAPI := func(t *testing.T, client **Client, secondPassword string) http.Handler {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			switch body["password"] {
			case "secret":
				_, _ = io.WriteString(w, `{"token":"tA","userId":7}`)
			case "other":
				_, _ = io.WriteString(w, `{"token":"tB","userId":7}`)
			default:
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"message":"Bad credentials"}`)
			}
		})
		mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "Bearer tA" {
				_, _ = (*client).SignIn(context.Background(), "a@x.com", secondPassword)
			}
			_, _ = io.WriteString(w, `[{"id":7,"fullName":"Ana","email":"a@x.com","roles":["ROLE_ADMIN"]}]`)
		})
		return mux
	}

	t.Run("failed newer attempt leaves no session", func(t *testing.T) {
		var client *Client
		client, _ = newTestClient(t, supersedingAPI(t, &client, "wrong"))
		ctx := context.Background()

		_, err := client.SignIn(ctx, "a@x.com", "secret")
		assert.ErrorIs(t, err, services.ErrStaleSession)

		s := client.Store().Current(ctx)
		assert.False(t, s.Authenticated())
		assert.False(t, s.Degraded())
	})

	t.Run("successful newer attempt is kept", func(t *testing.T) {
		var client *Client
		client, _ = newTestClient(t, supersedingAPI(t, &client, "other"))
		ctx := context.Background()

		_, err := client.SignIn(ctx, "a@x.com", "secret")
		assert.ErrorIs(t, err, services.ErrStaleSession)

		s := client.Store().Current(ctx)
		assert.Equal(t, models.Credential("tB"), s.Credential)
		require.NotNil(t, s.Profile)
		assert.Equal(t, "a@x.com", s.Profile.Email)
	})
}

func TestSignIn_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	client, _ := newTestClient(t, apiStub(t), WithMetrics(m))
	ctx := context.Background()

	_, err = client.SignIn(ctx, "a@x.com", "secret")
	require.NoError(t, err)
	_, err = client.SignIn(ctx, "a@x.com", "wrong")
	require.Error(t, err)

	assert.Equal(t, float64(1), signInCount(t, reg, observability.OutcomeSuccess))
	assert.Equal(t, float64(1), signInCount(t, reg, observability.OutcomeInvalidCredentials))
}

func signInCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "portal_signin_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSignUp_ShortPasswordSendsNoRequest(t *testing.T) {
	client, hits := newTestClient(t, apiStub(t))

	_, err := client.SignUp(context.Background(), "Ana", "a@x.com", "12345")

	require.True(t, utils.IsValidationError(err))
	assert.Equal(t, "password must be at least 6 characters", err.Error())
	assert.Equal(t, int32(0), hits.Load())
}

func TestSignUp(t *testing.T) {
	t.Run("with token signs in", func(t *testing.T) {
		mux := apiStub(t)
		mux.HandleFunc("/api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Ana", body["name"])
			_, _ = io.WriteString(w, `{"token":"t1","userId":7}`)
		})
		events := &eventLog{}
		client, _ := newTestClient(t, mux, WithAuditRecorder(events))

		sess, err := client.SignUp(context.Background(), "Ana", "a@x.com", "secret")
		require.NoError(t, err)
		assert.True(t, sess.Authenticated())
		assert.Equal(t, "a@x.com", client.Store().CurrentUser(context.Background()).Email)
		assert.Equal(t, []models.AuditAction{models.AuditActionSignUp}, events.actions())
	})

	t.Run("without token leaves the store alone", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"userId":8}`)
		}))
		ctx := context.Background()
		require.NoError(t, client.Store().Save(ctx, "existing", nil))

		sess, err := client.SignUp(ctx, "Ana", "new@x.com", "secret")
		require.NoError(t, err)
		assert.False(t, sess.Authenticated())

		cred, _ := client.Store().CurrentCredential(ctx)
		assert.Equal(t, models.Credential("existing"), cred)
	})

	t.Run("rejected", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"Email already registered"}`)
		}))

		_, err := client.SignUp(context.Background(), "Ana", "a@x.com", "secret")
		var authErr *services.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "Email already registered", authErr.Message)
	})
}

func TestSignOut(t *testing.T) {
	events := &eventLog{}
	client, _ := newTestClient(t, apiStub(t), WithAuditRecorder(events))
	ctx := context.Background()

	require.NoError(t, client.SignOut(ctx))
	assert.False(t, client.Store().IsAuthenticated(ctx))

	_, err := client.SignIn(ctx, "a@x.com", "secret")
	require.NoError(t, err)
	require.NoError(t, client.SignOut(ctx))
	assert.False(t, client.Store().IsAuthenticated(ctx))
	assert.Nil(t, client.Store().CurrentUser(ctx))

	actions := events.actions()
	require.Len(t, actions, 3)
	assert.Equal(t, models.AuditActionSignOut, actions[2])
	assert.Equal(t, "7", events.events[2].UserID)
}
