package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/middleware"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services/authclient"
	"github.com/upb/admin-portal/services/ratelimit"
	"github.com/upb/admin-portal/session"
	"github.com/upb/admin-portal/utils"
)

// portalAPI mimics the REST API the portal talks to
func portalAPI(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] != "a@x.com" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Bad credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"token":"t1","userId":7}`)
	})
	mux.HandleFunc("/api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"userId":9}`)
	})
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":7,"fullName":"Ana","email":"a@x.com","roles":["ROLE_ADMIN"]}]`)
	})
	return mux
}

type fixture struct {
	hits   *atomic.Int32
	client *authclient.Client
	guard  *middleware.RouteGuard
	store  *session.Store
}

func newFixture(t *testing.T, api http.Handler) *fixture {
	t.Helper()
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		api.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	store := session.NewStore(session.NewMemoryMedium(0), "test", zap.NewNop()).Scope("browser-1")
	guard, err := middleware.NewRouteGuard(middleware.GuardConfig{
		LoginPath:    "/login",
		FallbackPath: "/unauthorized",
		HomePath:     "/dashboard",
	}, zap.NewNop())
	require.NoError(t, err)

	return &fixture{
		hits:   hits,
		client: authclient.NewClient(srv.URL, store, zap.NewNop()),
		guard:  guard,
		store:  store,
	}
}

// request builds a request carrying the fixture's session store
func (f *fixture) request(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithSessionStore(req.Context(), f.store))
}

func (f *fixture) signIn(t *testing.T, roles ...models.Role) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), "t1", &models.UserProfile{
		ID:    "7",
		Email: "a@x.com",
		Roles: models.NewRoleSet(roles...),
	}))
}

// decodeData unwraps a SuccessResponse body into out
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		body         string
		wantRedirect string
	}{
		{"return path from body", "/auth/login", `{"email":"a@x.com","password":"secret","from":"/settings/roles"}`, "/settings/roles"},
		{"return path from query", "/auth/login?from=%2Fproducts", `{"email":"a@x.com","password":"secret"}`, "/products"},
		{"open redirect refused", "/auth/login", `{"email":"a@x.com","password":"secret","from":"//evil.com"}`, "/dashboard"},
		{"login path refused", "/auth/login", `{"email":"a@x.com","password":"secret","from":"/login"}`, "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, portalAPI(t))
			h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

			rec := httptest.NewRecorder()
			h.HandleLogin(rec, f.request(http.MethodPost, tt.target, tt.body))

			require.Equal(t, http.StatusOK, rec.Code)
			var resp SessionResponse
			decodeData(t, rec, &resp)
			assert.True(t, resp.Authenticated)
			assert.False(t, resp.Degraded)
			assert.Equal(t, tt.wantRedirect, resp.Redirect)
			require.NotNil(t, resp.User)
			assert.Equal(t, models.UserID("7"), resp.User.ID)
			assert.Equal(t, "Ana", resp.User.Name)
			assert.Contains(t, resp.Capabilities, authz.ManageUsers)

			assert.True(t, f.store.IsAuthenticated(context.Background()))
		})
	}
}

func TestAuthHandler_LoginRejected(t *testing.T) {
	f := newFixture(t, portalAPI(t))
	h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleLogin(rec, f.request(http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"wrong"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "Bad credentials", resp.Message)
	assert.Equal(t, "invalid_credentials", resp.Details["reason"])
	assert.False(t, f.store.IsAuthenticated(context.Background()))
}

func TestAuthHandler_LoginThrottled(t *testing.T) {
	login := func(h *AuthHandler, f *fixture, password string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.HandleLogin(rec, f.request(http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"`+password+`"}`))
		return rec
	}

	t.Run("blocks after repeated failures", func(t *testing.T) {
		f := newFixture(t, portalAPI(t))
		limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), "test", ratelimit.Limits{PerHour: 2}, zap.NewNop())
		h := NewAuthHandler(f.client, f.guard, limiter, zap.NewNop())

		assert.Equal(t, http.StatusUnauthorized, login(h, f, "wrong").Code)
		assert.Equal(t, http.StatusUnauthorized, login(h, f, "wrong").Code)
		before := f.hits.Load()

		rec := login(h, f, "secret")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		resp := decodeError(t, rec)
		assert.Equal(t, "too_many_requests", resp.Error)
		assert.Contains(t, resp.Details, "retry_after")
		assert.Equal(t, before, f.hits.Load())
		assert.False(t, f.store.IsAuthenticated(context.Background()))
	})

	t.Run("success clears failures", func(t *testing.T) {
		f := newFixture(t, portalAPI(t))
		limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), "test", ratelimit.Limits{PerHour: 2}, zap.NewNop())
		h := NewAuthHandler(f.client, f.guard, limiter, zap.NewNop())

		assert.Equal(t, http.StatusUnauthorized, login(h, f, "wrong").Code)
		assert.Equal(t, http.StatusOK, login(h, f, "secret").Code)
		assert.Equal(t, http.StatusUnauthorized, login(h, f, "wrong").Code)
		assert.Equal(t, http.StatusUnauthorized, login(h, f, "wrong").Code)
	})
}

func TestAuthHandler_LoginBadBody(t *testing.T) {
	f := newFixture(t, portalAPI(t))
	h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleLogin(rec, f.request(http.MethodPost, "/auth/login", `{"email":"a@x.com","pass":"secret"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeError(t, rec).Message)
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestAuthHandler_MissingStore(t *testing.T) {
	f := newFixture(t, portalAPI(t))
	h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	h.HandleSession(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Session unavailable", decodeError(t, rec).Message)
}

func TestAuthHandler_Register(t *testing.T) {
	t.Run("short password sends no request", func(t *testing.T) {
		f := newFixture(t, portalAPI(t))
		h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleRegister(rec, f.request(http.MethodPost, "/auth/register", `{"name":"Bo","email":"bo@x.com","password":"123"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "password must be at least 6 characters", resp.Message)
		assert.Equal(t, int32(0), f.hits.Load())
	})

	t.Run("without credential sends the user to login", func(t *testing.T) {
		f := newFixture(t, portalAPI(t))
		h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleRegister(rec, f.request(http.MethodPost, "/auth/register", `{"name":"Bo","email":"bo@x.com","password":"secret1"}`))

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp SessionResponse
		decodeData(t, rec, &resp)
		assert.False(t, resp.Authenticated)
		assert.Equal(t, "/login", resp.Redirect)
		assert.Empty(t, resp.Capabilities)
		assert.False(t, f.store.IsAuthenticated(context.Background()))
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	f := newFixture(t, portalAPI(t))
	f.signIn(t, models.RoleAdmin)
	h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleLogout(rec, f.request(http.MethodPost, "/auth/logout", ""))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.store.IsAuthenticated(context.Background()))

	// signing out twice is harmless
	rec = httptest.NewRecorder()
	h.HandleLogout(rec, f.request(http.MethodPost, "/auth/logout", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func signedToken(t *testing.T, exp time.Time) models.Credential {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return models.Credential(token)
}

func TestAuthHandler_Session(t *testing.T) {
	ctx := context.Background()

	t.Run("signed in", func(t *testing.T) {
		f := newFixture(t, portalAPI(t))
		f.signIn(t, models.RoleManager)
		h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleSession(rec, f.request(http.MethodGet, "/api/session", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp SessionResponse
		decodeData(t, rec, &resp)
		assert.True(t, resp.Authenticated)
		assert.Contains(t, resp.Capabilities, authz.ManageProducts)
		assert.NotContains(t, resp.Capabilities, authz.ManageUsers)
	})

	t.Run("signed out", func(t *testing.T) {
		f := newFixture(t, portalAPI(t))
		h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleSession(rec, f.request(http.MethodGet, "/api/session", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp SessionResponse
		decodeData(t, rec, &resp)
		assert.False(t, resp.Authenticated)
		assert.Nil(t, resp.User)
		assert.Empty(t, resp.Capabilities)
	})

	t.Run("degraded", func(t *testing.T) {
		f := newFixture(t, portalAPI(t))
		require.NoError(t, f.store.Save(ctx, "t1", nil))
		h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleSession(rec, f.request(http.MethodGet, "/api/session", ""))

		var resp SessionResponse
		decodeData(t, rec, &resp)
		assert.True(t, resp.Authenticated)
		assert.True(t, resp.Degraded)
		assert.Empty(t, resp.Capabilities)
	})

	t.Run("expired credential is dropped", func(t *testing.T) {
		f := newFixture(t, portalAPI(t))
		require.NoError(t, f.store.Save(ctx, signedToken(t, time.Now().Add(-time.Minute)), models.MinimalProfile("7")))
		h := NewAuthHandler(f.client, f.guard, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleSession(rec, f.request(http.MethodGet, "/api/session", ""))

		var resp SessionResponse
		decodeData(t, rec, &resp)
		assert.False(t, resp.Authenticated)
		assert.False(t, f.store.IsAuthenticated(ctx))
	})
}

// newClientFor points a client at baseURL while sharing the fixture's store
func newClientFor(baseURL string, f *fixture) *authclient.Client {
	return authclient.NewClient(baseURL, f.store, zap.NewNop())
}
