package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/config"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/database"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/user"
)

const testPostLoginURL = "http://localhost:5173/dashboard"

type stubLimiter struct {
	allowed bool
	err     error
	calls   []string
}

func (l *stubLimiter) Allow(_ context.Context, key, purpose string) (bool, error) {
	l.calls = append(l.calls, purpose+":"+key)
	return l.allowed, l.err
}

type testEnv struct {
	idp     *fakeIDP
	db      *bun.DB
	users   *user.Directory
	tokens  TokenService
	clock   *testClock
	limiter *stubLimiter
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateSchema(ctx, db))

	env := &testEnv{
		idp:     newFakeIDP(t),
		db:      db,
		users:   user.NewDirectory(user.NewRepository(db)),
		clock:   &testClock{now: time.Now().UTC()},
		limiter: &stubLimiter{allowed: true},
	}

	env.tokens, err = NewTokenService(config.TokenAlgorithmPaseto, testSecret, 7*24*time.Hour, WithClock(env.clock.Now))
	require.NoError(t, err)

	service := NewService(env.idp.newProvider(t), env.users, env.tokens, nil)
	handler := NewHandler(service, env.limiter, nil, HandlerConfig{
		PostLoginURL:  testPostLoginURL,
		TokenLifetime: 7 * 24 * time.Hour,
	})
	mw := NewMiddleware(service)

	r := chi.NewRouter()
	r.Get("/auth/login", handler.Login)
	r.Get("/auth/callback", handler.Callback)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth)
		r.Post("/auth/logout", handler.Logout)
		r.Get("/auth/profile", handler.Profile)
	})
	env.router = r

	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) userCount(t *testing.T) int {
	t.Helper()
	n, err := e.db.NewSelect().Model((*database.User)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", SessionCookieName)
	return nil
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[LoginResponse](t, rec)
	u, err := url.Parse(body.LoginURL)
	require.NoError(t, err)
	assert.Equal(t, testClientID, u.Query().Get("client_id"))
	assert.Equal(t, testRedirectURI, u.Query().Get("redirect_uri"))
	assert.Equal(t, []string{"login:192.0.2.1"}, env.limiter.calls)
}

func TestHandler_CallbackSetsCookieAndRedirects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=valid-code", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testPostLoginURL, rec.Header().Get("Location"))

	cookie := sessionCookie(t, rec)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 604800, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
	assert.False(t, cookie.Secure)

	assert.Equal(t, 1, env.userCount(t))
	created, err := env.users.FindByExternalID(context.Background(), "g-123")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", created.Email)

	// Repeat login resolves to the same user.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=another-code", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, 1, env.userCount(t))
}

func TestHandler_CallbackFailures(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		setup      func(env *testEnv)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing code",
			target:     "/auth/callback",
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_AUTHORIZATION_CODE",
		},
		{
			name:   "expired code",
			target: "/auth/callback?code=expired-code",
			setup: func(env *testEnv) {
				env.idp.setToken(http.StatusBadRequest, `{"error":"invalid_grant"}`)
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UPSTREAM_AUTH_FAILED",
		},
		{
			name:       "provider error parameter",
			target:     "/auth/callback?error=access_denied",
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UPSTREAM_AUTH_FAILED",
		},
		{
			name:   "provider down",
			target: "/auth/callback?code=valid-code",
			setup: func(env *testEnv) {
				env.idp.setToken(http.StatusBadGateway, `{"error":"server_error"}`)
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_UNAVAILABLE",
		},
		{
			name:   "profile rejected",
			target: "/auth/callback?code=valid-code",
			setup: func(env *testEnv) {
				env.idp.setUserinfo(http.StatusForbidden, `{}`)
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UPSTREAM_AUTH_FAILED",
		},
		{
			name:   "rate limited",
			target: "/auth/callback?code=valid-code",
			setup: func(env *testEnv) {
				env.limiter.allowed = false
			},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "RATE_LIMITED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}

			rec := env.do(httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, rec.Result().Cookies())

			body := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotContains(t, body.Error, testClientSecret)

			assert.Equal(t, 0, env.userCount(t))
		})
	}
}

func TestHandler_CallbackIdentityConflict(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.users.GetOrCreate(context.Background(), "g-other", "a@b.com")
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=valid-code", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, env.userCount(t))
}

func TestHandler_RateLimiterFaultFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.limiter.err = assert.AnError

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Profile(t *testing.T) {
	env := newTestEnv(t)

	login := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=valid-code", nil))
	require.Equal(t, http.StatusFound, login.Code)
	cookie := sessionCookie(t, login)

	t.Run("no cookie", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "not authenticated", decodeBody[ErrorResponse](t, rec).Error)
	})

	t.Run("valid cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[ProfileResponse](t, rec)
		assert.Equal(t, "a@b.com", body.Email)
		assert.True(t, body.IsActive)
		assert.Equal(t, "google", body.Metadata.Provider)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
		req.Header.Set("Authorization", "Bearer "+cookie.Value)
		rec := env.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
		req.Header.Set("Authorization", "Token "+cookie.Value)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
		rec := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tamper(cookie.Value)})
		rec := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "not authenticated", decodeBody[ErrorResponse](t, rec).Error)
	})
}

func TestHandler_ProfileExpiredCookie(t *testing.T) {
	env := newTestEnv(t)

	login := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=valid-code", nil))
	require.Equal(t, http.StatusFound, login.Code)
	cookie := sessionCookie(t, login)

	env.clock.now = env.clock.now.Add(7*24*time.Hour + time.Second)

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not authenticated", decodeBody[ErrorResponse](t, rec).Error)
}

func TestHandler_ProfileInactiveUser(t *testing.T) {
	env := newTestEnv(t)

	login := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=valid-code", nil))
	require.Equal(t, http.StatusFound, login.Code)
	cookie := sessionCookie(t, login)

	u, err := env.users.FindByExternalID(context.Background(), "g-123")
	require.NoError(t, err)
	require.NoError(t, env.users.SetActive(context.Background(), u.ID, false))

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	rec := env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A deactivated account cannot start a new session either.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=valid-code", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestHandler_Logout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	login := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=valid-code", nil))
	require.Equal(t, http.StatusFound, login.Code)
	cookie := sessionCookie(t, login)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Successfully logged out", decodeBody[MessageResponse](t, rec).Message)

	cleared := sessionCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}
