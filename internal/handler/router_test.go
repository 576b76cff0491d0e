package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/milk-back/backend/docs"
	"github.com/milk-back/backend/internal/config"
	"github.com/milk-back/backend/internal/db"
	"github.com/milk-back/backend/internal/logger"
	"github.com/milk-back/backend/internal/metrics"
	"github.com/milk-back/backend/internal/model"
	"github.com/milk-back/backend/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu    sync.Mutex
	users []*model.User
}

func (m *memUsers) find(match func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memUsers) update(username string, mutate func(*model.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			mutate(u)
		}
	}
}

func (m *memUsers) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	cp.ID = int64(len(m.users) + 1)
	m.users = append(m.users, &cp)
	out := cp
	return &out, nil
}

type testServer struct {
	router      *gin.Engine
	redis       *miniredis.Miniredis
	codec       *service.TokenCodec
	sessions    *service.SessionManager
	interceptor *service.AuthInterceptor
	registry    *prometheus.Registry
	users       *memUsers
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	codec, err := service.NewTokenCodec(config.AuthConfig{
		AccessSecret:  "handler-access-secret",
		RefreshSecret: "handler-refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)

	log := logger.Discard()
	users := &memUsers{}
	sessions := service.NewSessionManager(db.NewRedisSessionStore(client), "session:", service.CookieConfig{Path: "/"})
	registry := prometheus.NewRegistry()
	interceptor := service.NewAuthInterceptor(codec, sessions, service.CookieConfig{Path: "/"}, log,
		service.WithUserRepository(users),
		service.WithStoreTimeout(time.Second),
		service.WithObserver(metrics.NewAuth(registry)),
	)
	authService := service.NewAuthService(users, codec, sessions, log)

	router := NewRouter(RouterConfig{
		APIPrefix:   "/api/v1",
		Log:         log,
		Gatherer:    registry,
		Interceptor: interceptor,
		Auth:        NewAuthHandler(authService, sessions, interceptor),
	})

	return &testServer{
		router:      router,
		redis:       mr,
		codec:       codec,
		sessions:    sessions,
		interceptor: interceptor,
		registry:    registry,
		users:       users,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// signIn registers and signs in a user and returns its cookies.
func (s *testServer) signIn(t *testing.T) []*http.Cookie {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/signUp", `{"username":"milk","email":"milk@example.com","password":"password123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/auth/signIn", `{"username":"milk","password":"password123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 3)
	return cookies
}

func responseCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func replaceCookie(cookies []*http.Cookie, name, value string) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cp := *c
		if cp.Name == name {
			cp.Value = value
		}
		out = append(out, &cp)
	}
	return out
}

func TestSignInThenMe(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)

	w := s.do(t, http.MethodGet, "/api/v1/auth/me", "", cookies)
	require.Equal(t, http.StatusOK, w.Code)

	var me model.AuthMeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	require.Equal(t, "milk", me.Username)
	require.Equal(t, int(model.RoleUser), me.RoleID)
	require.Empty(t, w.Result().Cookies())
}

func TestSignInTwiceRejected(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/signIn", `{"username":"milk","password":"password123"}`, cookies)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignInWrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/signIn", `{"username":"milk","password":"wrong-password"}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvalidAccessTokenRefreshesTransparently(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)
	old := map[string]*http.Cookie{}
	for _, c := range cookies {
		old[c.Name] = c
	}

	tampered := replaceCookie(cookies, service.AccessCookieName, "tampered."+old[service.AccessCookieName].Value)
	w := s.do(t, http.MethodGet, "/api/v1/auth/me", "", tampered)
	require.Equal(t, http.StatusOK, w.Code)

	fresh := responseCookies(w)
	require.Contains(t, fresh, service.AccessCookieName)
	require.Contains(t, fresh, service.RefreshCookieName)
	require.Contains(t, fresh, service.SessionCookieName)
	require.NotEqual(t, old[service.RefreshCookieName].Value, fresh[service.RefreshCookieName].Value)
	require.Equal(t, old[service.SessionCookieName].Value, fresh[service.SessionCookieName].Value)

	stored, err := s.redis.Get("session:" + old[service.SessionCookieName].Value)
	require.NoError(t, err)
	require.Equal(t, fresh[service.RefreshCookieName].Value, stored)

	// the previous refresh token is no longer bound
	w = s.do(t, http.MethodGet, "/api/v1/auth/me", "", tampered)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, w.Result().Cookies())
}

func TestExpiredAccessCookieRefreshesTransparently(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)

	var kept []*http.Cookie
	var oldRefresh string
	for _, c := range cookies {
		switch c.Name {
		case service.AccessCookieName:
			continue
		case service.RefreshCookieName:
			oldRefresh = c.Value
		}
		kept = append(kept, c)
	}
	require.Len(t, kept, 2)

	w := s.do(t, http.MethodGet, "/api/v1/auth/me", "", kept)
	require.Equal(t, http.StatusOK, w.Code)

	fresh := responseCookies(w)
	require.Contains(t, fresh, service.AccessCookieName)
	require.NotEqual(t, oldRefresh, fresh[service.RefreshCookieName].Value)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", "", w.Result().Cookies())
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Result().Cookies())
}

func TestRefreshTokensEndpoint(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)
	s.users.update("milk", func(u *model.User) { u.RoleID = model.RoleModerator })

	w := s.do(t, http.MethodPost, "/api/v1/auth/refresh_tokens", "", cookies)
	require.Equal(t, http.StatusOK, w.Code)
	fresh := responseCookies(w)
	require.Len(t, fresh, 3)

	var body model.SignInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, int(model.RoleModerator), body.User.RoleID)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", "", w.Result().Cookies())
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshTokensEndpointBlockedAccount(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)
	s.users.update("milk", func(u *model.User) { u.StateID = model.StateBlocked })

	w := s.do(t, http.MethodPost, "/api/v1/auth/refresh_tokens", "", cookies)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, w.Result().Cookies())
}

func TestLogoutClearsEverything(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)

	var sid string
	for _, c := range cookies {
		if c.Name == service.SessionCookieName {
			sid = c.Value
		}
	}
	require.True(t, s.redis.Exists("session:"+sid))

	// expired access token: the pending pair must not survive logout
	tampered := replaceCookie(cookies, service.AccessCookieName, "expired")
	w := s.do(t, http.MethodPost, "/api/v1/auth/logout", "", tampered)
	require.Equal(t, http.StatusOK, w.Code)

	cleared := responseCookies(w)
	require.Len(t, cleared, 3)
	for _, c := range cleared {
		require.Empty(t, c.Value, c.Name)
		require.Equal(t, -1, c.MaxAge, c.Name)
	}
	require.False(t, s.redis.Exists("session:"+sid))

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", "", cookies)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStoreOutageIsServiceUnavailable(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)

	s.redis.SetError("ERR server unavailable")
	w := s.do(t, http.MethodGet, "/api/v1/auth/me", "", cookies)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/test", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"resp":false}`, w.Body.String())

	s.redis.SetError("")
	w = s.do(t, http.MethodGet, "/api/v1/auth/me", "", cookies)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSignUpConflictAndValidation(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/signUp", `{"username":"milk","email":"other@example.com","password":"password123"}`, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/signUp", `{"username":"x","email":"x@example.com","password":"password123"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/signUp", `not json`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	for _, body := range []string{
		`{"username":"cream","email":"not-an-email","password":"password123"}`,
		`{"username":"cream","password":"password123"}`,
		`{"email":"cream@example.com","password":"password123"}`,
	} {
		w = s.do(t, http.MethodPost, "/api/v1/auth/signUp", body, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w = s.do(t, http.MethodPost, "/api/v1/auth/signIn", `{"username":"milk"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	cookies := s.signIn(t)
	s.do(t, http.MethodGet, "/api/v1/auth/me", "", cookies)

	w := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `milk_auth_verdicts_total{verdict="authenticated"}`)
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/ping", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOpenAPIDoc(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		BasePath string         `json:"basePath"`
		Paths    map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Equal(t, "/api/v1", doc.BasePath)
	require.Contains(t, doc.Paths, "/auth/signIn")
	require.Contains(t, doc.Paths, "/auth/refresh_tokens")
}

func TestOpenAPIDocFollowsPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Cleanup(func() { docs.SwaggerInfo.BasePath = "/api/v1" })

	router := NewRouter(RouterConfig{
		APIPrefix: "/v2",
		Log:       logger.Discard(),
		Auth:      &AuthHandler{},
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		BasePath string `json:"basePath"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Equal(t, "/v2", doc.BasePath)
}
