package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokengate/internal/auth/service"
	"tokengate/internal/security"
	"tokengate/internal/server/middleware"
	sessionrepo "tokengate/internal/session/repository"
	"tokengate/internal/user/domain"
	userrepo "tokengate/internal/user/repository"
	"tokengate/internal/validation"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]*domain.User
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, userrepo.ErrNotFound
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (r *memUsers) GetByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email || u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (r *memUsers) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *u
	r.byID[u.ID] = &c
	return nil
}

func (r *memUsers) UpdateLastLogin(ctx context.Context, id string) error { return nil }

func (r *memUsers) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.IsActive = false
		return nil
	}
	return userrepo.ErrNotFound
}

type memSessions struct {
	mu sync.Mutex
	m  map[string]map[string]time.Time
}

func newMemSessions() *memSessions { return &memSessions{m: map[string]map[string]time.Time{}} }

func (s *memSessions) Add(ctx context.Context, userID, token string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m[userID] == nil {
		s.m[userID] = map[string]time.Time{}
	}
	s.m[userID][token] = issuedAt
	return nil
}

func (s *memSessions) Remove(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m[userID], token)
	return nil
}

func (s *memSessions) RemoveAll(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
	return nil
}

func (s *memSessions) Contains(ctx context.Context, userID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[userID][token]
	return ok, nil
}

func (s *memSessions) Replace(ctx context.Context, userID, oldToken, newToken string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[userID][oldToken]; !ok {
		return sessionrepo.ErrTokenNotFound
	}
	delete(s.m[userID], oldToken)
	s.m[userID][newToken] = issuedAt
	return nil
}

func (s *memSessions) PruneBefore(ctx context.Context, userID string, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, at := range s.m[userID] {
		if at.Before(cutoff) {
			delete(s.m[userID], tok)
		}
	}
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &memUsers{byID: map[string]*domain.User{}}
	sessions := newMemSessions()
	tokens := security.NewTokenProvider([]byte("access"), []byte("refresh"), 15*time.Minute, 168*time.Hour)
	auth := service.NewAuthService(users, sessions, security.NewHasher(4), tokens, 168*time.Hour, nil, nil)
	h := New(auth, validation.New(), NewCookieWriter(false, 168*time.Hour), zap.NewNop())

	r := gin.New()
	gate := middleware.Authenticate(tokens, users, zap.NewNop())
	api := r.Group("/api/auth")
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
		api.POST("/refresh", h.Refresh)
		api.POST("/logout", gate, h.Logout)
		api.POST("/logout-all", gate, h.LogoutAll)
		api.GET("/me", gate, h.Me)
	}
	return r
}

func postJSON(r *gin.Engine, path string, body interface{}, mutate func(*http.Request)) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CookieName {
			return ck
		}
	}
	return nil
}

func registerAlice(t *testing.T, r *gin.Engine) (accessToken string, cookie *http.Cookie) {
	t.Helper()
	rec := postJSON(r, "/api/auth/register", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "Password1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Tokens struct {
				AccessToken string `json:"accessToken"`
			} `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	ck := refreshCookie(t, rec)
	require.NotNil(t, ck, "register must set the refresh cookie")
	return body.Data.Tokens.AccessToken, ck
}

func TestRegister(t *testing.T) {
	r := newTestRouter(t)
	rec := postJSON(r, "/api/auth/register", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "Password1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), "refreshToken", "refresh token must only travel in the cookie")

	ck := refreshCookie(t, rec)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.NotEmpty(t, ck.Value)
}

func TestRegister_ValidationDetails(t *testing.T) {
	r := newTestRouter(t)
	rec := postJSON(r, "/api/auth/register", gin.H{
		"username": "a", "email": "nope", "password": "short",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "details")
}

func TestRegister_Conflict(t *testing.T) {
	r := newTestRouter(t)
	registerAlice(t, r)

	rec := postJSON(r, "/api/auth/register", gin.H{
		"username": "alice2", "email": "alice@example.com", "password": "Password1",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin(t *testing.T) {
	r := newTestRouter(t)
	registerAlice(t, r)

	rec := postJSON(r, "/api/auth/login", gin.H{"email": "alice@example.com", "password": "Password1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, refreshCookie(t, rec))

	bad := postJSON(r, "/api/auth/login", gin.H{"email": "alice@example.com", "password": "WrongPass1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestRefresh_RotatesCookie(t *testing.T) {
	r := newTestRouter(t)
	_, ck := registerAlice(t, r)

	rec := postJSON(r, "/api/auth/refresh", nil, func(req *http.Request) { req.AddCookie(ck) })
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := refreshCookie(t, rec)
	require.NotNil(t, rotated)
	assert.NotEqual(t, ck.Value, rotated.Value)

	// the old cookie is spent
	replay := postJSON(r, "/api/auth/refresh", nil, func(req *http.Request) { req.AddCookie(ck) })
	assert.Equal(t, http.StatusUnauthorized, replay.Code)

	// the rotated one works
	next := postJSON(r, "/api/auth/refresh", nil, func(req *http.Request) { req.AddCookie(rotated) })
	assert.Equal(t, http.StatusOK, next.Code)
}

func TestRefresh_NoCookie(t *testing.T) {
	r := newTestRouter(t)
	rec := postJSON(r, "/api/auth/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	r := newTestRouter(t)
	access, ck := registerAlice(t, r)

	rec := postJSON(r, "/api/auth/logout", nil, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+access)
		req.AddCookie(ck)
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cleared := refreshCookie(t, rec)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0, "logout must expire the cookie")

	// the session is gone
	replay := postJSON(r, "/api/auth/refresh", nil, func(req *http.Request) { req.AddCookie(ck) })
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
}

func TestLogoutAll_ThenMeStillWorks(t *testing.T) {
	r := newTestRouter(t)
	access, ck := registerAlice(t, r)

	rec := postJSON(r, "/api/auth/logout-all", nil, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+access)
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// refresh is revoked ...
	replay := postJSON(r, "/api/auth/refresh", nil, func(req *http.Request) { req.AddCookie(ck) })
	assert.Equal(t, http.StatusUnauthorized, replay.Code)

	// ... but the stateless access token still authenticates until expiry
	me := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	me.Header.Set("Authorization", "Bearer "+access)
	mrec := httptest.NewRecorder()
	r.ServeHTTP(mrec, me)
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "alice")
}

func TestMe_RequiresAuth(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
