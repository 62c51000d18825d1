package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return &App{
		Store:       NewMemStore(),
		Tokens:      NewTokenService([]byte("test-secret"), time.Hour),
		UploadDir:   t.TempDir(),
		rateLimiter: NewRateLimiter(1000),
	}
}

// echoPrincipal is a terminal handler that records the principal it saw.
func echoPrincipal(got *Principal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if ok {
			*got = p
		}
		w.WriteHeader(http.StatusOK)
	}
}

func TestAuthenticateMissingHeader(t *testing.T) {
	a := newTestApp(t)
	var got Principal
	h := a.Authenticate(echoPrincipal(&got))

	req := httptest.NewRequest("GET", "/api/profile", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
	assert.Zero(t, got.UserID)
}

func TestAuthenticateBadScheme(t *testing.T) {
	a := newTestApp(t)
	h := a.Authenticate(echoPrincipal(&Principal{}))

	req := httptest.NewRequest("GET", "/api/profile", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
}

func TestAuthenticateInvalidToken(t *testing.T) {
	a := newTestApp(t)
	h := a.Authenticate(echoPrincipal(&Principal{}))

	for _, token := range []string{"garbage", mustExpiredToken(t)} {
		req := httptest.NewRequest("GET", "/api/profile", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
	}
}

func mustExpiredToken(t *testing.T) string {
	t.Helper()
	token, err := NewTokenService([]byte("test-secret"), -time.Minute).Issue(1, RoleUser)
	require.NoError(t, err)
	return token
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	a := newTestApp(t)
	token, err := a.Tokens.Issue(7, RoleUser)
	require.NoError(t, err)

	var got Principal
	h := a.Authenticate(echoPrincipal(&got))

	req := httptest.NewRequest("GET", "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, RoleUser, got.Role)
}

func TestRequireRole(t *testing.T) {
	a := newTestApp(t)
	h := a.Authenticate(RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	userToken, err := a.Tokens.Issue(1, RoleUser)
	require.NoError(t, err)
	adminToken, err := a.Tokens.Issue(2, RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/admin-dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest("GET", "/api/admin-dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleNoHierarchy(t *testing.T) {
	a := newTestApp(t)
	// a route that requires "user" is not satisfied by "admin"
	h := a.Authenticate(RequireRole(RoleUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	adminToken, err := a.Tokens.Issue(1, RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/whatever", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimit(t *testing.T) {
	a := newTestApp(t)
	a.rateLimiter = NewRateLimiter(3)
	h := a.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/api/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	// a different client IP is not affected
	req := httptest.NewRequest("POST", "/api/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	// caller-supplied id is kept
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
