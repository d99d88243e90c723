package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clearancehq/tiergate/internal/access"
	"github.com/clearancehq/tiergate/internal/admin"
	"github.com/clearancehq/tiergate/internal/config"
	"github.com/clearancehq/tiergate/internal/content"
	"github.com/clearancehq/tiergate/internal/credential"
	"github.com/clearancehq/tiergate/internal/ratelimit"
	"github.com/clearancehq/tiergate/internal/session"
	"github.com/clearancehq/tiergate/internal/tier"
)

const (
	testPassword = "correct-horse"
	testAdminKey = "elevated-key-123"
)

// =============================================================================
// Test Helpers
// =============================================================================

type testServer struct {
	srv      *Server
	sessions session.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	directory := credential.NewDirectory([]credential.Principal{
		{
			ID:           "p-1",
			Email:        "member@example.com",
			Name:         "Member One",
			Role:         "member",
			Tier:         tier.InnerCircle,
			PasswordHash: string(hash),
		},
	})

	creds, err := credential.NewService([]byte("test-signing-secret"))
	require.NoError(t, err)

	sessions := session.NewMemoryStore(session.WithJanitorInterval(0))
	t.Cleanup(func() { _ = sessions.Close() })

	limits, err := ratelimit.NewRegistry([]ratelimit.Profile{
		{Name: ratelimit.ProfileAnonymous, Limit: 3, Window: time.Minute},
		{Name: ratelimit.ProfileAuthenticated, Limit: 10, Window: time.Minute},
		{Name: ratelimit.ProfileAdmin, Limit: 5, Window: time.Minute},
	})
	require.NoError(t, err)

	source := content.NewStaticSource(map[string]tier.Tier{
		"about": tier.Public,
	}, tier.Private).AddPrefix("canon/", tier.InnerCircle)

	srv := New(&Config{SecureCookies: false}, Deps{
		Directory:   directory,
		Credentials: creds,
		Sessions:    sessions,
		Access:      access.NewController(sessions, limits),
		Admin:       admin.NewValidator(config.EnvProduction, testAdminKey, nil),
		Limits:      limits,
		Content:     source,
		SessionTTL:  time.Hour,
	})

	return &testServer{srv: srv, sessions: sessions}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(t *testing.T) (token string, cookie *http.Cookie) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"email":    "member@example.com",
		"password": testPassword,
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login must set the session cookie")
	return resp.Token, cookie
}

// =============================================================================
// Login Tests
// =============================================================================

func TestLogin_Success(t *testing.T) {
	ts := newTestServer(t)

	token, cookie := ts.login(t)
	assert.NotEmpty(t, token)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)
}

func TestLogin_ReturnsUser(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(map[string]string{
		"email":    "member@example.com",
		"password": testPassword,
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "member@example.com", resp.User.Email)
	assert.Equal(t, "inner-circle", resp.User.Tier)
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(map[string]string{
		"email":    "member@example.com",
		"password": "wrong",
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_UnknownEmailSameResponse(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(map[string]string{
		"email":    "nobody@example.com",
		"password": testPassword,
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid credentials")
}

func TestLogin_MissingFields(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	ts := newTestServer(t)

	body := []byte(`{"email":"member@example.com","password":"wrong"}`)
	var w *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.9:1234"
		w = ts.do(req)
	}

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
}

// =============================================================================
// Refresh Tests
// =============================================================================

func TestRefresh_Success(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "p-1", resp.User.ID)
}

func TestRefresh_MissingToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_GarbageToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer not-a-credential")
	w := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// Logout Tests
// =============================================================================

func TestLogout_InvalidatesSession(t *testing.T) {
	ts := newTestServer(t)
	_, cookie := ts.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	w := ts.do(req)
	require.Equal(t, http.StatusNoContent, w.Code)

	// The handle must no longer resolve.
	req = httptest.NewRequest(http.MethodGet, "/content/canon/origin", nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_WithoutCookie(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

// =============================================================================
// Content Tests
// =============================================================================

func TestContent_PublicWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/content/about", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestContent_ProtectedWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/content/canon/origin", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_tier")
}

func TestContent_SessionGrantsAccess(t *testing.T) {
	ts := newTestServer(t)
	_, cookie := ts.login(t)

	req := httptest.NewRequest(http.MethodGet, "/content/canon/origin", nil)
	req.AddCookie(cookie)
	w := ts.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "canon/origin")
}

func TestContent_TierAboveSessionDenied(t *testing.T) {
	ts := newTestServer(t)
	_, cookie := ts.login(t)

	// Unmatched slugs default to private, above the member's tier.
	req := httptest.NewRequest(http.MethodGet, "/content/vault/secret-page", nil)
	req.AddCookie(cookie)
	w := ts.do(req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestContent_DeadHandleIsExpired(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/content/canon/origin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "no-such-handle"})
	w := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session_expired")
}

func TestContent_AnonymousRateLimit(t *testing.T) {
	ts := newTestServer(t)

	var w *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/content/about", nil)
		req.RemoteAddr = "10.0.0.7:4567"
		w = ts.do(req)
	}

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "retry_after")
}

// =============================================================================
// Admin Tests
// =============================================================================

func TestAdmin_APIKeyGrants(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "api_key")
}

func TestAdmin_NoEvidenceDenied(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "clearance required")
}

func TestAdmin_WrongKeyDenied(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w := ts.do(req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_ElevatedSessionRole(t *testing.T) {
	ts := newTestServer(t)

	handle := session.NewHandle()
	now := time.Now()
	err := ts.sessions.Put(context.Background(), handle, &session.Record{
		PrincipalID: "p-9",
		Tier:        tier.Private,
		Role:        "founder",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: handle})
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "session")
}

func TestAdmin_RateLimited(t *testing.T) {
	ts := newTestServer(t)

	var w *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
		req.Header.Set("Authorization", "Bearer "+testAdminKey)
		req.RemoteAddr = "10.0.0.3:9999"
		w = ts.do(req)
	}

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestAdmin_SessionLookup(t *testing.T) {
	ts := newTestServer(t)
	_, cookie := ts.login(t)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/admin/sessions/%s", cookie.Value), nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "p-1")
}

func TestAdmin_SessionLookupNotFound(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions/absent", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	w := ts.do(req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RevokeSession(t *testing.T) {
	ts := newTestServer(t)
	_, cookie := ts.login(t)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/admin/sessions/%s", cookie.Value), nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	w := ts.do(req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/content/canon/origin", nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// Operational Endpoint Tests
// =============================================================================

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDHeaderSet(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := ts.do(req)

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
