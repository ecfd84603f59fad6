package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestudio/config"
)

func setup(t *testing.T, password, apiKey string) {
	t.Helper()
	prev := config.AppConfig
	cfg := config.Default()
	cfg.Settings.WebPassword = password
	cfg.Settings.SessionSecret = "0123456789abcdef0123456789abcdef"
	cfg.APIKeys.ImageAPI = apiKey
	config.AppConfig = cfg
	InitSessionStore()
	t.Cleanup(func() { config.AppConfig = prev })
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// loginCookie performs a successful login and returns the session cookie.
func loginCookie(t *testing.T, password string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.True(t, Login(rec, httptest.NewRequest(http.MethodPost, "/login", nil), password))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func TestWebAuthMiddleware(t *testing.T) {
	setup(t, "hunter2", "")
	h := WebAuthMiddleware(ok)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	assert.False(t, Login(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil), "wrong"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(loginCookie(t, "hunter2"))
	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)
}

func TestWebAuthDisabledWithoutPassword(t *testing.T) {
	setup(t, "", "")
	assert.Equal(t, http.StatusNoContent, serve(WebAuthMiddleware(ok), httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.True(t, Login(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil), ""))
}

func TestAPIAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		password string
		apiKey   string
		header   string
		session  bool
		want     int
	}{
		{"open when unconfigured", "", "", "", false, http.StatusNoContent},
		{"valid key", "", "k3y", "Bearer k3y", false, http.StatusNoContent},
		{"lowercase scheme", "", "k3y", "bearer k3y", false, http.StatusNoContent},
		{"missing header", "", "k3y", "", false, http.StatusUnauthorized},
		{"wrong scheme", "", "k3y", "Basic k3y", false, http.StatusUnauthorized},
		{"wrong key", "", "k3y", "Bearer nope", false, http.StatusUnauthorized},
		{"session without key", "pw", "", "", true, http.StatusNoContent},
		{"no session without key", "pw", "", "", false, http.StatusUnauthorized},
		{"session with key configured", "pw", "k3y", "", true, http.StatusNoContent},
		{"key without session", "pw", "k3y", "Bearer k3y", false, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t, tt.password, tt.apiKey)
			req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.session {
				req.AddCookie(loginCookie(t, tt.password))
			}
			assert.Equal(t, tt.want, serve(APIAuthMiddleware(ok), req).Code)
		})
	}
}

func TestLogout(t *testing.T) {
	setup(t, "pw", "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(loginCookie(t, "pw"))
	Logout(rec, req)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestRequestLogger(t *testing.T) {
	var seen string
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEqual(t, zerolog.Disabled, zerolog.Ctx(r.Context()).GetLevel())
		seen = w.Header().Get(RequestIDHeader)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	rec = serve(h, req)
	assert.Equal(t, "given-id", rec.Header().Get(RequestIDHeader))
}
