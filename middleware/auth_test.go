package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediastudio/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func newAuth(password, apiKey string) *Auth {
	cfg := config.Default()
	cfg.Settings.WebPassword = password
	cfg.Settings.SessionSecret = "0123456789abcdef0123456789abcdef"
	cfg.APIKeys.Studio = apiKey
	return NewAuth(cfg)
}

func TestRequireOpenWithoutPassword(t *testing.T) {
	auth := newAuth("", "")
	rec := httptest.NewRecorder()
	auth.Require(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gallery", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireSessionLogin(t *testing.T) {
	auth := newAuth("hunter2", "")
	protected := auth.Require(okHandler())

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gallery", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	loginRec := httptest.NewRecorder()
	ok, err := auth.Login(loginRec, httptest.NewRequest(http.MethodPost, "/api/login", nil), "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = auth.Login(loginRec, httptest.NewRequest(http.MethodPost, "/api/login", nil), "hunter2")
	require.NoError(t, err)
	require.True(t, ok)
	cookies := loginRec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/api/gallery", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireBearerKey(t *testing.T) {
	auth := newAuth("hunter2", "studio-key")
	protected := auth.Require(okHandler())

	for header, want := range map[string]int{
		"Bearer studio-key": http.StatusNoContent,
		"bearer studio-key": http.StatusNoContent,
		"Bearer other":      http.StatusUnauthorized,
		"studio-key":        http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/gallery", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, header)
	}
}
