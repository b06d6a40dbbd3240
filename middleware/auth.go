package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"mediastudio/config"
)

const (
	// SessionName is the key for the cookie session.
	SessionName = "mediastudio-session"
	// UserSessionKey is the key used to store the authenticated status in the session.
	UserSessionKey = "authenticated"
)

// Auth guards the API with the web password session and the studio API key.
type Auth struct {
	Store    *sessions.CookieStore
	password string
	apiKey   string
}

// NewAuth builds the session store from the configuration.
func NewAuth(cfg *config.Config) *Auth {
	if cfg.DefaultSessionSecret() && cfg.Settings.WebPassword != "" {
		zap.S().Warn("SESSION_SECRET is not set or is the default. Using a default, insecure key. Please set a strong secret in your .env file for production.")
	}
	store := sessions.NewCookieStore([]byte(cfg.Settings.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   false, // Set to true if using HTTPS
		SameSite: http.SameSiteLaxMode,
	}
	return &Auth{
		Store:    store,
		password: cfg.Settings.WebPassword,
		apiKey:   cfg.APIKeys.Studio,
	}
}

// Enabled reports whether a web password is configured. Without one the API is open.
func (a *Auth) Enabled() bool {
	return a.password != ""
}

// Login checks the password and marks the session authenticated.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request, password string) (bool, error) {
	if !a.Enabled() {
		return true, nil
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return false, nil
	}
	// A stale cookie from an old secret is simply replaced.
	session, _ := a.Store.Get(r, SessionName)
	session.Values[UserSessionKey] = true
	return true, session.Save(r, w)
}

// Logout clears the session cookie.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := a.Store.Get(r, SessionName)
	session.Values[UserSessionKey] = false
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// Authenticated reports whether the request carries a valid session or API key.
func (a *Auth) Authenticated(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}
	if a.validAPIKey(r) {
		return true
	}
	session, err := a.Store.Get(r, SessionName)
	if err != nil {
		// This could happen if the cookie secret changes.
		zap.S().Debugf("Session error: %v. Forcing login.", err)
		return false
	}
	auth, ok := session.Values[UserSessionKey].(bool)
	return ok && auth
}

// Require rejects requests that are neither logged in nor using the API key.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authenticated(r) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mediastudio"`)
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) validAPIKey(r *http.Request) bool {
	if a.apiKey == "" {
		return false
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(a.apiKey)) == 1
}
