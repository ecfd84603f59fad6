package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"imagestudio/config"
)

const (
	// SessionName is the key for the cookie session.
	SessionName = "imagestudio-session"
	// UserSessionKey is the key used to store the authenticated status in the session.
	UserSessionKey = "authenticated"
)

// Store will hold the session cookie store.
var Store *sessions.CookieStore

// InitSessionStore initializes the session store from config.AppConfig.
// It should be called once during application startup.
func InitSessionStore() {
	sessionKey := config.AppConfig.Settings.SessionSecret
	if sessionKey == "" || sessionKey == config.DefaultSessionSecret {
		log.Warn().Msg("SESSION_SECRET is not set or is the default. Using an insecure key; set a strong secret in your .env file for production.")
		sessionKey = config.DefaultSessionSecret
	}
	Store = sessions.NewCookieStore([]byte(sessionKey))

	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   false, // Set to true if using HTTPS
		SameSite: http.SameSiteLaxMode,
	}
}

// Authenticated reports whether the request carries a logged-in session.
// With no web password configured every request is authenticated.
func Authenticated(r *http.Request) bool {
	if config.AppConfig.Settings.WebPassword == "" {
		return true
	}
	session, err := Store.Get(r, SessionName)
	if err != nil {
		// The cookie secret changed; treat as logged out.
		log.Debug().Err(err).Msg("session decode failed")
		return false
	}
	auth, ok := session.Values[UserSessionKey].(bool)
	return ok && auth
}

// WebAuthMiddleware protects web routes that require authentication.
func WebAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Authenticated(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIAuthMiddleware protects API routes. A request passes with a logged-in
// session (the browser form) or with "Authorization: Bearer <IMAGEAPI_API_KEY>".
// When neither a web password nor an API key is configured the API is open.
func APIAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := config.AppConfig.APIKeys.ImageAPI
		webPassword := config.AppConfig.Settings.WebPassword

		if apiKey == "" && webPassword == "" {
			next.ServeHTTP(w, r)
			return
		}
		if webPassword != "" && Authenticated(r) {
			next.ServeHTTP(w, r)
			return
		}
		if apiKey == "" {
			http.Error(w, "Login required", http.StatusUnauthorized)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}
		scheme, providedKey, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "bearer") {
			http.Error(w, "Invalid Authorization header format. Expected 'Bearer <api_key>'", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			log.Warn().Str("remote", r.RemoteAddr).Msg("invalid API key")
			http.Error(w, "Invalid API Key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Login checks password against the configured web password and, on success,
// marks the session as authenticated.
func Login(w http.ResponseWriter, r *http.Request, password string) bool {
	webPassword := config.AppConfig.Settings.WebPassword
	if webPassword == "" {
		return true
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(webPassword)) != 1 {
		return false
	}
	// A stale cookie yields a fresh session alongside the error.
	session, _ := Store.Get(r, SessionName)
	session.Values[UserSessionKey] = true
	if err := session.Save(r, w); err != nil {
		log.Error().Err(err).Msg("failed to save session")
		return false
	}
	return true
}

// Logout clears the session cookie.
func Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := Store.Get(r, SessionName)
	session.Values[UserSessionKey] = false
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.Error().Err(err).Msg("failed to clear session")
	}
}
