// auth.go - Login/logout handlers and the authentication guard.
//
// Identity is reconstructed per request from the session cookie; the
// guard fails closed when no valid session is present.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuthConfig wires the session store and user store into the HTTP
// layer. Unit tests can construct this directly.
type AuthConfig struct {
	CookieName string
	Sessions   *SessionStore
	Users      *UserStore
	// SecureCookies marks session cookies Secure. Leave false only when
	// serving plain HTTP, e.g. local development and tests.
	SecureCookies bool
}

func (a AuthConfig) cookieName() string {
	if a.CookieName == "" {
		return "fv_session"
	}
	return a.CookieName
}

type userIDKey struct{}

// userIDFromContext returns the authenticated user id placed there by
// requireAuth.
func userIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// currentUser resolves the acting user for a request that passed
// requireAuth.
func (a AuthConfig) currentUser(r *http.Request) (uuid.UUID, error) {
	if id, ok := userIDFromContext(r.Context()); ok {
		return id, nil
	}

	c, err := r.Cookie(a.cookieName())
	if err != nil {
		return uuid.Nil, ErrUnauthorized
	}
	return a.Sessions.Lookup(r.Context(), c.Value)
}

// requireAuth is the fail-closed guard for every route that needs an
// identity. Browsers are redirected to /login; API callers get 401.
func (a AuthConfig) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(a.cookieName())
		if err != nil {
			writeError(w, r, ErrUnauthorized)
			return
		}

		userID, err := a.Sessions.Lookup(r.Context(), c.Value)
		if err != nil {
			writeError(w, r, ErrUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginHandler verifies credentials and establishes a session. Both
// unknown email and wrong password produce the same external response.
func (a AuthConfig) loginHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			body.Email = r.PostFormValue("email")
			body.Password = r.PostFormValue("password")
		}

		userID, err := a.Users.Verify(r.Context(), body.Email, body.Password)
		if err != nil {
			slog.Info("login failed", "rid", RequestIDFromContext(r.Context()), "err", err)
			writeError(w, r, err)
			return
		}

		token, exp, err := a.Sessions.Create(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     a.cookieName(),
			Value:    token,
			Path:     "/",
			Expires:  exp,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   a.SecureCookies,
		})

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
			return
		}
		http.Redirect(w, r, "/loginHome", http.StatusSeeOther)
	})
}

// logoutHandler revokes the session. A store failure is logged but the
// caller is redirected either way.
func (a AuthConfig) logoutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(a.cookieName()); err == nil {
			if err := a.Sessions.Delete(r.Context(), c.Value); err != nil {
				slog.Error("logout: session invalidation failed",
					"rid", RequestIDFromContext(r.Context()), "err", err)
			}
		}

		http.SetCookie(w, &http.Cookie{
			Name:     a.cookieName(),
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   a.SecureCookies,
		})

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}
