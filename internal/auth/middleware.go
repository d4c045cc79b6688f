package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CookieName is the cookie carrying the session token.
const CookieName = "token"

// RefreshWindow is how close to expiry a token must be before Authenticate
// refreshes it.
const RefreshWindow = 15 * time.Minute

// contextKey is an unexported type so no other package can read or shadow
// the session stored in a request context.
type contextKey string

const sessionKey contextKey = "session"

// Authenticate resolves the session cookie on every request.
//
// A valid session is stored in the request context; an invalid one clears
// the cookie. The request always continues: guards further down decide what
// an anonymous request may see. Tokens inside RefreshWindow are refreshed
// and the new token is written back.
//
// COOKIE SCOPE:
// The cookie has no Max-Age or Expires attribute, so the browser drops it
// when the browser session ends. The token inside still expires on its own.
func Authenticate(provider Provider, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := provider.CurrentSession(r.Context(), cookie.Value)
			if err != nil {
				ClearSessionCookie(w, secure)
				next.ServeHTTP(w, r)
				return
			}

			if time.Until(sess.ExpiresAt) < RefreshWindow {
				refreshed, err := provider.Refresh(r.Context(), sess.ID)
				if err != nil {
					logger.Warn("session refresh failed",
						slog.String("session_id", sess.ID),
						slog.String("error", err.Error()),
					)
				} else {
					sess = refreshed
					SetSessionCookie(w, sess.Token, secure)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the session Authenticate stored, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*Session)
	return sess, ok && sess != nil
}

// SetSessionCookie writes the session token as a browser-session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
