// Package middleware provides HTTP middlewares for session authentication and logging.
package middleware

import (
	"context"
	"net/http"

	"github.com/atinyakov/tmhi/internal/models"
)

type ctxKey string

const sessionKey ctxKey = "session"

// SessionCookie is the cookie that carries the gateway session id.
const SessionCookie = "sid"

// Authenticator resolves a sid into a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, sid string) (*models.Session, error)
}

// SessionAuth rejects requests without a live session in the sid cookie.
//
// On success the session is stored in the request context, where
// SessionFromContext finds it. Unknown and expired sessions get 401;
// lookup failures get 500.
func SessionAuth(auth Authenticator, isNoSession func(error) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				http.Error(w, "no session", http.StatusUnauthorized)
				return
			}
			session, err := auth.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				if isNoSession(err) {
					http.Error(w, "no session", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session stored by SessionAuth, or nil.
func SessionFromContext(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionKey).(*models.Session)
	return s
}
