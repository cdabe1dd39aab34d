package http

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/tmhi/internal/middleware"
	"github.com/atinyakov/tmhi/internal/models"
	"github.com/atinyakov/tmhi/internal/service"
)

// SessionService defines the session operations required by SessionHandler.
type SessionService interface {
	// Authenticate returns the live session for sid.
	Authenticate(ctx context.Context, sid string) (*models.Session, error)
	// SecondsLeft reports the signed lifetime left for sid.
	SecondsLeft(ctx context.Context, sid string) (int64, error)
	// Reboot checks the CSRF token and ends the account's sessions.
	Reboot(ctx context.Context, session *models.Session, csrfToken string) error
}

// SessionHandler serves the endpoints that take a sid cookie.
type SessionHandler struct {
	// SessionService performs the underlying session operations.
	SessionService SessionService
	// Log receives internal errors. Nil disables logging.
	Log *zap.Logger
}

// noSessionExpire is reported for a missing or unknown session.
const noSessionExpire = -1

// CheckExpire handles GET /check_expire_web_app.cgi.
// It replies {"expire": seconds}, negative once the session has expired.
func (h *SessionHandler) CheckExpire(w http.ResponseWriter, r *http.Request) {
	var sid string
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		sid = cookie.Value
	}

	secs, err := h.SessionService.SecondsLeft(r.Context(), sid)
	if errors.Is(err, service.ErrSessionNotFound) {
		secs, err = noSessionExpire, nil
	}
	if err != nil {
		h.logError("check expire", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int64{"expire": secs})
}

// Reboot handles POST /reboot_web_app.cgi behind middleware.SessionAuth.
func (h *SessionHandler) Reboot(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	err := h.SessionService.Reboot(r.Context(), session, r.PostForm.Get("csrf_token"))
	if errors.Is(err, service.ErrBadCSRF) {
		http.Error(w, "csrf token mismatch", http.StatusForbidden)
		return
	}
	if err != nil {
		h.logError("reboot", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"result": resultOK})
}

// IsNoSession reports whether err means the sid has no live session.
func IsNoSession(err error) bool {
	return errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, service.ErrSessionExpired)
}

func (h *SessionHandler) logError(msg string, err error) {
	if h.Log != nil {
		h.Log.Error(msg, zap.Error(err))
	}
}
