// Package http serves the gateway simulator's web API: the login
// endpoints, session expiry, reboot and radio status.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/atinyakov/tmhi/internal/client/auth"
	"github.com/atinyakov/tmhi/internal/models"
	"github.com/atinyakov/tmhi/internal/service"
)

// Login reply result codes.
const (
	resultOK             = 0
	resultBadCredentials = 1
	resultUnknownNonce   = 2
	resultBadForm        = 3
)

// AuthService defines the login operations required by AuthHandler.
type AuthService interface {
	// IssueNonce creates a single-use login challenge.
	IssueNonce(ctx context.Context) (auth.Nonce, error)
	// Login verifies the challenge form and opens a session.
	Login(ctx context.Context, form url.Values) (*models.Session, error)
}

// AuthHandler serves /login_web_app.cgi.
type AuthHandler struct {
	// AuthService performs the underlying login operations.
	AuthService AuthService
	// Log receives internal errors. Nil disables logging.
	Log *zap.Logger
}

type loginReply struct {
	Result    int    `json:"result"`
	SID       string `json:"sid,omitempty"`
	CSRFToken string `json:"token,omitempty"`
}

// Nonce handles GET /login_web_app.cgi?nonce.
func (h *AuthHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("nonce") {
		http.Error(w, "nonce query required", http.StatusBadRequest)
		return
	}
	n, err := h.AuthService.IssueNonce(r.Context())
	if err != nil {
		h.logError("issue nonce", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, n)
}

// Login handles POST /login_web_app.cgi with the challenge form.
// Rejections are reported in the result field with status 200.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	session, err := h.AuthService.Login(r.Context(), r.PostForm)
	switch {
	case err == nil:
		writeJSON(w, loginReply{Result: resultOK, SID: session.SID, CSRFToken: session.CSRFToken})
	case errors.Is(err, service.ErrBadCredentials):
		writeJSON(w, loginReply{Result: resultBadCredentials})
	case errors.Is(err, service.ErrUnknownNonce):
		writeJSON(w, loginReply{Result: resultUnknownNonce})
	case errors.Is(err, service.ErrBadForm):
		writeJSON(w, loginReply{Result: resultBadForm})
	default:
		h.logError("login", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *AuthHandler) logError(msg string, err error) {
	if h.Log != nil {
		h.Log.Error(msg, zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
