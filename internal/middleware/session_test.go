package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/tmhi/internal/models"
)

var errGone = errors.New("gone")

type fakeAuthenticator struct {
	sessions map[string]*models.Session
	err      error
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, sid string) (*models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.sessions[sid]; ok {
		return s, nil
	}
	return nil, errGone
}

// dummyHandler records whether it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func isGone(err error) bool { return errors.Is(err, errGone) }

func TestSessionAuth(t *testing.T) {
	session := &models.Session{SID: "sid-1", CSRFToken: "csrf-1", Username: "admin"}

	tests := []struct {
		name       string
		cookie     string
		authErr    error
		wantCode   int
		wantCalled bool
	}{
		{"no cookie", "", nil, http.StatusUnauthorized, false},
		{"unknown sid", "sid-2", nil, http.StatusUnauthorized, false},
		{"lookup failure", "sid-1", errors.New("db down"), http.StatusInternalServerError, false},
		{"live session", "sid-1", nil, http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuthenticator{sessions: map[string]*models.Session{"sid-1": session}, err: tt.authErr}
			dummy := &dummyHandler{}
			h := SessionAuth(auth, isGone)(dummy)

			req := httptest.NewRequest(http.MethodPost, "/reboot_web_app.cgi", nil)
			if tt.cookie != "" {
				req.Header.Set("Cookie", "sid="+tt.cookie)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d; want %d", rec.Code, tt.wantCode)
			}
			if dummy.called != tt.wantCalled {
				t.Fatalf("next called = %v; want %v", dummy.called, tt.wantCalled)
			}
			if tt.wantCalled && SessionFromContext(dummy.ctx) != session {
				t.Errorf("session in context = %+v; want %+v", SessionFromContext(dummy.ctx), session)
			}
		})
	}
}

func TestSessionFromContext_Empty(t *testing.T) {
	if s := SessionFromContext(context.Background()); s != nil {
		t.Errorf("expected nil session, got %+v", s)
	}
}
