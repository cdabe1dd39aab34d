package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"

	"github.com/atinyakov/tmhi/internal/models"
	"github.com/atinyakov/tmhi/internal/repository"
)

var (
	// ErrSessionNotFound is returned for an unknown sid.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned for a sid whose session has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrBadCSRF is returned when a request carries the wrong CSRF token.
	ErrBadCSRF = errors.New("csrf token mismatch")
)

// Authenticate returns the live session for sid.
func (s *GatewayService) Authenticate(ctx context.Context, sid string) (*models.Session, error) {
	session, err := s.lookup(ctx, sid)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// SecondsLeft reports how many seconds the session for sid has left.
// Expired sessions report a negative value.
func (s *GatewayService) SecondsLeft(ctx context.Context, sid string) (int64, error) {
	session, err := s.lookup(ctx, sid)
	if err != nil {
		return 0, err
	}
	return int64(math.Floor(session.ExpiresAt.Sub(s.now()).Seconds())), nil
}

// Reboot checks the CSRF token of session and ends every session of its
// account, as a real reboot would.
func (s *GatewayService) Reboot(ctx context.Context, session *models.Session, csrfToken string) error {
	if subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(csrfToken)) != 1 {
		return ErrBadCSRF
	}
	if err := s.sessions.DeleteSessionsByUser(ctx, session.Username); err != nil {
		return err
	}
	s.metrics.Reboot()
	return nil
}

func (s *GatewayService) lookup(ctx context.Context, sid string) (*models.Session, error) {
	if sid == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.GetSession(ctx, sid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}
