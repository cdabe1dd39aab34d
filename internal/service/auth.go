// Package service implements the gateway simulator: nonce issue, challenge
// verification and session management, with persistence delegated to
// repository interfaces.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/tmhi/internal/client/auth"
	"github.com/atinyakov/tmhi/internal/metrics"
	"github.com/atinyakov/tmhi/internal/models"
)

var (
	// ErrUnknownNonce is returned when a login names a nonce that was never
	// issued, was already used, or has expired.
	ErrUnknownNonce = errors.New("unknown nonce")
	// ErrBadCredentials is returned when no account matches the challenge.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrBadForm is returned when a login form lacks required fields.
	ErrBadForm = errors.New("malformed login form")
)

// NonceTTL is how long an issued nonce can be used.
const NonceTTL = time.Minute

const nonceSize = 32

// loginFields are the fields every login submission must carry.
var loginFields = []string{"userhash", "RandomKeyhash", "response", "nonce", "enckey", "enciv"}

// AccountRepository defines the account persistence the simulator needs.
type AccountRepository interface {
	// UpsertAccount creates an account or replaces its password.
	UpsertAccount(ctx context.Context, a models.Account) error
	// ListAccounts returns all accounts.
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// SessionRepository defines the session persistence the simulator needs.
type SessionRepository interface {
	// CreateSession stores a new session.
	CreateSession(ctx context.Context, s models.Session) error
	// GetSession returns the session for sid or repository.ErrNotFound.
	GetSession(ctx context.Context, sid string) (*models.Session, error)
	// DeleteSessionsByUser removes every session of username.
	DeleteSessionsByUser(ctx context.Context, username string) error
}

// Options configures a GatewayService.
type Options struct {
	// Iterations is announced in every nonce.
	Iterations int
	// SessionTTL is the lifetime of a new session.
	SessionTTL time.Duration
	// Now replaces time.Now when set.
	Now func() time.Time
	// Metrics receives login counters when set.
	Metrics *metrics.Metrics
}

type issuedNonce struct {
	nonce     auth.Nonce
	expiresAt time.Time
}

// GatewayService plays the gateway side of the login protocol.
type GatewayService struct {
	accounts AccountRepository
	sessions SessionRepository

	iterations int
	ttl        time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics

	mu     sync.Mutex
	nonces map[string]issuedNonce
}

// NewGatewayService constructs a GatewayService on the given repositories.
func NewGatewayService(accounts AccountRepository, sessions SessionRepository, opts Options) *GatewayService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 5 * time.Minute
	}
	return &GatewayService{
		accounts:   accounts,
		sessions:   sessions,
		iterations: opts.Iterations,
		ttl:        opts.SessionTTL,
		now:        opts.Now,
		metrics:    opts.Metrics,
		nonces:     make(map[string]issuedNonce),
	}
}

// SeedAccount makes sure the account exists with the given password.
func (s *GatewayService) SeedAccount(ctx context.Context, a models.Account) error {
	return s.accounts.UpsertAccount(ctx, a)
}

// IssueNonce creates a single-use login challenge.
func (s *GatewayService) IssueNonce(_ context.Context) (auth.Nonce, error) {
	raw := make([]byte, nonceSize)
	if _, err := rand.Read(raw); err != nil {
		return auth.Nonce{}, fmt.Errorf("generate nonce: %w", err)
	}
	key, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return auth.Nonce{}, fmt.Errorf("generate random key: %w", err)
	}
	n := auth.Nonce{
		Iterations: s.iterations,
		Nonce:      base64.StdEncoding.EncodeToString(raw),
		RandomKey:  strconv.FormatInt(key.Int64(), 10),
	}

	now := s.now()
	s.mu.Lock()
	for k, issued := range s.nonces {
		if !issued.expiresAt.After(now) {
			delete(s.nonces, k)
		}
	}
	s.nonces[n.Nonce] = issuedNonce{nonce: n, expiresAt: now.Add(NonceTTL)}
	s.mu.Unlock()

	s.metrics.Nonce()
	return n, nil
}

// Login verifies a submitted challenge form and opens a session.
func (s *GatewayService) Login(ctx context.Context, form url.Values) (*models.Session, error) {
	session, err := s.login(ctx, form)
	s.metrics.Login(loginOutcome(err))
	return session, err
}

func (s *GatewayService) login(ctx context.Context, form url.Values) (*models.Session, error) {
	for _, field := range loginFields {
		if form.Get(field) == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrBadForm, field)
		}
	}

	n, ok := s.consumeNonce(auth.UnescapeURL(form.Get("nonce")))
	if !ok {
		return nil, ErrUnknownNonce
	}
	if form.Get("RandomKeyhash") != auth.EscapeURL(auth.KeyedHash(n.RandomKey, n.Nonce)) {
		return nil, ErrBadCredentials
	}

	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if auth.UserHash(a.Username, n.Nonce) != form.Get("userhash") {
			continue
		}
		if auth.ChallengeResponse(a.Username, a.Password, n) != form.Get("response") {
			return nil, ErrBadCredentials
		}
		return s.openSession(ctx, a.Username)
	}
	return nil, ErrBadCredentials
}

func (s *GatewayService) consumeNonce(value string) (auth.Nonce, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issued, ok := s.nonces[value]
	if !ok {
		return auth.Nonce{}, false
	}
	delete(s.nonces, value)
	if !issued.expiresAt.After(s.now()) {
		return auth.Nonce{}, false
	}
	return issued.nonce, true
}

func (s *GatewayService) openSession(ctx context.Context, username string) (*models.Session, error) {
	session := models.Session{
		SID:       uuid.NewString(),
		CSRFToken: uuid.NewString(),
		Username:  username,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrBadCredentials):
		return metrics.OutcomeBadCredential
	case errors.Is(err, ErrUnknownNonce):
		return metrics.OutcomeUnknownNonce
	case errors.Is(err, ErrBadForm):
		return metrics.OutcomeBadForm
	default:
		return metrics.OutcomeError
	}
}
