package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/tmhi/internal/client/auth"
	"github.com/atinyakov/tmhi/internal/metrics"
	"github.com/atinyakov/tmhi/internal/models"
	"github.com/atinyakov/tmhi/internal/repository"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type mockAccountRepo struct {
	UpsertAccountFunc func(ctx context.Context, a models.Account) error
	ListAccountsFunc  func(ctx context.Context) ([]models.Account, error)
}

func (m *mockAccountRepo) UpsertAccount(ctx context.Context, a models.Account) error {
	return m.UpsertAccountFunc(ctx, a)
}

func (m *mockAccountRepo) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return m.ListAccountsFunc(ctx)
}

func newTestService(t *testing.T, iterations int) (*GatewayService, *testClock, *metrics.Metrics) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore(clock.Now)
	m := metrics.New(prometheus.NewRegistry())
	svc := NewGatewayService(store, store, Options{
		Iterations: iterations,
		SessionTTL: 5 * time.Minute,
		Now:        clock.Now,
		Metrics:    m,
	})
	require.NoError(t, svc.SeedAccount(context.Background(), models.Account{Username: "admin", Password: "secret"}))
	return svc, clock, m
}

func loginForm(t *testing.T, username, password string, n auth.Nonce) url.Values {
	t.Helper()
	form, err := auth.BuildForm(username, password, n)
	require.NoError(t, err)
	return form.Values()
}

func TestIssueNonce(t *testing.T) {
	svc, _, m := newTestService(t, 3)

	first, err := svc.IssueNonce(context.Background())
	require.NoError(t, err)
	second, err := svc.IssueNonce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, first.Iterations)
	assert.Len(t, first.Nonce, 44)
	assert.NotEmpty(t, first.RandomKey)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NoncesIssued))
}

func TestLogin_Success(t *testing.T) {
	for _, iterations := range []int{0, 1, 3} {
		svc, clock, m := newTestService(t, iterations)
		ctx := context.Background()

		n, err := svc.IssueNonce(ctx)
		require.NoError(t, err)
		session, err := svc.Login(ctx, loginForm(t, "admin", "secret", n))
		require.NoError(t, err, "iterations %d", iterations)

		assert.Equal(t, "admin", session.Username)
		assert.NotEmpty(t, session.SID)
		assert.NotEmpty(t, session.CSRFToken)
		assert.Equal(t, clock.now.Add(5*time.Minute), session.ExpiresAt)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess)))
	}
}

func TestLogin_ZeroIterationsIgnoresPasswordCase(t *testing.T) {
	svc, _, _ := newTestService(t, 0)
	require.NoError(t, svc.SeedAccount(context.Background(), models.Account{Username: "admin", Password: "secret"}))

	n, err := svc.IssueNonce(context.Background())
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), loginForm(t, "admin", "SECRET", n))
	assert.NoError(t, err)
}

func TestLogin_Failures(t *testing.T) {
	svc, clock, m := newTestService(t, 2)
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		n, err := svc.IssueNonce(ctx)
		require.NoError(t, err)
		_, err = svc.Login(ctx, loginForm(t, "admin", "wrong", n))
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		n, err := svc.IssueNonce(ctx)
		require.NoError(t, err)
		_, err = svc.Login(ctx, loginForm(t, "root", "secret", n))
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("nonce reuse", func(t *testing.T) {
		n, err := svc.IssueNonce(ctx)
		require.NoError(t, err)
		_, err = svc.Login(ctx, loginForm(t, "admin", "secret", n))
		require.NoError(t, err)
		_, err = svc.Login(ctx, loginForm(t, "admin", "secret", n))
		assert.ErrorIs(t, err, ErrUnknownNonce)
	})

	t.Run("never issued", func(t *testing.T) {
		n := auth.Nonce{Iterations: 2, Nonce: "bm90LWlzc3VlZA==", RandomKey: "1"}
		_, err := svc.Login(ctx, loginForm(t, "admin", "secret", n))
		assert.ErrorIs(t, err, ErrUnknownNonce)
	})

	t.Run("expired nonce", func(t *testing.T) {
		n, err := svc.IssueNonce(ctx)
		require.NoError(t, err)
		clock.now = clock.now.Add(NonceTTL)
		_, err = svc.Login(ctx, loginForm(t, "admin", "secret", n))
		assert.ErrorIs(t, err, ErrUnknownNonce)
	})

	t.Run("missing field", func(t *testing.T) {
		n, err := svc.IssueNonce(ctx)
		require.NoError(t, err)
		form := loginForm(t, "admin", "secret", n)
		form.Del("enciv")
		_, err = svc.Login(ctx, form)
		assert.ErrorIs(t, err, ErrBadForm)
	})

	t.Run("tampered random key hash", func(t *testing.T) {
		n, err := svc.IssueNonce(ctx)
		require.NoError(t, err)
		form := loginForm(t, "admin", "secret", n)
		form.Set("RandomKeyhash", "AAAA")
		_, err = svc.Login(ctx, form)
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(metrics.OutcomeBadCredential)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(metrics.OutcomeUnknownNonce)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues(metrics.OutcomeBadForm)))
}

func TestLogin_RepositoryError(t *testing.T) {
	wantErr := errors.New("db error")
	accounts := &mockAccountRepo{
		ListAccountsFunc: func(ctx context.Context) ([]models.Account, error) {
			return nil, wantErr
		},
	}
	svc := NewGatewayService(accounts, repository.NewMemoryStore(nil), Options{})

	n, err := svc.IssueNonce(context.Background())
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), loginForm(t, "admin", "secret", n))
	assert.ErrorIs(t, err, wantErr)
}

func TestSeedAccount_Error(t *testing.T) {
	wantErr := errors.New("insert failed")
	accounts := &mockAccountRepo{
		UpsertAccountFunc: func(ctx context.Context, a models.Account) error {
			return wantErr
		},
	}
	svc := NewGatewayService(accounts, repository.NewMemoryStore(nil), Options{})

	err := svc.SeedAccount(context.Background(), models.Account{Username: "admin"})
	assert.ErrorIs(t, err, wantErr)
}
