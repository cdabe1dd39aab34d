// Package auth implements the gateway login protocol: the nonce
// challenge-response hash, the session token cache, and the coordinator
// that keeps concurrent callers down to a single login at a time.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultLoginTimeout bounds a single login sequence.
const DefaultLoginTimeout = 30 * time.Second

// MaxIterations is the largest password hash iteration count accepted
// from a nonce.
const MaxIterations = 1 << 16

// maxExpireSeconds keeps now + expire within time.Duration.
const maxExpireSeconds = math.MaxInt64 / int64(time.Second)

// Transport performs the login requests and returns the raw reply bodies.
// Any returned error is treated as a transport failure.
type Transport interface {
	// FetchNonce issues GET /login_web_app.cgi?nonce.
	FetchNonce(ctx context.Context) ([]byte, error)
	// SubmitLogin posts the challenge form to /login_web_app.cgi.
	SubmitLogin(ctx context.Context, form url.Values) ([]byte, error)
	// CheckExpire issues GET /check_expire_web_app.cgi for the session sid.
	CheckExpire(ctx context.Context, sid string) ([]byte, error)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for login events.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock replaces time.Now for token expiration.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLoginTimeout bounds one login sequence. Non-positive values are ignored.
func WithLoginTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.loginTimeout = d
		}
	}
}

// outcome is the result of one completed login sequence.
type outcome struct {
	data *TokenData
	err  error
}

// Client hands out valid session tokens, logging in when needed.
// It is safe for concurrent use.
type Client struct {
	transport Transport
	username  string
	password  string

	log          *zap.Logger
	now          func() time.Time
	loginTimeout time.Duration

	cache *Cache

	// gate admits one login sequence at a time.
	gate *semaphore.Weighted
	// logins counts completed login sequences; last holds the newest outcome.
	logins atomic.Uint64
	mu     sync.Mutex
	last   outcome

	// waitHook, when set, runs after a caller has read logins and before
	// it waits on gate.
	waitHook func()
}

// New returns a Client that logs in through t with the given credentials.
func New(t Transport, username, password string, opts ...Option) *Client {
	c := &Client{
		transport:    t,
		username:     username,
		password:     password,
		log:          zap.NewNop(),
		now:          time.Now,
		loginTimeout: DefaultLoginTimeout,
		gate:         semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = NewCache(c.now)
	return c
}

// Refresh returns the cached token while it is valid and logs in otherwise.
func (c *Client) Refresh(ctx context.Context) (*TokenData, error) {
	if data := c.cache.Current(); data != nil {
		return data, nil
	}
	return c.coordinate(ctx, true)
}

// Login makes sure a fresh login has happened and returns its token.
//
// When a login is already running, Login waits for it and returns its
// outcome instead of starting another one. Cancelling ctx abandons the
// wait but not a login that is already running.
func (c *Client) Login(ctx context.Context) (*TokenData, error) {
	return c.coordinate(ctx, false)
}

// coordinate runs or joins a login sequence. With reuseValid set, a token
// that became valid while the caller waited for the gate is returned
// without a new sequence.
func (c *Client) coordinate(ctx context.Context, reuseValid bool) (*TokenData, error) {
	seen := c.logins.Load()
	if c.waitHook != nil {
		c.waitHook()
	}
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	if c.logins.Load() != seen {
		c.mu.Lock()
		last := c.last
		c.mu.Unlock()
		return last.data, last.err
	}
	if reuseValid {
		if data := c.cache.Current(); data != nil {
			return data, nil
		}
	}

	loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loginTimeout)
	defer cancel()

	data, err := c.login(loginCtx)

	c.mu.Lock()
	c.last = outcome{data: data, err: err}
	c.mu.Unlock()
	c.logins.Add(1)

	return data, err
}

// Invalidate drops the cached token so the next Refresh logs in again.
func (c *Client) Invalidate() {
	c.cache.Clear()
}

// Expiration reports when the cached token expires and whether one exists.
func (c *Client) Expiration() (time.Time, bool) {
	return c.cache.Expiration()
}

func (c *Client) login(ctx context.Context) (*TokenData, error) {
	data, expiration, err := c.fetchToken(ctx)
	if err != nil {
		c.log.Warn("gateway login failed", zap.String("kind", errorKind(err)), zap.Error(err))
		return nil, err
	}
	c.cache.Store(data, expiration)
	c.log.Info("gateway login succeeded", zap.Duration("valid_for", expiration.Sub(c.now())))
	return data, nil
}

func (c *Client) fetchToken(ctx context.Context) (*TokenData, time.Time, error) {
	nonce, err := c.fetchNonce(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	form, err := BuildForm(c.username, c.password, nonce)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := c.submitLogin(ctx, form)
	if err != nil {
		return nil, time.Time{}, err
	}
	expiration, err := c.fetchExpiration(ctx, data)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, expiration, nil
}

func (c *Client) fetchNonce(ctx context.Context) (Nonce, error) {
	body, err := c.transport.FetchNonce(ctx)
	if err != nil {
		return Nonce{}, fmt.Errorf("%w: fetch nonce: %w", ErrTransport, err)
	}
	var n Nonce
	if err := json.Unmarshal(body, &n); err != nil {
		return Nonce{}, fmt.Errorf("%w: nonce: %w", ErrDecode, err)
	}
	if n.Nonce == "" {
		return Nonce{}, fmt.Errorf("%w: nonce: empty nonce", ErrDecode)
	}
	if n.Iterations < 0 || n.Iterations > MaxIterations {
		return Nonce{}, fmt.Errorf("%w: nonce: iterations %d out of range", ErrDecode, n.Iterations)
	}
	return n, nil
}

func (c *Client) submitLogin(ctx context.Context, form Form) (*TokenData, error) {
	body, err := c.transport.SubmitLogin(ctx, form.Values())
	if err != nil {
		return nil, fmt.Errorf("%w: submit login: %w", ErrTransport, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: login reply is not JSON", ErrDecode)
	}
	reply := gjson.ParseBytes(body)
	if !reply.IsObject() {
		return nil, fmt.Errorf("%w: login reply is not an object", ErrDecode)
	}

	result := reply.Get("result")
	if result.Type != gjson.Number {
		return nil, &RejectedError{}
	}
	code, err := integer(result.Raw, result.Num)
	if err != nil {
		return nil, fmt.Errorf("%w: login result: %w", ErrDecode, err)
	}
	if code != 0 {
		return nil, &RejectedError{Result: code, HasResult: true}
	}

	sid, csrf := reply.Get("sid"), reply.Get("token")
	if sid.Type != gjson.String || sid.Str == "" || csrf.Type != gjson.String || csrf.Str == "" {
		return nil, &RejectedError{HasResult: true}
	}
	return NewTokenData(sid.Str, csrf.Str), nil
}

func (c *Client) fetchExpiration(ctx context.Context, data *TokenData) (time.Time, error) {
	body, err := c.transport.CheckExpire(ctx, data.SID())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: check expire: %w", ErrTransport, err)
	}
	secs, err := parseExpire(body)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: check expire: %w", ErrDecode, err)
	}
	return c.now().Add(time.Duration(secs) * time.Second), nil
}

// parseExpire reads the signed "seconds from now" expire field, which the
// gateway sends either as a number or as a numeric string.
func parseExpire(body []byte) (int64, error) {
	if !gjson.ValidBytes(body) {
		return 0, errors.New("reply is not JSON")
	}
	expire := gjson.GetBytes(body, "expire")

	var (
		secs int64
		err  error
	)
	switch expire.Type {
	case gjson.Number:
		secs, err = integer(expire.Raw, expire.Num)
	case gjson.String:
		str := strings.TrimSpace(expire.Str)
		var f float64
		if f, err = strconv.ParseFloat(str, 64); err == nil {
			secs, err = integer(str, f)
		}
	default:
		return 0, errors.New("reply has no expire field")
	}
	if err != nil {
		return 0, fmt.Errorf("expire %s: %w", expire.Raw, err)
	}
	if secs > maxExpireSeconds || secs < -maxExpireSeconds {
		return 0, fmt.Errorf("expire %d out of range", secs)
	}
	return secs, nil
}

// integer converts a JSON number to int64. Integral floats such as 300.0
// or 3e2 are accepted; fractions are not.
func integer(raw string, num float64) (int64, error) {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	if math.IsNaN(num) || math.IsInf(num, 0) || num != math.Trunc(num) {
		return 0, fmt.Errorf("%s is not an integer", raw)
	}
	if num >= math.MaxInt64 || num < math.MinInt64 {
		return 0, fmt.Errorf("%s overflows int64", raw)
	}
	return int64(num), nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrAuthRejected):
		return "rejected"
	default:
		return "internal"
	}
}
