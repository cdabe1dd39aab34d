// Package gateway talks to the broadband gateway's local web API and wires
// the login coordinator to an HTTP transport.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/tmhi/internal/client/auth"
)

// Options configures a Client.
type Options struct {
	// URL is the gateway base URL.
	URL string
	// Username and Password are the gateway admin credentials.
	Username string
	Password string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// LoginTimeout bounds one full login sequence.
	LoginTimeout time.Duration
}

// Client exposes the gateway operations the command line needs.
type Client struct {
	request *Request
	auth    *auth.Client
	log     *zap.Logger
}

// New builds a Client for the gateway described by opts.
func New(opts Options, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	request, err := NewRequest(opts.URL, NewHTTPClient(opts.Timeout))
	if err != nil {
		return nil, err
	}
	return &Client{
		request: request,
		auth: auth.New(request, opts.Username, opts.Password,
			auth.WithLogger(log.Named("auth")),
			auth.WithLoginTimeout(opts.LoginTimeout),
		),
		log: log,
	}, nil
}

// Login forces a fresh login and returns the resulting session.
func (c *Client) Login(ctx context.Context) (*auth.TokenData, error) {
	return c.auth.Login(ctx)
}

// Expiration reports when the current session expires.
func (c *Client) Expiration() (time.Time, bool) {
	return c.auth.Expiration()
}

// Reboot restarts the gateway. A session rejected by the gateway is
// dropped and the reboot retried once after a fresh login.
func (c *Client) Reboot(ctx context.Context) (string, error) {
	token, err := c.auth.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	body, err := c.request.Reboot(ctx, token)
	if isUnauthorized(err) {
		c.log.Info("gateway rejected session, logging in again")
		c.auth.Invalidate()
		if token, err = c.auth.Login(ctx); err != nil {
			return "", fmt.Errorf("authenticate: %w", err)
		}
		body, err = c.request.Reboot(ctx, token)
	}
	if err != nil {
		return "", fmt.Errorf("reboot: %w", err)
	}
	return string(body), nil
}

// RadioStatus returns the gateway's radio statistics as raw JSON.
func (c *Client) RadioStatus(ctx context.Context) (json.RawMessage, error) {
	body, err := c.request.RadioStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("radio status: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("radio status: %w", auth.ErrDecode)
	}
	return json.RawMessage(body), nil
}

func isUnauthorized(err error) bool {
	var status *StatusError
	if !errors.As(err, &status) {
		return false
	}
	return status.Code == http.StatusUnauthorized || status.Code == http.StatusForbidden
}
