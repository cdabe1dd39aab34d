package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/tmhi/internal/client/auth"
)

// Gateway endpoints, relative to the base URL.
const (
	pathLogin       = "/login_web_app.cgi"
	pathCheckExpire = "/check_expire_web_app.cgi"
	pathReboot      = "/reboot_web_app.cgi"
	pathRadioStatus = "/fastmile_radio_status_web_app.cgi"
)

// maxReplySize caps how much of a reply body is read.
const maxReplySize = 1 << 20

// Request issues HTTP requests against a gateway and returns raw reply bodies.
type Request struct {
	baseURL *url.URL
	client  *http.Client
}

var _ auth.Transport = (*Request)(nil)

// NewRequest parses baseURL and returns a Request using client.
// A nil client selects NewHTTPClient(0).
func NewRequest(baseURL string, client *http.Client) (*Request, error) {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &Request{baseURL: u, client: client}, nil
}

// NewHTTPClient returns the HTTP client shared by all gateway requests.
// A non-positive timeout selects 10 seconds.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// FetchNonce issues GET /login_web_app.cgi?nonce.
func (r *Request) FetchNonce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(pathLogin, "nonce"), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return r.do(req)
}

// SubmitLogin posts the challenge form to /login_web_app.cgi.
func (r *Request) SubmitLogin(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := r.newForm(ctx, r.url(pathLogin, ""), form)
	if err != nil {
		return nil, err
	}
	return r.do(req)
}

// CheckExpire issues GET /check_expire_web_app.cgi with the sid cookie.
func (r *Request) CheckExpire(ctx context.Context, sid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(pathCheckExpire, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setSID(req, sid)
	return r.do(req)
}

// Reboot posts the CSRF token to /reboot_web_app.cgi on behalf of the session.
func (r *Request) Reboot(ctx context.Context, token *auth.TokenData) ([]byte, error) {
	form := url.Values{"csrf_token": {token.CSRFToken()}}
	req, err := r.newForm(ctx, r.url(pathReboot, ""), form)
	if err != nil {
		return nil, err
	}
	setSID(req, token.SID())
	return r.do(req)
}

// RadioStatus issues GET /fastmile_radio_status_web_app.cgi. It needs no session.
func (r *Request) RadioStatus(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(pathRadioStatus, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return r.do(req)
}

func (r *Request) newForm(ctx context.Context, target string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func (r *Request) do(req *http.Request) ([]byte, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (r *Request) url(path, rawQuery string) string {
	u := r.baseURL.JoinPath(path)
	u.RawQuery = rawQuery
	return u.String()
}

func setSID(req *http.Request, sid string) {
	req.Header.Set("Cookie", "sid="+sid)
}

// StatusError is returned for non-2xx gateway replies.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Code, e.Body)
}
