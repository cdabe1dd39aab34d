package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/tmhi/internal/client/auth"
)

// roundTripperFunc lets a function stand in for http.Client's transport.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func reply(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestRequest(t *testing.T, base string, fn roundTripperFunc) *Request {
	t.Helper()
	r, err := NewRequest(base, &http.Client{Transport: fn})
	require.NoError(t, err)
	return r
}

func TestNewRequest_AddsScheme(t *testing.T) {
	var got string
	r := newTestRequest(t, "192.168.12.1", func(req *http.Request) (*http.Response, error) {
		got = req.URL.String()
		return reply(http.StatusOK, "{}"), nil
	})

	_, err := r.RadioStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.12.1/fastmile_radio_status_web_app.cgi", got)
}

func TestRequest_FetchNonce(t *testing.T) {
	r := newTestRequest(t, "http://gw", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "/login_web_app.cgi", req.URL.Path)
		assert.Equal(t, "nonce", req.URL.RawQuery)
		return reply(http.StatusOK, `{"nonce":"n"}`), nil
	})

	body, err := r.FetchNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"nonce":"n"}`, string(body))
}

func TestRequest_SubmitLogin(t *testing.T) {
	r := newTestRequest(t, "http://gw/", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/login_web_app.cgi", req.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
		require.NoError(t, req.ParseForm())
		assert.Equal(t, "abc.", req.PostForm.Get("nonce"))
		return reply(http.StatusOK, `{"result":0}`), nil
	})

	_, err := r.SubmitLogin(context.Background(), url.Values{"nonce": {"abc."}})
	require.NoError(t, err)
}

func TestRequest_CheckExpireSendsCookie(t *testing.T) {
	r := newTestRequest(t, "http://gw", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/check_expire_web_app.cgi", req.URL.Path)
		assert.Equal(t, "sid=s1", req.Header.Get("Cookie"))
		return reply(http.StatusOK, `{"expire":10}`), nil
	})

	_, err := r.CheckExpire(context.Background(), "s1")
	require.NoError(t, err)
}

func TestRequest_Reboot(t *testing.T) {
	r := newTestRequest(t, "http://gw", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/reboot_web_app.cgi", req.URL.Path)
		assert.Equal(t, "sid=s1", req.Header.Get("Cookie"))
		require.NoError(t, req.ParseForm())
		assert.Equal(t, "c1", req.PostForm.Get("csrf_token"))
		return reply(http.StatusOK, `{"result":0}`), nil
	})

	_, err := r.Reboot(context.Background(), auth.NewTokenData("s1", "c1"))
	require.NoError(t, err)
}

func TestRequest_StatusError(t *testing.T) {
	r := newTestRequest(t, "http://gw", func(req *http.Request) (*http.Response, error) {
		return reply(http.StatusForbidden, "denied\n"), nil
	})

	_, err := r.RadioStatus(context.Background())
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusForbidden, status.Code)
	assert.Equal(t, "denied", status.Body)
	assert.True(t, isUnauthorized(err))
}

func TestRequest_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	r := newTestRequest(t, "http://gw", func(req *http.Request) (*http.Response, error) {
		return nil, boom
	})

	_, err := r.FetchNonce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, isUnauthorized(err))
}
