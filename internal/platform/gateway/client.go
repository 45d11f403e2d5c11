// Package gateway is the only place that issues outbound HTTP calls to the
// hospital API. It attaches the bearer token, maps statuses onto the
// apperr taxonomy and raises the session-expired signal on 401.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/events"
)

const (
	DefaultTimeout = 30 * time.Second
	tokenPath      = "token/"
)

// TokenSource is the read side of the session store.
type TokenSource interface {
	Token() string
	IsAuthenticated() bool
}

type Client struct {
	http    *resty.Client
	tokens  TokenSource
	expired *events.Notifier
	logger  zerolog.Logger
}

type options struct {
	timeout    time.Duration
	httpClient *http.Client
}

type Option func(*options)

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient swaps the transport, e.g. for an httptest server client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New creates a client for the API rooted at apiURL. Requests go to
// apiURL + "/api/". expired may be nil when no re-authentication flow is
// wired (CLI one-shots).
func New(apiURL string, tokens TokenSource, expired *events.Notifier, logger zerolog.Logger, opts ...Option) *Client {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	var rc *resty.Client
	if o.httpClient != nil {
		rc = resty.NewWithClient(o.httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(apiURL, "/")+"/api/").
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{http: rc, tokens: tokens, expired: expired, logger: logger}
}

// Do issues one request and returns the raw response body. Status codes
// >= 400 come back as *apperr.Error. There are no retries: every failure
// goes straight to the caller.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.send(ctx, method, path, body, true)
}

// Login exchanges credentials for a bearer token. A 401 here means bad
// credentials, so it never raises the session-expired signal.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	payload := map[string]string{"username": username, "password": password}
	body, err := c.send(ctx, http.MethodPost, tokenPath, payload, false)
	if err != nil {
		return "", err
	}
	access := gjson.GetBytes(body, "access").String()
	if access == "" {
		return "", apperr.New(apperr.KindRequestFailed, "POST "+tokenPath, fmt.Errorf("token response has no access token"))
	}
	return access, nil
}

// Authenticated fails fast with KindUnauthenticated when no token is
// stored, before issuing the request. The server still enforces auth.
func Authenticated[T any](c *Client, op string, fn func() (T, error)) (T, error) {
	if !c.tokens.IsAuthenticated() {
		var zero T
		return zero, apperr.Unauthenticated(op)
	}
	return fn()
}

func (c *Client) send(ctx context.Context, method, path string, body any, notifyExpiry bool) ([]byte, error) {
	op := method + " " + path
	rid := uuid.NewString()
	start := time.Now()

	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", rid)
	if token := c.tokens.Token(); token != "" {
		req.SetAuthToken(token)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error().Err(err).
			Str("request_id", rid).
			Str("method", method).
			Str("path", path).
			Msg("api request failed")
		return nil, apperr.New(apperr.KindRequestFailed, op, err)
	}

	status := resp.StatusCode()
	c.logger.Debug().
		Str("request_id", rid).
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("api request")

	if appErr := apperr.FromStatus(op, status, errorDetail(resp.Body())); appErr != nil {
		switch appErr.Kind {
		case apperr.KindSessionExpired:
			if notifyExpiry {
				c.logger.Warn().Str("request_id", rid).Str("path", path).Msg("session expired")
				if c.expired != nil {
					c.expired.Publish()
				}
			}
		case apperr.KindForbidden:
			c.logger.Warn().Str("request_id", rid).Str("path", path).Msg("access forbidden")
		}
		return nil, appErr
	}
	return resp.Body(), nil
}

// errorDetail pulls the human message out of an error body. DRF uses
// "detail", echo uses "message".
func errorDetail(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if v := gjson.GetBytes(body, key); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}
