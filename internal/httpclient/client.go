// Package httpclient is the single HTTP surface of the launcher: JSON and
// text GETs against the version, manifest and release endpoints, and
// streaming file downloads with progress.
//
// The client never retries. A failed request surfaces as a network error
// and the next attempt is a fresh user invocation.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/branding"
	"go.uber.org/zap"
)

// StatusError records a non-success HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.Code)
}

// Client wraps resty with the launcher's defaults.
type Client struct {
	resty   *resty.Client
	log     *zap.Logger
	token   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.resty = resty.NewWithClient(hc)
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithToken sets a GitHub token sent as an Authorization header.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout bounds small metadata requests. Downloads are bounded only
// by their context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a Client. GITHUB_TOKEN is picked up from the environment
// unless WithToken overrides it.
func New(opts ...Option) *Client {
	c := &Client{
		resty:   resty.New(),
		log:     zap.NewNop(),
		token:   os.Getenv("GITHUB_TOKEN"),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resty.
		SetRetryCount(0).
		SetHeader("User-Agent", branding.CLIName()+"/1.0")
	return c
}

// Get fetches url and returns the body. Transport failures and non-2xx
// statuses are network errors; the latter wrap a *StatusError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := c.resty.R().SetContext(ctx)
	if c.token != "" && isGitHub(url) {
		req.SetHeader("Authorization", "token "+c.token)
	}
	if isGitHub(url) {
		req.SetHeader("Accept", "application/vnd.github+json")
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "GET "+url, err)
	}
	c.log.Debug("http get", zap.String("url", url), zap.Int("status", resp.StatusCode()))

	if resp.StatusCode() == http.StatusForbidden && isGitHub(url) {
		return nil, apperr.New(apperr.KindNetwork, "GET "+url,
			"GitHub API rate limit exceeded. Set GITHUB_TOKEN for higher limits").
			WithCause(&StatusError{URL: url, Code: resp.StatusCode()})
	}
	if !resp.IsSuccess() {
		return nil, apperr.Wrap(apperr.KindNetwork, "", &StatusError{URL: url, Code: resp.StatusCode()})
	}
	return resp.Body(), nil
}

// GetJSON fetches url and decodes the body into out. A body that is not
// valid JSON is a parse error.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.KindParse, "decoding "+url, err)
	}
	return nil
}

// HasStatus reports whether err wraps a *StatusError with the given code.
func HasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func isGitHub(url string) bool {
	return strings.Contains(url, "api.github.com") || strings.Contains(url, "/repos/")
}
