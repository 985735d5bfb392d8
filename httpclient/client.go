package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/specranking-client/metrics"
	"golang.org/x/time/rate"
)

const (
	// HeaderTokenError is set by the backend on 401 responses to say why the token was rejected
	HeaderTokenError = "token-error"
	// TokenErrorExpired is the HeaderTokenError value that makes a request eligible for refresh and replay
	TokenErrorExpired = "Expired"
	// HeaderRequestID correlates client and server logs
	HeaderRequestID = "X-Request-ID"
)

// CredentialsFunc returns the bearer token to attach and the session it belongs to.
// The session value is opaque to the client; it is handed back on refresh and auth failure.
type CredentialsFunc func() (token string, session uint64)

// RefreshFunc obtains and installs a fresh access token for the session an expired
// request was sent under, returning it for the replay.
type RefreshFunc func(ctx context.Context, session uint64) (string, error)

type interceptors struct {
	credentials   CredentialsFunc
	refresh       RefreshFunc
	onAuthFailure func(session uint64)
}

// Client is the single shared request pipeline every remote call goes through.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	metrics    *metrics.Metrics

	mu           sync.RWMutex
	authToken    string
	interceptors *interceptors
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds every request including reading the response body. It applies
// to a copy of the client given through WithHTTPClient, whatever the option order.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRateLimit caps outgoing requests to limit per second with the given burst. A non-positive limit disables it.
func WithRateLimit(limit float64, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range options {
		opt(c)
	}
	if c.timeout > 0 {
		httpClient := *c.httpClient
		httpClient.Timeout = c.timeout
		c.httpClient = &httpClient
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthToken sets the default bearer token for all subsequent requests. An empty token removes it.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the default bearer token, empty when none is set.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// SetupInterceptors installs the request and response interceptors. Only the first call
// takes effect; it reports whether this call installed them.
func (c *Client) SetupInterceptors(credentials CredentialsFunc, refresh RefreshFunc, onAuthFailure func(session uint64)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interceptors != nil {
		return false
	}
	c.interceptors = &interceptors{
		credentials:   credentials,
		refresh:       refresh,
		onAuthFailure: onAuthFailure,
	}
	return true
}

// InterceptorsInstalled reports whether SetupInterceptors has taken effect.
func (c *Client) InterceptorsInstalled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interceptors != nil
}

// NewRequest builds a request against the base URL, JSON encoding body when it is non nil.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient.NewRequest encode: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient.NewRequest: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) getInterceptors() *interceptors {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interceptors
}

// authorize attaches the bearer token and records on the request context the session
// it was read for, so a later refresh is attributed to that session and not a newer one.
func (c *Client) authorize(req *http.Request, ic *interceptors) *http.Request {
	token := c.AuthToken()
	var session uint64
	if ic != nil && ic.credentials != nil {
		var current string
		current, session = ic.credentials()
		if current != "" {
			token = current
		}
	}
	if token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req.WithContext(context.WithValue(req.Context(), sessionKey, session))
}
