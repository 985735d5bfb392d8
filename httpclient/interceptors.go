package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	retriedKey     contextKey = "retried"
	skipRefreshKey contextKey = "skip_refresh"
	sessionKey     contextKey = "session"
)

// WithoutRefresh marks requests made with ctx as ineligible for refresh and replay.
// The refresh and revoke calls use it so an expired token can never recurse into another refresh.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRefreshKey, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey).(bool)
	return retried
}

func skipRefresh(ctx context.Context) bool {
	skip, _ := ctx.Value(skipRefreshKey).(bool)
	return skip
}

// SessionOf returns the session a request was sent under, as recorded by Do.
func SessionOf(ctx context.Context) (uint64, bool) {
	session, ok := ctx.Value(sessionKey).(uint64)
	return session, ok
}

// IsTokenExpired reports whether resp is a 401 flagged by the backend as an expired token.
func IsTokenExpired(resp *http.Response) bool {
	return resp != nil &&
		resp.StatusCode == http.StatusUnauthorized &&
		strings.EqualFold(strings.TrimSpace(resp.Header.Get(HeaderTokenError)), TokenErrorExpired)
}

// Do sends req through the interceptors. A 401 carrying the expired-token signal is
// refreshed and replayed at most once; any other response is returned untouched.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ic := c.getInterceptors()
	req = c.authorize(req, ic)
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if ic == nil || ic.refresh == nil || !IsTokenExpired(resp) || isRetried(req.Context()) || skipRefresh(req.Context()) {
		return resp, nil
	}

	original, err := bufferResponse(resp)
	if err != nil {
		return nil, err
	}

	session, _ := SessionOf(req.Context())
	newToken, err := ic.refresh(req.Context(), session)
	if err == nil && newToken == "" {
		err = errors.ErrMissingBearer
	}
	if err != nil {
		log.Err(err).Str("path", req.URL.Path).Msg("Token refresh after expired response failed")
		if !errors.Is(err, errors.ErrStaleSession) && ic.onAuthFailure != nil {
			ic.onAuthFailure(session)
		}
		return original, nil
	}

	retry, err := cloneForRetry(req, newToken)
	if err != nil {
		log.Err(err).Str("path", req.URL.Path).Msg("Request cannot be replayed")
		return original, nil
	}
	c.metrics.RequestReplays.Inc()
	return c.send(retry)
}

// send tags the request and performs a single round trip.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", errors.ErrTransport, err)
		}
	}

	c.metrics.InFlight.Inc()
	defer c.metrics.InFlight.Dec()
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, 0, started)
		log.Debug().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("Request failed")
		return nil, errors.Wrapf(errors.ErrTransport, "%s %s: %v", req.Method, req.URL.Path, err)
	}
	c.metrics.ObserveRequest(req.Method, resp.StatusCode, started)
	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Str("request_id", req.Header.Get(HeaderRequestID)).
		Dur("duration", time.Since(started)).
		Msg("Request completed")
	return resp, nil
}

// bufferResponse reads the body into memory so resp can still be returned after another round trip.
func bufferResponse(resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTransport, "read response body %v", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func cloneForRetry(req *http.Request, token string) (*http.Request, error) {
	retry := req.Clone(context.WithValue(req.Context(), retriedKey, true))
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("request body for %s %s is not replayable", req.Method, req.URL.Path)
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("request body for %s %s: %w", req.Method, req.URL.Path, err)
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	retry.Header.Del(HeaderRequestID)
	return retry, nil
}
