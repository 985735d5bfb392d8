package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/specranking-client/httpclient"
	"github.com/jrsteele09/specranking-client/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

const (
	pathRefreshToken = "/api/auth/token/refresh"
	pathToken        = "/api/auth/token"
)

// RefreshToken exchanges the out-of-band refresh credential (an http-only cookie) for a new
// access token, read from the response's Authorization header.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	req, err := c.http.NewRequest(httpclient.WithoutRefresh(ctx), http.MethodPost, pathRefreshToken, nil)
	if err != nil {
		return "", pkgerrors.Wrap(err, "Client.RefreshToken")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(err, "Client.RefreshToken")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", pkgerrors.Wrap(errors.Wrapf(errors.ErrRefreshFailed, "status %d", resp.StatusCode), "Client.RefreshToken")
	}

	token, ok := bearer(resp.Header.Get("Authorization"))
	if !ok {
		return "", pkgerrors.Wrap(errors.Wrapf(errors.ErrRefreshFailed, "%v", errors.ErrMissingBearer), "Client.RefreshToken")
	}
	return token, nil
}

// RevokeToken asks the backend to revoke token. The caller treats it as fire-and-forget.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	req, err := c.http.NewRequest(httpclient.WithoutRefresh(ctx), http.MethodDelete, pathToken, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "Client.RevokeToken")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(err, "Client.RevokeToken")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return pkgerrors.Wrap(newError(resp.StatusCode, nil, ""), "Client.RevokeToken")
	}
	return nil
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
