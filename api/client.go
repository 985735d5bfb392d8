package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/specranking-client/httpclient"
	"github.com/jrsteele09/specranking-client/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

// Client wraps the SpecRanking REST endpoints the session and bookmark stores depend on.
// Every call is normalized here: callers get a value or an error, never a raw status or flag.
type Client struct {
	http *httpclient.Client
}

func New(httpClient *httpclient.Client) *Client {
	return &Client{http: httpClient}
}

// envelope is the backend's common response wrapper.
type envelope[T any] struct {
	IsSuccess bool            `json:"isSuccess"`
	Code      json.RawMessage `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      T               `json:"data"`
}

// do sends req and decodes the envelope into T. A 204 is success with a zero T.
func do[T any](c *Client, req *http.Request, op string) (T, error) {
	var zero T

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, pkgerrors.Wrap(err, op)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return zero, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, pkgerrors.Wrap(errors.Wrapf(errors.ErrTransport, "read body %v", err), op)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode >= http.StatusBadRequest {
		return zero, pkgerrors.Wrap(newError(resp.StatusCode, env.Code, env.Message), op)
	}
	if decodeErr != nil {
		return zero, pkgerrors.Wrap(newError(resp.StatusCode, nil, "malformed response: "+decodeErr.Error()), op)
	}
	if !env.IsSuccess {
		return zero, pkgerrors.Wrap(newError(resp.StatusCode, env.Code, env.Message), op)
	}
	return env.Data, nil
}

func rawCode(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
