package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/specranking-client/users"
	pkgerrors "github.com/pkg/errors"
)

type userData struct {
	User *users.Profile `json:"user"`
}

// GetUser fetches the profile of user id.
func (c *Client) GetUser(ctx context.Context, id int64) (*users.Profile, error) {
	req, err := c.http.NewRequest(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d", id), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "Client.GetUser")
	}

	data, err := do[userData](c, req, "Client.GetUser")
	if err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, pkgerrors.Wrap(newError(http.StatusOK, nil, "response has no user"), "Client.GetUser")
	}
	return data.User, nil
}
