package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

func (c *Client) Me(ctx context.Context) (helpdesk.User, error) {
	var out helpdesk.User
	err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &out)
	return out, err
}

func (c *Client) ListUsers(ctx context.Context) ([]helpdesk.User, error) {
	var out []helpdesk.User
	if err := c.doJSON(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListUsersByRole(ctx context.Context, role helpdesk.Role) ([]helpdesk.User, error) {
	var out []helpdesk.User
	if err := c.doJSON(ctx, http.MethodGet, "/users/role/"+url.PathEscape(string(role)), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateUserRole(ctx context.Context, userID string, role helpdesk.Role) error {
	return c.doJSON(ctx, http.MethodPut, "/users/"+url.PathEscape(userID), map[string]string{"role": string(role)}, nil)
}
