package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

func (c *Client) ListConversations(ctx context.Context) ([]helpdesk.Conversation, error) {
	var out []helpdesk.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateConversation(ctx context.Context, subject string) (helpdesk.Conversation, error) {
	var out helpdesk.Conversation
	err := c.doJSON(ctx, http.MethodPost, "/conversations", map[string]string{"subject": subject}, &out)
	return out, err
}

func (c *Client) CloseConversation(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/close", map[string]any{}, nil)
}

func (c *Client) AddITStaff(ctx context.Context, conversationID, staffID string) error {
	body := map[string]string{"it_staff_id": staffID}
	return c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/add-it-staff", body, nil)
}
