package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

// Upload is an image attached to an outgoing message.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type SendMessageRequest struct {
	ConversationID string
	Body           string
	Image          *Upload
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]helpdesk.Message, error) {
	var out []helpdesk.Message
	if err := c.doJSON(ctx, http.MethodGet, "/messages/"+url.PathEscape(conversationID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage posts a multipart message. The returned message is whatever the
// backend echoes back; it may be empty, and callers must not append it: the
// confirmed copy arrives through the new_message push event.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (helpdesk.Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("conversation_id", req.ConversationID); err != nil {
		return helpdesk.Message{}, errors.Wrap(err, "write conversation_id")
	}
	if err := w.WriteField("isi_pesan", strings.TrimSpace(req.Body)); err != nil {
		return helpdesk.Message{}, errors.Wrap(err, "write isi_pesan")
	}
	if req.Image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="`+escapeQuotes(req.Image.Filename)+`"`)
		ct := req.Image.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return helpdesk.Message{}, errors.Wrap(err, "create image part")
		}
		if _, err := part.Write(req.Image.Data); err != nil {
			return helpdesk.Message{}, errors.Wrap(err, "write image part")
		}
	}
	if err := w.Close(); err != nil {
		return helpdesk.Message{}, errors.Wrap(err, "close multipart writer")
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/messages", &buf, w.FormDataContentType())
	if err != nil {
		return helpdesk.Message{}, err
	}
	var out helpdesk.Message
	if err := decodeData(data, &out, http.MethodPost, "/messages"); err != nil {
		return helpdesk.Message{}, err
	}
	return out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
