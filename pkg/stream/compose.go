package stream

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/helpdesk/pkg/api"
)

var (
	ErrAttachmentType     = errors.New("only image files are allowed (JPEG, PNG, GIF, WEBP)")
	ErrAttachmentTooLarge = errors.New("maximum file size is 5MB")
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// File is a local file picked for upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// PendingUpload is the validated attachment waiting for the next send.
// Preview is filled in asynchronously as a data URI.
type PendingUpload struct {
	File
	Preview string
}

func (s *Stream) SetDraft(text string) {
	s.mu.Lock()
	changed := s.draft != text
	s.draft = text
	s.mu.Unlock()
	if changed {
		s.changed()
	}
}

func (s *Stream) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Stream) Uploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploading
}

// Attachment returns the pending upload, if any.
func (s *Stream) Attachment() (PendingUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingUpload{}, false
	}
	return *s.pending, true
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// SelectAttachment validates f and makes it the pending upload. A rejected
// file leaves the current attachment untouched.
func (s *Stream) SelectAttachment(f File) error {
	ct := normalizeContentType(f.ContentType)
	if _, ok := allowedImageTypes[ct]; !ok {
		return errors.Wrapf(ErrAttachmentType, "%q", f.ContentType)
	}
	if int64(len(f.Data)) > s.maxAttachment {
		return errors.Wrapf(ErrAttachmentTooLarge, "%d bytes", len(f.Data))
	}
	f.ContentType = ct

	up := &PendingUpload{File: f}
	s.mu.Lock()
	s.pendingGen++
	gen := s.pendingGen
	s.pending = up
	s.mu.Unlock()
	s.changed()

	go s.renderPreview(up, gen)
	return nil
}

func (s *Stream) renderPreview(up *PendingUpload, gen uint64) {
	preview := "data:" + up.ContentType + ";base64," + base64.StdEncoding.EncodeToString(up.Data)
	s.mu.Lock()
	current := s.pendingGen == gen && s.pending == up
	if current {
		up.Preview = preview
	}
	s.mu.Unlock()
	if current {
		s.changed()
	}
}

func (s *Stream) ClearAttachment() {
	s.mu.Lock()
	had := s.pending != nil
	s.pending = nil
	s.pendingGen++
	s.mu.Unlock()
	if had {
		s.changed()
	}
}

// Send posts the draft and pending attachment to conversationID. Empty
// compose state, no conversation or a send already in flight make it a
// no-op returning false. The confirmed message is not appended here; it
// arrives as a new_message event. The attachment is dropped after every
// attempt, the draft only after success.
func (s *Stream) Send(ctx context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	body := strings.TrimSpace(s.draft)
	pending := s.pending
	if conversationID == "" || s.uploading || (body == "" && pending == nil) {
		s.mu.Unlock()
		return false, nil
	}
	s.uploading = true
	s.cancelDebounceLocked()
	s.mu.Unlock()
	s.changed()

	s.emitter.EmitStopTyping(conversationID)

	req := api.SendMessageRequest{ConversationID: conversationID, Body: body}
	if pending != nil {
		req.Image = &api.Upload{
			Filename:    pending.Name,
			ContentType: pending.ContentType,
			Data:        pending.Data,
		}
	}
	_, err := s.sender.SendMessage(ctx, req)

	s.mu.Lock()
	s.uploading = false
	if pending != nil && s.pending == pending {
		s.pending = nil
		s.pendingGen++
	}
	if err == nil {
		s.draft = ""
	}
	s.mu.Unlock()
	s.changed()

	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("send message failed")
		if api.IsUnauthorized(err) && s.onUnauthorized != nil {
			s.onUnauthorized(ctx, err)
		} else if s.banner != nil {
			s.banner.Error(api.UserMessage(err, "Failed to send message"))
		}
		return false, errors.Wrap(err, "send message")
	}
	return true, nil
}
