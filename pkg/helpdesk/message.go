package helpdesk

import "time"

type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type Message struct {
	ID             string      `json:"_id"`
	ConversationID string      `json:"conversation_id"`
	Sender         User        `json:"sender_id"`
	Body           string      `json:"isi_pesan"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	SentAt         time.Time   `json:"sent_at"`
}

func (m Message) HasAttachment() bool {
	return m.Attachment != nil && m.Attachment.URL != ""
}

// TypingSignal is the payload of user_typing / user_stop_typing.
type TypingSignal struct {
	UserID         string `json:"userId"`
	Name           string `json:"nama"`
	ConversationID string `json:"conversationId"`
}
