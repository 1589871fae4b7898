package transport

import "encoding/json"

// Frame is the JSON envelope exchanged in both directions over the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound event names.
const (
	EventJoinConversation = "join_conversation"
	EventTyping           = "typing"
	EventStopTyping       = "stop_typing"
)

type typingPayload struct {
	ConversationID string `json:"conversationId"`
}

// InboundHandler receives every decoded inbound frame in arrival order.
type InboundHandler interface {
	HandleFrame(event string, data []byte)
}

type InboundHandlerFunc func(event string, data []byte)

func (f InboundHandlerFunc) HandleFrame(event string, data []byte) { f(event, data) }
