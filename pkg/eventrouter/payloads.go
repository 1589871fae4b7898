package eventrouter

import "github.com/go-go-golems/helpdesk/pkg/helpdesk"

// Inbound realtime event names.
const (
	EventNewMessage     = "new_message"
	EventTicketClosed   = "ticket_closed"
	EventITStaffAdded   = "it_staff_added"
	EventNewTicket      = "new_ticket"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
)

type NewMessagePayload struct {
	Message helpdesk.Message `json:"message"`
}

type TicketClosedPayload struct {
	Conversation helpdesk.Conversation `json:"conversation"`
	ClosedBy     *helpdesk.User        `json:"closedBy"`
}

type ITStaffAddedPayload struct {
	Conversation helpdesk.Conversation `json:"conversation"`
	ITStaff      helpdesk.User         `json:"itStaff"`
}

type NewTicketPayload struct {
	Conversation helpdesk.Conversation `json:"conversation"`
	CreatedBy    *helpdesk.User        `json:"createdBy"`
}
